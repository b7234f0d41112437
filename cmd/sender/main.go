// Package main runs a simulcast sender fed by a synthetic frame source. The
// encoded streams are tagged as RTP and sent over a WebRTC peer connection to
// a local receiver, whose RTCP feedback drives the sender.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/interceptor/pkg/gcc"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pion/ion-sender/pkg/encoder"
	"github.com/pion/ion-sender/pkg/feedback"
	log "github.com/pion/ion-sender/pkg/logger"
	"github.com/pion/ion-sender/pkg/sender"
	"github.com/pion/ion-sender/pkg/stats"
	"github.com/pion/ion-sender/pkg/transport"
	"github.com/pion/ion-sender/pkg/video"
)

type sourceConfig struct {
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`
	Framerate float64 `mapstructure:"framerate"`
}

type peerConfig struct {
	PayloadType      uint8         `mapstructure:"payloadtype"`
	Loopback         bool          `mapstructure:"loopback"`
	KeyFrameInterval time.Duration `mapstructure:"keyframeinterval"`
	ConnectTimeout   time.Duration `mapstructure:"connecttimeout"`
}

type bweConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MinBitrate int  `mapstructure:"minbitrate"`
	MaxBitrate int  `mapstructure:"maxbitrate"`
}

type driverConfig struct {
	ProcessInterval time.Duration `mapstructure:"processinterval"`
	StatsInterval   time.Duration `mapstructure:"statsinterval"`
	RateWindow      time.Duration `mapstructure:"ratewindow"`
}

// Config defines parameters for configuring the sender
type Config struct {
	Sender    sender.SendConfiguration `mapstructure:"sender"`
	Source    sourceConfig             `mapstructure:"source"`
	Peer      peerConfig               `mapstructure:"peer"`
	BWE       bweConfig                `mapstructure:"bwe"`
	Driver    driverConfig             `mapstructure:"driver"`
	LogConfig log.GlobalConfig         `mapstructure:"log"`
}

var (
	conf           = Config{}
	file           string
	metricsAddr    string
	verbosityLevel int

	logger = log.New()
)

func showHelp() {
	fmt.Printf("Usage:%s {params}\n", os.Args[0])
	fmt.Println("      -c {config file}")
	fmt.Println("      -m {metrics listen addr}")
	fmt.Println("      -h (show help info)")
	fmt.Println("      -v {0-10} (verbosity level, default 0)")
}

func unmarshal(c *Config) error {
	if err := viper.GetViper().Unmarshal(c); err != nil {
		return err
	}
	if c.Sender.Codec == "" {
		c.Sender.Codec = webrtc.MimeTypeVP8
	}
	if c.Source.Framerate <= 0 {
		c.Source.Framerate = float64(c.Sender.MaxFramerate)
	}
	if c.Source.Framerate <= 0 {
		c.Source.Framerate = 30
	}
	if c.Driver.ProcessInterval <= 0 {
		c.Driver.ProcessInterval = time.Second
	}
	if c.Driver.StatsInterval <= 0 {
		c.Driver.StatsInterval = 10 * time.Second
	}
	if c.Peer.PayloadType == 0 {
		c.Peer.PayloadType = 96
	}
	if c.Peer.ConnectTimeout <= 0 {
		c.Peer.ConnectTimeout = 10 * time.Second
	}
	return nil
}

func load() bool {
	_, err := os.Stat(file)
	if err != nil {
		return false
	}

	viper.SetConfigFile(file)
	viper.SetConfigType("toml")

	err = viper.ReadInConfig()
	if err != nil {
		logger.Error(err, "config file read failed", "file", file)
		return false
	}
	if err = unmarshal(&conf); err != nil {
		logger.Error(err, "sender config file loaded failed", "file", file)
		return false
	}
	logger.V(0).Info("Config file loaded", "file", file)
	return true
}

func parse() bool {
	flag.StringVar(&file, "c", "config.toml", "config file")
	flag.StringVar(&metricsAddr, "m", ":8100", "metrics to use")
	flag.IntVar(&verbosityLevel, "v", -1, "verbosity level, higher value - more logs")
	help := flag.Bool("h", false, "help info")
	flag.Parse()

	if !load() {
		return false
	}

	if *help {
		return false
	}
	return true
}

func startMetrics(ctx context.Context, addr string) error {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler: m,
	}

	metricsLis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot bind to metrics endpoint %s: %w", addr, err)
	}
	logger.Info("Metrics Listening", "addr", addr)

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.Serve(metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func sameCodec(a, b string) bool {
	trim := func(c string) string {
		return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c)), "video/")
	}
	return trim(a) == trim(b)
}

// bandwidthEstimation returns the congestion controller interceptor, seeded
// with the normalized start bitrate. attach gets every estimator it creates.
func bandwidthEstimation(c sender.SendConfiguration, attach cc.NewPeerConnectionCallback) (*cc.InterceptorFactory, error) {
	opts := []gcc.Option{gcc.SendSideBWEInitialBitrate(int(c.StartBitrateKbps) * 1000)}
	if conf.BWE.MinBitrate > 0 {
		opts = append(opts, gcc.SendSideBWEMinBitrate(conf.BWE.MinBitrate))
	}
	maxBitrate := conf.BWE.MaxBitrate
	if maxBitrate <= 0 {
		maxBitrate = int(c.MaxBitrateKbps()) * 1000
	}
	opts = append(opts, gcc.SendSideBWEMaxBitrate(maxBitrate))

	factory, err := cc.NewInterceptor(func() (cc.BandwidthEstimator, error) {
		return gcc.NewSendSideBWE(opts...)
	})
	if err != nil {
		return nil, err
	}
	factory.OnNewPeerConnection(attach)
	return factory, nil
}

// connect sends the streams of c to a local receiver and returns the sender
// side peer. RTCP from the receiver is handled by handler.
func connect(ctx context.Context, c sender.SendConfiguration, handler *feedback.Handler) (*transport.Peer, *transport.Sink, error) {
	factories := []interceptor.Factory{&feedback.InterceptorFactory{Handler: handler}}
	if conf.BWE.Enabled {
		bwe, err := bandwidthEstimation(c, func(id string, bwe cc.BandwidthEstimator) {
			logger.Info("bandwidth estimator attached", "peer", id, "bps", bwe.GetTargetBitrate())
			handler.AttachBandwidthEstimator(bwe)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bandwidth estimator: %w", err)
		}
		factories = append(factories, bwe)
	}
	api, err := transport.NewAPI(transport.APIOptions{Interceptors: factories, Loopback: conf.Peer.Loopback})
	if err != nil {
		return nil, nil, err
	}
	sinkAPI, err := transport.NewAPI(transport.APIOptions{Loopback: conf.Peer.Loopback})
	if err != nil {
		return nil, nil, err
	}

	peer, err := transport.NewPeer(api, c.Codec, len(c.Streams))
	if err != nil {
		return nil, nil, err
	}
	handler.SetSSRCs(peer.SSRCs())

	sink, err := transport.NewSink(sinkAPI, conf.Peer.KeyFrameInterval)
	if err != nil {
		_ = peer.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, conf.Peer.ConnectTimeout)
	defer cancel()
	if err := peer.Connect(ctx, sink); err != nil {
		_ = sink.Close()
		_ = peer.Close()
		return nil, nil, fmt.Errorf("connect peer: %w", err)
	}
	return peer, sink, nil
}

// watchConfig re-registers the send configuration when the config file
// changes. Changes to the number of streams need a restart.
func watchConfig(s *sender.VideoSender, l logr.Logger) {
	debounced := debounce.New(500 * time.Millisecond)
	viper.OnConfigChange(func(e fsnotify.Event) {
		debounced(func() {
			next := Config{}
			if err := unmarshal(&next); err != nil {
				l.Error(err, "config reload failed", "file", e.Name)
				return
			}
			if len(next.Sender.Streams) != s.StreamCount() {
				l.Info("stream count changed, restart to apply", "file", e.Name)
				return
			}
			if cur, ok := s.SendConfiguration(); ok && !sameCodec(cur.Codec, next.Sender.Codec) {
				l.Info("codec changed, restart to apply", "file", e.Name)
				return
			}
			if err := s.RegisterSendConfiguration(next.Sender); err != nil {
				l.Error(err, "config reload rejected", "file", e.Name, "code", sender.ResultCode(err))
				return
			}
			l.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		})
	})
	viper.WatchConfig()
}

func logLayerStats(l logr.Logger, s *sender.VideoSender, ls *stats.LayerStats) {
	fps, _ := s.Framerate()
	for stream := 0; stream < s.StreamCount(); stream++ {
		alloc, err := s.Allocate(stream)
		if err != nil {
			continue
		}
		for layer := range alloc.Layers {
			l.Info("layer stats",
				"stream", stream,
				"layer", layer,
				"fps", ls.FramerateWithinLayer(stream, layer),
				"kbps", ls.BitrateKbpsWithinLayer(stream, layer),
				"target_fps", alloc.Layers[layer].FramerateFps,
				"target_kbps", alloc.Layers[layer].BitrateKbps,
				"input_fps", fps)
		}
	}
	ls.Reset()
}

func run(ctx context.Context) error {
	enc := encoder.NewSynthetic()
	s := sender.NewVideoSender(enc, sender.Options{RateWindow: conf.Driver.RateWindow})
	if err := s.RegisterSendConfiguration(conf.Sender); err != nil {
		return fmt.Errorf("register send configuration: %w", err)
	}
	defer s.Close()

	active, _ := s.SendConfiguration()
	n := len(active.Streams)

	handler := feedback.NewHandler(s, nil, nil)
	peer, sink, err := connect(ctx, active, handler)
	if err != nil {
		return err
	}
	defer func() {
		_ = sink.Close()
		_ = peer.Close()
	}()

	tagger, err := transport.NewRTPTagger(active.Codec, conf.Peer.PayloadType, peer.SSRCs())
	if err != nil {
		return fmt.Errorf("rtp tagging: %w", err)
	}
	dispatcher := transport.NewAsyncDispatcher(tagger, peer.Writers())
	defer dispatcher.Close()
	s.OnEncodedFrame(dispatcher.OnEncodedFrame)

	layerStats := stats.NewLayerStats(nil)
	s.OnEncodedFrame(layerStats.OnEncodedFrame)

	watchConfig(s, logger.WithName("config"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gen := video.NewGenerator(conf.Source.Width, conf.Source.Height, nil)
		ticker := time.NewTicker(time.Duration(float64(time.Second) / conf.Source.Framerate))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := s.AddFrame(gen.NextFrame()); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		process := time.NewTicker(conf.Driver.ProcessInterval)
		defer process.Stop()
		report := time.NewTicker(conf.Driver.StatsInterval)
		defer report.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-process.C:
				if err := s.Process(); err != nil {
					logger.Error(err, "process", "code", sender.ResultCode(err))
				}
			case <-report.C:
				logLayerStats(logger.WithName("stats"), s, layerStats)
				logger.V(1).Info("transport", "written", dispatcher.Written(), "received", sink.Packets())
			}
		}
	})
	g.Go(func() error {
		return startMetrics(ctx, metricsAddr)
	})

	logger.Info("Sender running", "streams", n, "fps", conf.Source.Framerate, "codec", active.Codec, "ssrcs", peer.SSRCs())
	return g.Wait()
}

func main() {
	if !parse() {
		showHelp()
		os.Exit(-1)
	}

	// Check that the -v is not set (default -1)
	if verbosityLevel >= 0 {
		conf.LogConfig.V = verbosityLevel
		conf.LogConfig.Level = ""
	}
	log.SetGlobalOptions(conf.LogConfig)
	logger = log.New()

	// packages need to be set up with logr implementation
	sender.Logger = logger.WithName("sender")
	encoder.Logger = logger.WithName("encoder")
	transport.Logger = logger.WithName("transport")
	feedback.Logger = logger.WithName("feedback")

	logger.Info("--- Starting Sender ---")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error(err, "sender stopped")
		os.Exit(1)
	}
}
