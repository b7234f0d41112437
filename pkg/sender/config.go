package sender

import (
	"strings"

	"github.com/pion/webrtc/v3"

	"github.com/pion/ion-sender/pkg/temporal"
	"github.com/pion/ion-sender/pkg/video"
)

const defaultMaxFramerate = 30

// SendConfiguration describes the codec and the ordered simulcast streams.
// Registering one replaces the previous configuration as a whole.
type SendConfiguration struct {
	// Codec is a video MIME type such as video/VP8. Bare codec names are
	// accepted. Empty means VP8.
	Codec string `mapstructure:"codec"`
	// StartBitrateKbps is the budget used until channel feedback arrives.
	// Zero starts at the sum of the stream maxima.
	StartBitrateKbps uint32                   `mapstructure:"startbitrate"`
	MaxFramerate     uint32                   `mapstructure:"maxframerate"`
	Streams          []video.StreamDescriptor `mapstructure:"streams"`
	Temporal         temporal.Config          `mapstructure:"temporal"`
	// InternalSource marks an encoder that captures frames itself. Key frame
	// requests are then encoded immediately instead of with the next frame.
	InternalSource bool `mapstructure:"internalsource"`
}

var videoCodecs = []string{
	webrtc.MimeTypeVP8,
	webrtc.MimeTypeVP9,
	webrtc.MimeTypeH264,
}

func parseCodec(codec string) (string, error) {
	if codec == "" {
		return webrtc.MimeTypeVP8, nil
	}
	name := strings.TrimSpace(codec)
	if !strings.Contains(name, "/") {
		name = "video/" + name
	}
	for _, mime := range videoCodecs {
		if strings.EqualFold(mime, name) {
			return mime, nil
		}
	}
	return "", configError("codec %q is not a supported video codec", codec)
}

// MaxBitrateKbps is the sum of the stream maxima.
func (c SendConfiguration) MaxBitrateKbps() uint32 {
	var total uint32
	for _, s := range c.Streams {
		total += s.MaxBitrateKbps
	}
	return total
}

// normalize validates c and returns a copy with defaults applied.
func (c SendConfiguration) normalize() (SendConfiguration, error) {
	mime, err := parseCodec(c.Codec)
	if err != nil {
		return c, err
	}
	if len(c.Streams) == 0 {
		return c, configError("no streams")
	}

	out := c
	out.Codec = mime
	out.Streams = append([]video.StreamDescriptor(nil), c.Streams...)
	if out.MaxFramerate == 0 {
		out.MaxFramerate = defaultMaxFramerate
	}
	for i, s := range out.Streams {
		if s.Width <= 0 || s.Height <= 0 {
			return c, configError("stream %d has size %dx%d", i, s.Width, s.Height)
		}
		if s.MaxBitrateKbps == 0 {
			return c, configError("stream %d has no max bitrate", i)
		}
		if s.NumberOfTemporalLayers < 1 || s.NumberOfTemporalLayers > temporal.MaxTemporalLayers {
			return c, configError("stream %d has %d temporal layers, want 1..%d",
				i, s.NumberOfTemporalLayers, temporal.MaxTemporalLayers)
		}
	}
	if limit := out.MaxBitrateKbps(); out.StartBitrateKbps == 0 || out.StartBitrateKbps > limit {
		out.StartBitrateKbps = limit
	}
	return out, nil
}

// allocators builds one allocator per stream. A stream level strategy
// overrides the configuration wide one.
func (c SendConfiguration) allocators() ([]temporal.Allocator, error) {
	out := make([]temporal.Allocator, len(c.Streams))
	for i, s := range c.Streams {
		tc := c.Temporal
		if s.Strategy != "" {
			tc.Strategy = s.Strategy
		}
		a, err := temporal.New(s.NumberOfTemporalLayers, tc)
		if err != nil {
			return nil, configError("stream %d: %v", i, err)
		}
		out[i] = a
	}
	return out, nil
}

func (c SendConfiguration) codecSettings() CodecSettings {
	settings := CodecSettings{
		MimeType:         c.Codec,
		StartBitrateKbps: c.StartBitrateKbps,
		MaxBitrateKbps:   c.MaxBitrateKbps(),
		MaxFramerate:     c.MaxFramerate,
		InternalSource:   c.InternalSource,
		Streams:          append([]video.StreamDescriptor(nil), c.Streams...),
	}
	for _, s := range c.Streams {
		if s.Width*s.Height > settings.Width*settings.Height {
			settings.Width, settings.Height = s.Width, s.Height
		}
	}
	return settings
}
