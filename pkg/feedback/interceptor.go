package feedback

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
)

// Interceptor feeds RTCP read by a pion interceptor chain into a Handler.
type Interceptor struct {
	interceptor.NoOp
	handler *Handler
}

// InterceptorFactory builds Interceptors for an interceptor.Registry.
type InterceptorFactory struct {
	Handler *Handler
}

// NewInterceptor implements interceptor.Factory.
func (f *InterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &Interceptor{handler: f.Handler}, nil
}

func (i *Interceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attributes, err := reader.Read(b, a)
		if err != nil {
			return 0, nil, err
		}

		pkts, err := rtcp.Unmarshal(b[:n])
		if err != nil {
			return 0, nil, err
		}
		if err := i.handler.HandlePackets(pkts); err != nil {
			Logger.Error(err, "handle rtcp")
		}
		return n, attributes, nil
	})
}
