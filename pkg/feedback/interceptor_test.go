package feedback

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterceptor_BindRTCPReader(t *testing.T) {
	target := &recordingTarget{}
	factory := &InterceptorFactory{Handler: NewHandler(target, clock.NewMock(), ssrcs)}
	i, err := factory.NewInterceptor("")
	require.NoError(t, err)

	raw, err := rtcp.Marshal([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: 1003}})
	require.NoError(t, err)

	reader := i.BindRTCPReader(interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		return copy(b, raw), a, nil
	}))

	buf := make([]byte, 1500)
	n, _, err := reader.Read(buf, interceptor.Attributes{})
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, []int{2}, target.keyFrames)
}
