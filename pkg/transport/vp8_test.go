package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVP8Descriptor_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    VP8Descriptor
		offset  int
		wantErr error
	}{
		{
			name:    "Must fail on nil payload",
			payload: nil,
			wantErr: errNilPacket,
		},
		{
			name:    "Must fail on truncated picture id",
			payload: []byte{0x90, 0x80, 0x80},
			wantErr: errShortPacket,
		},
		{
			name:    "Must parse 15 bit picture id with temporal fields",
			payload: []byte{0x90, 0xe0, 0x81, 0x02, 0x07, 0x80, 0x00},
			want:    VP8Descriptor{Start: true, PictureID: 0x102, TemporalSupported: true, TL0PICIDX: 7, TID: 2, IsKeyFrame: true},
			offset:  6,
		},
		{
			name:    "Must parse 7 bit picture id",
			payload: []byte{0x90, 0x80, 0x05, 0x01},
			want:    VP8Descriptor{Start: true, PictureID: 5},
			offset:  3,
		},
		{
			name:    "Must parse descriptor without extension",
			payload: []byte{0x10, 0x00},
			want:    VP8Descriptor{Start: true, IsKeyFrame: true},
			offset:  1,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var got VP8Descriptor
			offset, err := got.Unmarshal(tt.payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestVP8Descriptor_RoundTrip(t *testing.T) {
	in := VP8Descriptor{Start: true, PictureID: 0x7fff, TemporalSupported: true, TL0PICIDX: 200, TID: 1, Y: true}
	buf := append(in.Marshal(), 0x01)

	var out VP8Descriptor
	offset, err := out.Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 6, offset)
}
