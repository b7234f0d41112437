package transport

import (
	"encoding/binary"
)

// VP8Descriptor is the VP8 payload descriptor written in front of every
// encoded frame, see https://tools.ietf.org/html/rfc7741
/*
	VP8 Payload Descriptor
			0 1 2 3 4 5 6 7
			+-+-+-+-+-+-+-+-+
			|X|R|N|S|R| PID | (REQUIRED)
			+-+-+-+-+-+-+-+-+
		X:  |I|L|T|K| RSV   | (OPTIONAL)
			+-+-+-+-+-+-+-+-+
		I:  |M| PictureID   | (OPTIONAL)
			+-+-+-+-+-+-+-+-+
			|   PictureID   |
			+-+-+-+-+-+-+-+-+
		L:  |   TL0PICIDX   | (OPTIONAL)
			+-+-+-+-+-+-+-+-+
		T/K:|TID|Y| KEYIDX  | (OPTIONAL)
			+-+-+-+-+-+-+-+-+
*/
type VP8Descriptor struct {
	// Start marks the first packet of a partition.
	Start bool
	// PictureID is written as a 15 bit value.
	PictureID uint16
	// TemporalSupported adds the L and T fields.
	TemporalSupported bool
	TL0PICIDX         uint8
	TID               uint8
	Y                 bool
	// IsKeyFrame is read from the P bit of the VP8 payload header.
	IsKeyFrame bool
}

// Marshal writes the descriptor. The picture id always uses the 15 bit form.
func (p *VP8Descriptor) Marshal() []byte {
	size := 4
	if p.TemporalSupported {
		size += 2
	}
	buf := make([]byte, size)
	buf[0] = 0x80
	if p.Start {
		buf[0] |= 0x10
	}
	buf[1] = 0x80
	if p.TemporalSupported {
		buf[1] |= 0x40 | 0x20
	}
	binary.BigEndian.PutUint16(buf[2:], p.PictureID&0x7fff)
	buf[2] |= 0x80
	if p.TemporalSupported {
		buf[4] = p.TL0PICIDX
		buf[5] = (p.TID & 0x03) << 6
		if p.Y {
			buf[5] |= 0x20
		}
	}
	return buf
}

// Unmarshal parses a payload starting with a VP8 payload descriptor and
// returns the offset of the VP8 payload.
func (p *VP8Descriptor) Unmarshal(payload []byte) (int, error) {
	if payload == nil {
		return 0, errNilPacket
	}
	payloadLen := len(payload)
	if payloadLen < 2 {
		return 0, errShortPacket
	}

	idx := 0
	p.Start = payload[idx]&0x10 > 0
	if payload[idx]&0x80 > 0 {
		idx++
		p.TemporalSupported = payload[idx]&0x20 > 0
		k := payload[idx]&0x10 > 0
		l := payload[idx]&0x40 > 0
		if payload[idx]&0x80 > 0 {
			idx++
			if idx >= payloadLen {
				return 0, errShortPacket
			}
			pid := payload[idx] & 0x7f
			// M bit set: 15 bit picture id
			if payload[idx]&0x80 > 0 {
				idx++
				if idx >= payloadLen {
					return 0, errShortPacket
				}
				p.PictureID = binary.BigEndian.Uint16([]byte{pid, payload[idx]})
			} else {
				p.PictureID = uint16(pid)
			}
		}
		if l {
			idx++
			if idx >= payloadLen {
				return 0, errShortPacket
			}
			p.TL0PICIDX = payload[idx]
		}
		if p.TemporalSupported || k {
			idx++
			if idx >= payloadLen {
				return 0, errShortPacket
			}
			p.TID = (payload[idx] & 0xc0) >> 6
			p.Y = payload[idx]&0x20 > 0
		}
	}
	idx++
	if idx >= payloadLen {
		return 0, errShortPacket
	}
	p.IsKeyFrame = payload[idx]&0x01 == 0 && p.Start
	return idx, nil
}
