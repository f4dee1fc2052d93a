package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type distinguishes data frames from acknowledgments.
type Type uint8

const (
	TypeData Type = 0x01
	TypeAck  Type = 0x02
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}

const (
	HeaderSize   = 22
	MaxFrameSize = 127 // aMaxPHYPacketSize
	MaxPayload   = MaxFrameSize - HeaderSize

	flagSeq uint8 = 0x01
)

var (
	ErrShortFrame    = errors.New("buffer too short for frame header")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrUnknownType   = errors.New("unknown frame type")
)

// Frame is a MAC frame. Seq is only meaningful when HasSeq is set, which is
// the case for unicast data sent with acknowledgments enabled.
type Frame struct {
	Type    Type
	Dst     Address
	Src     Address
	Seq     uint32
	HasSeq  bool
	Payload []byte
}

// NewAck builds the acknowledgment for a data frame received from dst.
func NewAck(src, dst Address, seq uint32) *Frame {
	return &Frame{Type: TypeAck, Src: src, Dst: dst, Seq: seq, HasSeq: true}
}

func (f *Frame) Len() int { return HeaderSize + len(f.Payload) }

func (f *Frame) Encode() ([]byte, error) {
	if f.Len() > MaxFrameSize {
		return nil, fmt.Errorf("%w (%d B)", ErrFrameTooLarge, f.Len())
	}
	buf := make([]byte, f.Len())
	binary.LittleEndian.PutUint64(buf[0:8], uint64(f.Dst))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(f.Src))
	binary.LittleEndian.PutUint32(buf[16:20], f.Seq)
	buf[20] = uint8(f.Type)
	if f.HasSeq {
		buf[21] |= flagSeq
	}
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

func Decode(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) < HeaderSize {
		return f, ErrShortFrame
	}
	if len(buf) > MaxFrameSize {
		return f, fmt.Errorf("%w (%d B)", ErrFrameTooLarge, len(buf))
	}
	f.Dst = Address(binary.LittleEndian.Uint64(buf[0:8]))
	f.Src = Address(binary.LittleEndian.Uint64(buf[8:16]))
	f.Seq = binary.LittleEndian.Uint32(buf[16:20])
	f.Type = Type(buf[20])
	f.HasSeq = buf[21]&flagSeq != 0
	if f.Type != TypeData && f.Type != TypeAck {
		return f, fmt.Errorf("%w: %d", ErrUnknownType, buf[20])
	}
	if len(buf) > HeaderSize {
		f.Payload = append([]byte(nil), buf[HeaderSize:]...)
	}
	return f, nil
}
