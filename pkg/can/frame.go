package can

import (
	"errors"
	"fmt"
)

const (
	// Max number of frames in a single tx or rx batch
	BufferSize = 25
	// Max number of data bytes in a classical CAN frame
	MaxDataLength = 8

	// Bit of the wire length byte carrying the RTR flag
	RtrBit uint8 = 1 << 4
	// Bits of the wire length byte carrying the data length
	LengthMask uint8 = 0x0F
)

// SocketCAN style identifier flags and masks
const (
	CanEffFlag uint32 = 0x80000000
	CanRtrFlag uint32 = 0x40000000
	CanErrFlag uint32 = 0x20000000
	CanSffMask uint32 = 0x000007FF
	CanEffMask uint32 = 0x1FFFFFFF
)

var (
	ErrBufferFull       = errors.New("frame buffer is full")
	ErrIndexOutOfRange  = errors.New("frame index out of range")
	ErrInvalidLength    = errors.New("invalid data length")
	ErrInvalidRtrLength = errors.New("remote frame cannot carry data")
)

// A CAN frame.
// Length and RTR are kept apart and only merged into the
// single wire byte by transports, see [Frame.LenByte]
type Frame struct {
	ID     uint32
	Length uint8
	RTR    bool
	Data   [MaxDataLength]byte
}

// Create a data frame, data longer than 8 bytes is refused
func NewDataFrame(id uint32, data []byte) (Frame, error) {
	if len(data) > MaxDataLength {
		return Frame{}, ErrInvalidLength
	}
	frame := Frame{ID: id, Length: uint8(len(data))}
	copy(frame.Data[:], data)
	return frame, nil
}

// Create a remote transmission request frame
func NewRemoteFrame(id uint32) Frame {
	return Frame{ID: id, RTR: true}
}

// Valid data bytes of the frame
func (f Frame) Payload() []byte {
	return f.Data[:f.Length]
}

// Wire representation of length and RTR : len | rtr << 4
func (f Frame) LenByte() uint8 {
	b := f.Length & LengthMask
	if f.RTR {
		b |= RtrBit
	}
	return b
}

// Split a wire length byte into data length and RTR flag
func ParseLenByte(b uint8) (length uint8, rtr bool, err error) {
	length = b & LengthMask
	rtr = b&RtrBit != 0
	if length > MaxDataLength {
		return 0, false, fmt.Errorf("%w : %v", ErrInvalidLength, length)
	}
	if rtr && length != 0 {
		return 0, false, ErrInvalidRtrLength
	}
	return length, rtr, nil
}

// Build a frame from its wire fields
func FrameFromWire(id uint32, lenByte uint8, data [MaxDataLength]byte) (Frame, error) {
	length, rtr, err := ParseLenByte(lenByte)
	if err != nil {
		return Frame{}, err
	}
	frame := Frame{ID: id, Length: length, RTR: rtr}
	copy(frame.Data[:length], data[:length])
	return frame, nil
}

func (f Frame) String() string {
	if f.RTR {
		return fmt.Sprintf("%x [R]", f.ID)
	}
	return fmt.Sprintf("%x [%d] % X", f.ID, f.Length, f.Data[:f.Length])
}
