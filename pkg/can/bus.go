package can

import (
	"errors"
	"time"
)

// Rx timeout used when none is configured
const DefaultRxTimeout = 1000 * time.Millisecond

var (
	ErrNotOpen   = errors.New("transport is not open")
	ErrRxTimeout = errors.New("no frame received before timeout")
)

// Parameters used when opening a transport.
// Queue sizes are in frames, timeouts in milliseconds
type OpenOptions struct {
	Net         uint32
	Mode        uint32
	TxQueueSize int
	RxQueueSize int
	TxTimeout   int
	RxTimeout   int
}

func (o OpenOptions) TxTimeoutDuration() time.Duration {
	return time.Duration(o.TxTimeout) * time.Millisecond
}

func (o OpenOptions) RxTimeoutDuration() time.Duration {
	return time.Duration(o.RxTimeout) * time.Millisecond
}

// A CAN transport, i.e. the driver that actually puts
// frames on the bus. Implementations are registered with [RegisterTransport]
type Transport interface {
	Open(opts OpenOptions) error           // Open the controller
	Close() error                          // Close the controller
	SetBaudRate(rate uint32) error         // Program bus bitrate in bit/s
	SetExtendedHeader() error              // Switch to 29-bit identifiers
	AddFilterID(id uint32) error           // Accept frames with this id
	Send(buf *FrameBuffer) error           // Send all valid frames of buf, in order
	Receive(max int) (*FrameBuffer, error) // Receive up to max frames
}
