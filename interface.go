package canif

import (
	"fmt"
	"sync"

	"github.com/samsamfire/gocanif/pkg/can"
	"github.com/samsamfire/gocanif/pkg/codec"
	log "github.com/sirupsen/logrus"
)

// Interface wraps a CAN transport and keeps track of its configuration :
// controller parameters, baud rate, header mode and the last received
// batch of frames.
// Payloads are split in frames on write and rebuilt on read, see [codec.Encode]
type Interface struct {
	mu         sync.Mutex
	transport  can.Transport
	options    can.OpenOptions
	baudRate   uint32
	headerMode can.HeaderMode
	isOpen     bool
	rxBuffer   *can.FrameBuffer
}

// Create a new interface, nothing is done on the bus until [Interface.Open]
// By default the 11-bit standard header is used
func NewInterface(transport can.Transport, options can.OpenOptions) *Interface {
	return &Interface{
		transport:  transport,
		options:    options,
		headerMode: can.HeaderStandard,
	}
}

// Open the controller with the configured parameters
func (iface *Interface) Open() error {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if iface.transport == nil {
		return ErrIllegalArgument
	}
	if err := iface.transport.Open(iface.options); err != nil {
		log.Warnf("[CANIF] failed to open net %x : %v", iface.options.Net, err)
		return fmt.Errorf("open : %w", err)
	}
	iface.isOpen = true
	log.Debugf("[CANIF] opened net %x", iface.options.Net)
	return nil
}

// Close the controller
func (iface *Interface) Close() error {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if !iface.isOpen {
		return nil
	}
	iface.isOpen = false
	if err := iface.transport.Close(); err != nil {
		return fmt.Errorf("close : %w", err)
	}
	return nil
}

// Set bus baud rate in bit/s
func (iface *Interface) SetBaudRate(rate uint32) error {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if !iface.isOpen {
		return ErrInvalidState
	}
	if rate == 0 {
		return ErrIllegalBaudrate
	}
	iface.baudRate = rate
	if err := iface.transport.SetBaudRate(rate); err != nil {
		log.Warnf("[CANIF] failed to set baud rate %v : %v", rate, err)
		return fmt.Errorf("set baud rate : %w", err)
	}
	return nil
}

// Last baud rate requested
func (iface *Interface) BaudRate() uint32 {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	return iface.baudRate
}

// Switch to 29-bit extended identifiers.
// Header mode is only updated if the transport accepted the change
func (iface *Interface) SetExtendedHeader() error {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if !iface.isOpen {
		return ErrInvalidState
	}
	if err := iface.transport.SetExtendedHeader(); err != nil {
		log.Warnf("[CANIF] failed to enable extended header : %v", err)
		return fmt.Errorf("set extended header : %w", err)
	}
	iface.headerMode = can.HeaderExtended
	return nil
}

func (iface *Interface) HeaderMode() can.HeaderMode {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	return iface.headerMode
}

// Own identifier, as given when creating the interface
func (iface *Interface) Net() uint32 {
	return iface.options.Net
}

// Register an identifier to monitor
func (iface *Interface) AddCanID(id uint32) error {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if !iface.isOpen {
		return ErrInvalidState
	}
	if !iface.headerMode.ValidID(id) {
		return fmt.Errorf("%w : id %x does not fit %v header", ErrIllegalArgument, id, iface.headerMode)
	}
	if err := iface.transport.AddFilterID(id); err != nil {
		return fmt.Errorf("add id %x : %w", id, err)
	}
	return nil
}

// Send data using id in the arbitration field.
// Data is split in 8 byte frames, a remote request sends a single empty frame.
// If data needs more than [can.BufferSize] frames, nothing is sent
// and [ErrOperationAborted] is returned
func (iface *Interface) WriteDataFrame(id uint32, data []byte, rtr bool) error {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if !iface.isOpen {
		return ErrInvalidState
	}
	if !iface.headerMode.ValidID(id) {
		return fmt.Errorf("%w : id %x does not fit %v header", ErrIllegalArgument, id, iface.headerMode)
	}
	buf, err := codec.Encode(id, data, rtr)
	if err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}
	log.Debugf("[CANIF][TX] id %x, %v bytes in %v frames, rtr %v", id, len(data), buf.Len(), rtr)
	if err := iface.transport.Send(buf); err != nil {
		log.Warnf("[CANIF][TX] failed to send to %x : %v", id, err)
		return fmt.Errorf("send : %w", err)
	}
	return nil
}

// Send data using the interface own identifier
func (iface *Interface) WriteOwn(data []byte) error {
	return iface.WriteDataFrame(iface.options.Net, data, false)
}

// Receive up to [can.BufferSize] frames from the bus.
// Frames are kept until the next call and can be accessed with
// [Interface.MessageBuffer], [Interface.CheckRTR] and [Interface.Payload]
// The lock is not held while waiting so writes can proceed meanwhile
func (iface *Interface) ReadCANMessage() error {
	iface.mu.Lock()
	if !iface.isOpen {
		iface.mu.Unlock()
		return ErrInvalidState
	}
	transport := iface.transport
	iface.mu.Unlock()

	buf, err := transport.Receive(can.BufferSize)
	if err != nil {
		return fmt.Errorf("receive : %w", err)
	}
	if buf == nil {
		return fmt.Errorf("receive : %w", can.ErrRxTimeout)
	}
	iface.mu.Lock()
	defer iface.mu.Unlock()
	iface.rxBuffer = buf
	log.Debugf("[CANIF][RX] received %v frames", buf.Len())
	return nil
}

// Copy of the last received frames, empty if nothing was received
func (iface *Interface) MessageBuffer() *can.FrameBuffer {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if iface.rxBuffer == nil {
		return can.NewFrameBuffer()
	}
	return iface.rxBuffer.Clone()
}

// Check if the received frame at index is a remote request
func (iface *Interface) CheckRTR(index int) (bool, error) {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if iface.rxBuffer == nil {
		return false, ErrNoMessage
	}
	return codec.IsRTR(iface.rxBuffer, index)
}

// Data of the last received frames, concatenated in reception order
func (iface *Interface) Payload() []byte {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	if iface.rxBuffer == nil {
		return []byte{}
	}
	return codec.ExtractPayload(iface.rxBuffer)
}
