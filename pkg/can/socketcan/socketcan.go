//go:build linux

package socketcan

import (
	"fmt"
	"sync"

	sockcan "github.com/brutella/can"
	"github.com/samsamfire/gocanif/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Basic wrapper for socketcan it uses the implementation
// that can be found here : https://github.com/brutella/can
// Bitrate is programmed through netlink, see link.go

func init() {
	can.RegisterTransport("socketcan", NewTransport)
}

// Subset of brutella/can bus used by the transport
type frameBus interface {
	ConnectAndPublish() error
	Disconnect() error
	Publish(frame sockcan.Frame) error
	Subscribe(handler sockcan.Handler)
}

type Transport struct {
	mu       sync.Mutex
	channel  string
	bus      frameBus
	rx       *can.RxQueue
	opts     can.OpenOptions
	extended bool
	bitrate  uint32
	wg       sync.WaitGroup

	newBus     func(channel string) (frameBus, error)
	setBitrate func(channel string, rate uint32) error
}

// Create a socketcan transport for channel e.g. can0, vcan0
func NewTransport(channel string) (can.Transport, error) {
	return &Transport{
		channel:    channel,
		newBus:     newSocketcanBus,
		setBitrate: setLinkBitrate,
	}, nil
}

func newSocketcanBus(channel string) (frameBus, error) {
	return sockcan.NewBusForInterfaceWithName(channel)
}

// The link is brought down for the change and up again afterwards
func setLinkBitrate(channel string, rate uint32) error {
	link, err := newLink(channel)
	if err != nil {
		return err
	}
	if err := link.setUp(false); err != nil {
		return err
	}
	if err := link.setBitrate(rate); err != nil {
		return err
	}
	return link.setUp(true)
}

// Create bus socket and start reception, must be called with lock held
func (s *Transport) connect() error {
	bus, err := s.newBus(s.channel)
	if err != nil {
		return err
	}
	s.bus = bus
	// brutella/can defines a "Handle" interface for handling received CAN frames
	s.bus.Subscribe(s)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := bus.ConnectAndPublish(); err != nil {
			log.Errorf("[SOCKETCAN] %v reception stopped : %v", s.channel, err)
		}
	}()
	return nil
}

// Close bus socket and wait for reception to stop, must be called with lock held
func (s *Transport) disconnect() error {
	bus := s.bus
	s.bus = nil
	if bus == nil {
		return nil
	}
	err := bus.Disconnect()
	s.wg.Wait()
	return err
}

// "Open" implementation of Transport interface
func (s *Transport) Open(opts can.OpenOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus != nil {
		return nil
	}
	s.opts = opts
	s.rx = can.NewRxQueue(opts.RxQueueSize)
	if s.extended {
		s.rx.SetMask(can.CanEffMask)
	}
	if err := s.connect(); err != nil {
		return err
	}
	log.Debugf("[SOCKETCAN] opened %v", s.channel)
	return nil
}

// "Close" implementation of Transport interface
func (s *Transport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnect()
}

// "SetBaudRate" implementation of Transport interface
// Taking the link down invalidates the raw socket, so an open bus is
// closed before the change and a new one is created once the link is up.
// Queued frames and filters are kept
func (s *Transport) SetBaudRate(rate uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasOpen := s.bus != nil
	if wasOpen {
		if err := s.disconnect(); err != nil {
			log.Warnf("[SOCKETCAN] %v disconnect before bitrate change : %v", s.channel, err)
		}
	}
	err := s.setBitrate(s.channel, rate)
	if err == nil {
		s.bitrate = rate
	}
	if wasOpen {
		if cerr := s.connect(); cerr != nil {
			return fmt.Errorf("failed to reopen %v after bitrate change : %w", s.channel, cerr)
		}
	}
	return err
}

func (s *Transport) BaudRate() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitrate
}

// "SetExtendedHeader" implementation of Transport interface
func (s *Transport) SetExtendedHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extended = true
	if s.rx != nil {
		s.rx.SetMask(can.CanEffMask)
	}
	return nil
}

// "AddFilterID" implementation of Transport interface
func (s *Transport) AddFilterID(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus == nil {
		return can.ErrNotOpen
	}
	s.rx.AddFilter(id)
	return nil
}

// "Send" implementation of Transport interface
func (s *Transport) Send(buf *can.FrameBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus == nil {
		return can.ErrNotOpen
	}
	for _, frame := range buf.Frames() {
		if err := s.bus.Publish(toSocketcan(frame, s.extended)); err != nil {
			return fmt.Errorf("failed to send frame %v : %w", frame, err)
		}
	}
	return nil
}

// "Receive" implementation of Transport interface
func (s *Transport) Receive(max int) (*can.FrameBuffer, error) {
	s.mu.Lock()
	if s.bus == nil {
		s.mu.Unlock()
		return nil, can.ErrNotOpen
	}
	rx := s.rx
	timeout := s.opts.RxTimeoutDuration()
	s.mu.Unlock()
	if timeout <= 0 {
		timeout = can.DefaultRxTimeout
	}
	return rx.Receive(max, timeout)
}

// brutella/can specific "Handle" implementation
func (s *Transport) Handle(frame sockcan.Frame) {
	converted, ok := fromSocketcan(frame)
	if !ok {
		return
	}
	s.rx.Handle(converted)
}

// Convert frame to brutella frame, setting the socketcan id flags
func toSocketcan(frame can.Frame, extended bool) sockcan.Frame {
	id := frame.ID
	if extended || id > can.CanSffMask {
		id |= can.CanEffFlag
	}
	length := frame.Length
	if frame.RTR {
		id |= can.CanRtrFlag
		length = 0
	}
	return sockcan.Frame{ID: id, Length: length, Flags: 0, Res0: 0, Res1: 0, Data: frame.Data}
}

// Convert brutella frame to frame, error frames are discarded
func fromSocketcan(frame sockcan.Frame) (can.Frame, bool) {
	if frame.ID&can.CanErrFlag != 0 {
		return can.Frame{}, false
	}
	converted := can.Frame{ID: frame.ID & can.CanEffMask}
	if frame.ID&can.CanRtrFlag != 0 {
		converted.RTR = true
		return converted, true
	}
	length := frame.Length
	if length > can.MaxDataLength {
		length = can.MaxDataLength
	}
	converted.Length = length
	copy(converted.Data[:length], frame.Data[:length])
	return converted, true
}
