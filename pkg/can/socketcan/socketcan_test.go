//go:build linux

package socketcan

import (
	"errors"
	"sync"
	"testing"
	"time"

	sockcan "github.com/brutella/can"
	"github.com/samsamfire/gocanif/pkg/can"
	"github.com/stretchr/testify/assert"
)

func TestToSocketcan(t *testing.T) {
	frame, _ := can.NewDataFrame(0x123, []byte{1, 2, 3})
	converted := toSocketcan(frame, false)
	assert.EqualValues(t, 0x123, converted.ID)
	assert.EqualValues(t, 3, converted.Length)
	assert.EqualValues(t, 3, converted.Data[2])

	converted = toSocketcan(frame, true)
	assert.Equal(t, 0x123|can.CanEffFlag, converted.ID)

	converted = toSocketcan(can.NewRemoteFrame(0x18FF0001), false)
	assert.Equal(t, 0x18FF0001|can.CanEffFlag|can.CanRtrFlag, converted.ID)
	assert.EqualValues(t, 0, converted.Length)
}

func TestFromSocketcan(t *testing.T) {
	frame, ok := fromSocketcan(sockcan.Frame{ID: 0x100, Length: 2, Data: [8]byte{9, 8, 7}})
	assert.True(t, ok)
	assert.Equal(t, []byte{9, 8}, frame.Payload())
	assert.False(t, frame.RTR)

	frame, ok = fromSocketcan(sockcan.Frame{ID: 0x100 | can.CanRtrFlag, Length: 8})
	assert.True(t, ok)
	assert.True(t, frame.RTR)
	assert.EqualValues(t, 0, frame.Length)
	assert.EqualValues(t, 0x10, frame.LenByte())

	frame, ok = fromSocketcan(sockcan.Frame{ID: 0x18FF0001 | can.CanEffFlag, Length: 1})
	assert.True(t, ok)
	assert.EqualValues(t, 0x18FF0001, frame.ID)

	_, ok = fromSocketcan(sockcan.Frame{ID: can.CanErrFlag | 0x4})
	assert.False(t, ok)
}

func TestBitTiming(t *testing.T) {
	raw := bitTiming(500_000)
	assert.Len(t, raw, sizeOfBitTiming)
	attrs, err := encodeBitrate(500_000)
	assert.Nil(t, err)
	assert.NotEmpty(t, attrs)
}

func TestNotOpen(t *testing.T) {
	transport, err := NewTransport("vcan0")
	assert.Nil(t, err)
	assert.Equal(t, can.ErrNotOpen, transport.Send(can.NewFrameBuffer()))
	assert.Equal(t, can.ErrNotOpen, transport.AddFilterID(0x100))
	_, err = transport.Receive(can.BufferSize)
	assert.Equal(t, can.ErrNotOpen, err)
	assert.Nil(t, transport.Close())
}

var errLink = errors.New("link failure")

// Bus blocking in ConnectAndPublish until disconnected, like a socket read loop
type fakeBus struct {
	events    *eventLog
	done      chan struct{}
	once      sync.Once
	handler   sockcan.Handler
	published []sockcan.Frame
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (b *fakeBus) ConnectAndPublish() error {
	<-b.done
	b.events.add("stopped")
	return nil
}

func (b *fakeBus) Disconnect() error {
	b.once.Do(func() {
		b.events.add("disconnect")
		close(b.done)
	})
	return nil
}

func (b *fakeBus) Publish(frame sockcan.Frame) error {
	b.published = append(b.published, frame)
	return nil
}

func (b *fakeBus) Subscribe(handler sockcan.Handler) {
	b.handler = handler
}

func createFakeTransport(linkErr error) (*Transport, *eventLog, *[]*fakeBus) {
	events := &eventLog{}
	buses := &[]*fakeBus{}
	transport := &Transport{
		channel: "vcan0",
		newBus: func(channel string) (frameBus, error) {
			events.add("connect")
			bus := &fakeBus{events: events, done: make(chan struct{})}
			*buses = append(*buses, bus)
			return bus, nil
		},
		setBitrate: func(channel string, rate uint32) error {
			events.add("bitrate")
			return linkErr
		},
	}
	return transport, events, buses
}

func TestSetBaudRateReconnects(t *testing.T) {
	transport, events, buses := createFakeTransport(nil)
	assert.Nil(t, transport.Open(can.OpenOptions{RxTimeout: 200}))
	assert.Nil(t, transport.AddFilterID(0x100))

	assert.Nil(t, transport.SetBaudRate(250_000))
	assert.EqualValues(t, 250_000, transport.BaudRate())
	assert.Equal(t, []string{"connect", "disconnect", "stopped", "bitrate", "connect"}, events.get())
	assert.Len(t, *buses, 2)

	// Reception works on the new bus, filters are kept
	bus := (*buses)[1]
	bus.handler.Handle(sockcan.Frame{ID: 0x200, Length: 1})
	bus.handler.Handle(sockcan.Frame{ID: 0x100, Length: 1, Data: [8]byte{7}})
	buf, err := transport.Receive(can.BufferSize)
	assert.Nil(t, err)
	assert.Equal(t, 1, buf.Len())
	frame, _ := buf.At(0)
	assert.Equal(t, []byte{7}, frame.Payload())

	frame, _ = can.NewDataFrame(0x100, []byte{1})
	assert.Nil(t, transport.Send(bufferOf(frame)))
	assert.Len(t, bus.published, 1)
	assert.Nil(t, transport.Close())
}

func TestSetBaudRateFailureKeepsBus(t *testing.T) {
	transport, events, _ := createFakeTransport(errLink)
	assert.Nil(t, transport.Open(can.OpenOptions{}))
	assert.ErrorIs(t, transport.SetBaudRate(250_000), errLink)
	assert.EqualValues(t, 0, transport.BaudRate())
	assert.Equal(t, []string{"connect", "disconnect", "stopped", "bitrate", "connect"}, events.get())
	assert.Nil(t, transport.Send(can.NewFrameBuffer()))
	assert.Nil(t, transport.Close())
}

func TestSetBaudRateClosed(t *testing.T) {
	transport, events, _ := createFakeTransport(nil)
	assert.Nil(t, transport.SetBaudRate(125_000))
	assert.Equal(t, []string{"bitrate"}, events.get())
}

func TestReceiveDefaultTimeout(t *testing.T) {
	transport, _, buses := createFakeTransport(nil)
	assert.Nil(t, transport.Open(can.OpenOptions{}))
	defer transport.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		(*buses)[0].handler.Handle(sockcan.Frame{ID: 0x100, Length: 2, Data: [8]byte{1, 2}})
	}()
	buf, err := transport.Receive(can.BufferSize)
	assert.Nil(t, err)
	assert.Equal(t, 1, buf.Len())
}

func bufferOf(frames ...can.Frame) *can.FrameBuffer {
	buf := can.NewFrameBuffer()
	for _, frame := range frames {
		_ = buf.Append(frame)
	}
	return buf
}
