package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/samsamfire/gocanif/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Virtual CAN transport over TCP, primarily used for testing
// This needs a broker server to send CAN frames to all connected clients
// e.g. [Broker] or https://github.com/windelbouwman/virtualcan

func init() {
	can.RegisterTransport("virtual", NewTransport)
	can.RegisterTransport("virtualcan", NewTransport)
}

const (
	defaultTxTimeout = 10 * time.Millisecond
	pollTimeout      = 200 * time.Millisecond
	frameSize        = 13
)

var ErrNoConnection = errors.New("no active connection, abort send")

// Frame layout on the TCP stream, after the 4 byte length prefix
type wireFrame struct {
	ID   uint32
	Len  uint8
	Data [can.MaxDataLength]byte
}

type Transport struct {
	mu         sync.Mutex
	channel    string
	conn       net.Conn
	opts       can.OpenOptions
	rx         *can.RxQueue
	receiveOwn bool
	isOpen     bool
	bitrate    uint32
	extended   bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

// Create a virtual transport for the broker at channel e.g. localhost:18888
// An empty channel gives a transport with no connection, only useful with receive own
func NewTransport(channel string) (can.Transport, error) {
	return &Transport{channel: channel}, nil
}

// Helper function for serializing a CAN frame into the expected binary format
func serializeFrame(frame can.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	wf := wireFrame{ID: frame.ID, Len: frame.LenByte(), Data: frame.Data}
	if err := binary.Write(buffer, binary.BigEndian, wf); err != nil {
		return nil, err
	}
	dataBytes := buffer.Bytes()
	frameBytes := make([]byte, 4, 4+len(dataBytes))
	binary.BigEndian.PutUint32(frameBytes, uint32(len(dataBytes)))
	frameBytes = append(frameBytes, dataBytes...)
	return frameBytes, nil
}

// Helper function for deserializing a CAN frame from expected binary format
func deserializeFrame(buffer []byte) (can.Frame, error) {
	var wf wireFrame
	if err := binary.Read(bytes.NewReader(buffer), binary.BigEndian, &wf); err != nil {
		return can.Frame{}, err
	}
	return can.FrameFromWire(wf.ID, wf.Len, wf.Data)
}

// "Open" connects to the broker, if any, and starts reception
func (b *Transport) Open(opts can.OpenOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isOpen {
		return nil
	}
	b.opts = opts
	b.rx = can.NewRxQueue(opts.RxQueueSize)
	if b.extended {
		b.rx.SetMask(can.CanEffMask)
	}
	if b.channel != "" {
		conn, err := net.Dial("tcp", b.channel)
		if err != nil {
			return err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := tcpConn.SetNoDelay(true); err != nil {
				conn.Close()
				return err
			}
		}
		b.conn = conn
		b.stopChan = make(chan struct{})
		b.wg.Add(1)
		go b.handleReception(conn, b.stopChan)
		log.Debugf("[VIRTUAL] connected to %v", b.channel)
	}
	b.isOpen = true
	return nil
}

// "Close" stops reception and disconnects from the broker
func (b *Transport) Close() error {
	b.mu.Lock()
	if !b.isOpen {
		b.mu.Unlock()
		return nil
	}
	b.isOpen = false
	conn := b.conn
	b.conn = nil
	if b.stopChan != nil {
		close(b.stopChan)
		b.stopChan = nil
	}
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	b.wg.Wait()
	log.Debugf("[VIRTUAL] closed %v", b.channel)
	return err
}

// There is no physical bus, bitrate is only recorded
func (b *Transport) SetBaudRate(rate uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bitrate = rate
	return nil
}

func (b *Transport) BaudRate() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bitrate
}

func (b *Transport) SetExtendedHeader() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extended = true
	if b.rx != nil {
		b.rx.SetMask(can.CanEffMask)
	}
	return nil
}

func (b *Transport) AddFilterID(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return can.ErrNotOpen
	}
	b.rx.AddFilter(id)
	return nil
}

// "Send" every frame of buf, in order
func (b *Transport) Send(buf *can.FrameBuffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return can.ErrNotOpen
	}
	if b.conn == nil && !b.receiveOwn {
		return ErrNoConnection
	}
	txTimeout := b.opts.TxTimeoutDuration()
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	for _, frame := range buf.Frames() {
		// Local loopback
		if b.receiveOwn {
			b.rx.Handle(frame)
		}
		if b.conn == nil {
			continue
		}
		frameBytes, err := serializeFrame(frame)
		if err != nil {
			return err
		}
		_ = b.conn.SetWriteDeadline(time.Now().Add(txTimeout))
		if _, err := b.conn.Write(frameBytes); err != nil {
			return fmt.Errorf("failed to send frame %v : %w", frame, err)
		}
	}
	return nil
}

// "Receive" up to max frames, waiting for the configured rx timeout
func (b *Transport) Receive(max int) (*can.FrameBuffer, error) {
	b.mu.Lock()
	if !b.isOpen {
		b.mu.Unlock()
		return nil, can.ErrNotOpen
	}
	rx := b.rx
	rxTimeout := b.opts.RxTimeoutDuration()
	b.mu.Unlock()
	if rxTimeout <= 0 {
		rxTimeout = can.DefaultRxTimeout
	}
	return rx.Receive(max, rxTimeout)
}

// Receive one frame from the broker connection
func recv(conn net.Conn) (can.Frame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(pollTimeout))
	headerBytes := make([]byte, 4)
	if _, err := io.ReadFull(conn, headerBytes); err != nil {
		return can.Frame{}, err
	}
	length := binary.BigEndian.Uint32(headerBytes)
	if length != frameSize {
		return can.Frame{}, fmt.Errorf("error deserializing : expected %v, got %v", frameSize, length)
	}
	frameBytes := make([]byte, length)
	_ = conn.SetReadDeadline(time.Now().Add(pollTimeout))
	if _, err := io.ReadFull(conn, frameBytes); err != nil {
		return can.Frame{}, err
	}
	return deserializeFrame(frameBytes)
}

// Handle incoming traffic
func (b *Transport) handleReception(conn net.Conn, stop chan struct{}) {
	defer b.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, err := recv(conn)
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			// No message received, this is OK
			continue
		}
		if err != nil {
			select {
			case <-stop:
			default:
				log.Errorf("[VIRTUAL] listening routine has closed because : %v", err)
			}
			return
		}
		b.rx.Handle(frame)
	}
}

// Loop sent frames back into the receive queue
func (b *Transport) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveOwn = receiveOwn
}
