package virtual

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Minimal virtualcan broker : every length prefixed message received
// from a client is forwarded to all the other connected clients
type Broker struct {
	mu       sync.Mutex
	listener net.Listener
	clients  map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// Start listening on addr e.g. "localhost:18888" or "127.0.0.1:0"
func NewBroker(addr string) (*Broker, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	broker := &Broker{listener: listener, clients: make(map[net.Conn]struct{})}
	broker.wg.Add(1)
	go broker.serve()
	log.Infof("[BROKER] listening on %v", listener.Addr())
	return broker, nil
}

// Address the broker is listening on
func (b *Broker) Addr() string {
	return b.listener.Addr().String()
}

// Number of connected clients
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broker) serve() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Errorf("[BROKER] accept failed : %v", err)
			}
			return
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()
		log.Debugf("[BROKER] new client %v", conn.RemoteAddr())
		b.wg.Add(1)
		go b.forward(conn)
	}
}

// Largest message body accepted from a client
const maxMessageSize = 1024

// Read one length prefixed message, prefix included
func readMessage(conn net.Conn) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxMessageSize {
		return nil, fmt.Errorf("message of %v bytes exceeds %v", length, maxMessageSize)
	}
	message := make([]byte, 4+length)
	copy(message, header)
	if _, err := io.ReadFull(conn, message[4:]); err != nil {
		return nil, err
	}
	return message, nil
}

// Relay complete messages from conn so that writes of
// different clients are never interleaved
func (b *Broker) forward(conn net.Conn) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()
	for {
		message, err := readMessage(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Debugf("[BROKER] client %v disconnected : %v", conn.RemoteAddr(), err)
			}
			return
		}
		b.mu.Lock()
		for client := range b.clients {
			if client == conn {
				continue
			}
			if _, werr := client.Write(message); werr != nil {
				log.Warnf("[BROKER] failed to forward to %v : %v", client.RemoteAddr(), werr)
			}
		}
		b.mu.Unlock()
	}
}

// Close the listener and every client connection
func (b *Broker) Close() error {
	err := b.listener.Close()
	b.mu.Lock()
	for client := range b.clients {
		client.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return err
}
