package can

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultRxQueueSize = 256

// Bounded queue of received frames with identifier filtering.
// Transports feed it from their reception routine with [RxQueue.Handle]
// and serve [Transport.Receive] with [RxQueue.Receive]
type RxQueue struct {
	mu      sync.Mutex
	frames  chan Frame
	filters map[uint32]struct{}
	mask    uint32
	dropped uint64
}

func NewRxQueue(size int) *RxQueue {
	if size <= 0 {
		size = DefaultRxQueueSize
	}
	return &RxQueue{
		frames:  make(chan Frame, size),
		filters: make(map[uint32]struct{}),
		mask:    CanSffMask,
	}
}

// Identifier mask applied before filtering
func (q *RxQueue) SetMask(mask uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mask = mask
}

// Accept frames with this identifier. With no filter, every frame is accepted
func (q *RxQueue) AddFilter(id uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.filters[id] = struct{}{}
}

func (q *RxQueue) accepts(id uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id&^q.mask != 0 {
		return false
	}
	if len(q.filters) == 0 {
		return true
	}
	_, ok := q.filters[id]
	return ok
}

// Queue a received frame, returns false if frame was filtered out or dropped
func (q *RxQueue) Handle(frame Frame) bool {
	if !q.accepts(frame.ID) {
		return false
	}
	select {
	case q.frames <- frame:
		return true
	default:
		q.mu.Lock()
		q.dropped++
		dropped := q.dropped
		q.mu.Unlock()
		log.WithFields(log.Fields{"id": frame.ID, "dropped": dropped}).Warn("[CAN] rx queue full, dropping frame")
		return false
	}
}

// Number of frames dropped because the queue was full
func (q *RxQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Wait up to timeout for a first frame then collect up to max queued frames.
// A timeout <= 0 only collects frames that are already queued
func (q *RxQueue) Receive(max int, timeout time.Duration) (*FrameBuffer, error) {
	if max <= 0 || max > BufferSize {
		max = BufferSize
	}
	buf := NewFrameBuffer()
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case frame := <-q.frames:
			_ = buf.Append(frame)
		case <-timer.C:
			return nil, ErrRxTimeout
		}
	}
	for buf.Len() < max {
		select {
		case frame := <-q.frames:
			_ = buf.Append(frame)
		default:
			if buf.Len() == 0 {
				return nil, ErrRxTimeout
			}
			return buf, nil
		}
	}
	return buf, nil
}

// Discard all queued frames
func (q *RxQueue) Flush() {
	for {
		select {
		case <-q.frames:
		default:
			return
		}
	}
}
