package events

import (
	"sync"
	"sync/atomic"

	"github.com/kelindar/event"
)

// Stream merges bus events of several types onto one channel for a select
// loop, such as an SSE handler's. Delivery never blocks the bus: when the
// reader falls behind, events are dropped and counted.
type Stream struct {
	ch      chan any
	dropped atomic.Uint64

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewStream creates a stream whose channel buffers size events.
func NewStream(size int) *Stream {
	return &Stream{ch: make(chan any, size)}
}

// Forward adds events of type T published on bus to s. It is a no-op on a
// closed stream.
func Forward[T Event](s *Stream, bus *Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.unsubs = append(s.unsubs, event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}))
}

// C returns the channel events arrive on. It is never closed.
func (s *Stream) C() <-chan any {
	return s.ch
}

// Dropped returns how many events did not fit in the buffer.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes from every forwarded type. It is safe to call twice.
func (s *Stream) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.closed = true
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
