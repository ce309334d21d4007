package healthcheck

import "sync"

// Stream is a current-value broadcast: new subscribers immediately receive
// the last published snapshot, and later publishes are delivered to every
// subscriber. Slow subscribers only ever see the latest value; intermediate
// snapshots are coalesced away rather than queued.
type Stream struct {
	mu     sync.Mutex
	last   Snapshot
	closed bool
	subs   map[int]chan Snapshot
	nextID int
}

// NewStream creates a Stream holding the given initial value.
func NewStream(initial Snapshot) *Stream {
	return &Stream{
		last: initial,
		subs: make(map[int]chan Snapshot),
	}
}

// Get returns the current value.
func (s *Stream) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Publish replaces the current value and notifies subscribers.
func (s *Stream) Publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = snap
	for _, ch := range s.subs {
		offer(ch, snap)
	}
}

// offer delivers snap without blocking, displacing a pending value so the
// channel always holds the most recent snapshot.
func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned channel immediately holds
// the current value. The cancel function removes the subscription and
// closes the channel; it is safe to call more than once.
func (s *Stream) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- s.last

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close unsubscribes everyone and rejects further publishes. Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
