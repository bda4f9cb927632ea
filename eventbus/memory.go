package eventbus

import (
	"context"
	"log"
	"sync"
)

// Sink receives orchestrator events. Publishing is fire-and-forget: callers
// log failures and move on, delivery is never part of run correctness.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// MemorySink keeps a bounded ring of recent events and fans them out to
// subscribers. The control API reads the ring; tests read the channels.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	max    int
	subs   map[int]chan Event
	nextID int
}

func NewMemorySink(max int) *MemorySink {
	if max <= 0 {
		max = 256
	}
	return &MemorySink{
		max:  max,
		subs: make(map[int]chan Event),
	}
}

func (s *MemorySink) Publish(ctx context.Context, evt Event) error {
	s.mu.Lock()
	s.events = append(s.events, evt)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber drops events rather than stalling the run.
		}
	}
	return nil
}

// Recent returns up to n most recent events, oldest first.
func (s *MemorySink) Recent(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out
}

// Subscribe returns a channel of future events and an unsubscribe func.
func (s *MemorySink) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// MultiSink publishes to every child sink, logging per-sink failures.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Publish(ctx context.Context, evt Event) error {
	for _, s := range m.sinks {
		if err := s.Publish(ctx, evt); err != nil {
			log.Printf("⚠️ event publish failed (%T): %v", s, err)
		}
	}
	return nil
}
