package stream

import (
	"context"
	"sync"

	"autopark.kz/internal/fleet"
)

// Stream fan-outs freshly appended change records to all active subscribers
// (SSE clients watching the fleet history feed).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan fleet.ChangeRecord
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan fleet.ChangeRecord)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// change records. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan fleet.ChangeRecord {
	ch := make(chan fleet.ChangeRecord, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// PublishChanges fan-outs each record to all subscribers.
func (s *Stream) PublishChanges(records []fleet.ChangeRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range records {
		for _, ch := range s.subs {
			select {
			case ch <- record:
			default:
				// Drop when subscriber is slow to avoid blocking.
			}
		}
	}
}
