package events

import (
	"sync"
	"time"
)

// DefaultCapacity bounds how many events one session retains.
const DefaultCapacity = 512

// Store keeps a bounded in-memory ring of events per session. Sessions are
// ephemeral, so nothing here is persisted.
type Store struct {
	capacity int

	mu       sync.RWMutex
	sessions map[string]*ring
}

type ring struct {
	events []Event
	seq    int64
}

// NewStore creates an event store. capacity <= 0 uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		sessions: make(map[string]*ring),
	}
}

// Emit appends an event to the session's stream, assigning Seq and Timestamp.
func (s *Store) Emit(sessionID string, typ EventType, experimentID string, data map[string]interface{}) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.sessions[sessionID]
	if !ok {
		r = &ring{}
		s.sessions[sessionID] = r
	}
	r.seq++
	e := Event{
		Seq:          r.seq,
		Type:         typ,
		SessionID:    sessionID,
		ExperimentID: experimentID,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
	r.events = append(r.events, e)
	if len(r.events) > s.capacity {
		r.events = r.events[len(r.events)-s.capacity:]
	}
	return e
}

// After returns all retained events of a session with Seq greater than seq.
func (s *Store) After(sessionID string, seq int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	var out []Event
	for _, e := range r.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Drop discards a session's stream when the session is destroyed.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
