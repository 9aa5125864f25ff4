// Package inmem provides the default in-process session store. State lives
// only for the lifetime of the process, which is all the session tier
// requires.
package inmem

import (
	"context"
	"sync"

	"github.com/ChallaYogeswar/agentforge/core"
	"github.com/ChallaYogeswar/agentforge/memory"
)

// Store is a map-backed memory.SessionStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*memory.SessionState
}

// New creates an empty in-memory session store.
func New() *Store {
	return &Store{sessions: make(map[string]*memory.SessionState)}
}

// Get returns a copy of the stored state so callers can mutate freely before
// Put, matching the semantics of serialized remote stores.
func (s *Store) Get(ctx context.Context, sessionID string) (*memory.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return copyState(st), nil
}

func (s *Store) Put(ctx context.Context, state *memory.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[state.SessionID] = copyState(state)
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) SessionIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) Close() error {
	return nil
}

func copyState(st *memory.SessionState) *memory.SessionState {
	out := *st
	out.Turns = append([]core.Turn(nil), st.Turns...)
	out.Artifacts = append([]string(nil), st.Artifacts...)
	if st.Working != nil {
		out.Working = make(map[string]string, len(st.Working))
		for k, v := range st.Working {
			out.Working[k] = v
		}
	}
	return &out
}
