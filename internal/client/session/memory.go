package session

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu      sync.RWMutex
	session Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := s.session
	if res.User != nil {
		u := *res.User
		res.User = &u
	}
	return res, nil
}

func (s *MemoryStore) Save(_ context.Context, session Session) error {
	if err := session.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session.User != nil {
		u := *session.User
		session.User = &u
	}
	s.session = session
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = Session{}
	return nil
}
