package store

import (
	"context"
	"sync"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
)

// Memory is an in-process Store. The mutex is held only around map access.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	opts     Options
	now      Clock
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts Options) *Memory {
	return &Memory{
		sessions: make(map[string]*domain.Session),
		opts:     opts,
		now:      opts.clock(),
	}
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.WrapSession("store.get", id, domain.ErrSessionNotFound)
	}
	if s.Expired(m.now(), m.opts.MaxAge) {
		delete(m.sessions, id)
		return nil, domain.WrapSession("store.get", id, domain.ErrSessionExpired)
	}
	return s.Clone(), nil
}

func (m *Memory) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return domain.WrapSession("store.create", s.ID, ErrDuplicate)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) Update(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return domain.WrapSession("store.update", s.ID, domain.ErrSessionNotFound)
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

func (m *Memory) CountActive(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, s := range m.sessions {
		if !s.Expired(now, m.opts.MaxAge) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if s.Expired(now, m.opts.MaxAge) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*domain.Session)
	return nil
}
