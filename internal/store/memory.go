package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store and CredentialStore.
type Memory struct {
	mu      sync.Mutex
	rec     Record
	refresh string
	closed  bool
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Load(context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, ErrClosed
	}
	r := m.rec
	if r.User != nil {
		u := *r.User
		r.User = &u
	}
	return r, nil
}

func (m *Memory) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if r.User != nil {
		u := *r.User
		r.User = &u
	}
	r.UpdatedAt = m.now()
	m.rec = r
	return nil
}

func (m *Memory) SaveToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.rec.User == nil {
		return nil
	}
	m.rec.Token = token
	m.rec.UpdatedAt = m.now()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rec = Record{UpdatedAt: m.now()}
	return nil
}

func (m *Memory) LoadRefreshToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	return m.refresh, nil
}

func (m *Memory) SaveRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.refresh = token
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
