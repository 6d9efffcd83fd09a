package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

type ManagerConfig struct {
	IdleTimeout     time.Duration // sessions untouched for this long are dropped
	CleanupInterval time.Duration
}

// Manager keeps one isolated Session per assessment. Operations on the same
// session are serialised; different sessions never share state.
type Manager struct {
	config   ManagerConfig
	logger   *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	session  *Session
	lastUsed time.Time
}

func NewManager(config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// Start begins a new assessment from cfg and returns its id.
func (m *Manager) Start(source Source, cfg models.WorkloadConfig) string {
	id := uuid.NewString()
	s := New(id, source, cfg, m.logger)

	m.mu.Lock()
	m.sessions[id] = &entry{session: s, lastUsed: time.Now()}
	m.mu.Unlock()

	m.logger.Info("assessment started", "session_id", id, "source", source)
	return id
}

// With runs fn with exclusive access to the session.
func (m *Manager) With(id string, fn func(*Session) error) error {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = time.Now()
	return fn(e.session)
}

// End discards a session.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run evicts idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.config.CleanupInterval <= 0 || m.config.IdleTimeout <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.evictIdle(time.Now()); n > 0 {
				m.logger.Info("idle assessments evicted", "count", n)
			}
		}
	}
}

func (m *Manager) evictIdle(now time.Time) int {
	cutoff := now.Add(-m.config.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted int
	for id, e := range m.sessions {
		e.mu.Lock()
		idle := e.lastUsed.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}
