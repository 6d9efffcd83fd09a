// Package history persists saved assessments, newest first.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("history record not found")

// ErrEmptyName is returned when a rename would leave a record without a name.
var ErrEmptyName = errors.New("history record name must not be empty")

// Store is the persisted history list. Records are immutable except for
// their name.
type Store interface {
	// Save prepends rec to the list.
	Save(ctx context.Context, rec models.HistoryRecord) error
	// List returns every record, newest first.
	List(ctx context.Context) ([]models.HistoryRecord, error)
	Get(ctx context.Context, id string) (models.HistoryRecord, error)
	Rename(ctx context.Context, id, name string) (models.HistoryRecord, error)
}

// MemoryStore keeps the history list in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.HistoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, rec models.HistoryRecord) error {
	rec.ConfigAtSave = rec.ConfigAtSave.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append([]models.HistoryRecord{rec}, s.records...)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		rec.ConfigAtSave = rec.ConfigAtSave.Clone()
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == id {
			rec.ConfigAtSave = rec.ConfigAtSave.Clone()
			return rec, nil
		}
	}
	return models.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *MemoryStore) Rename(_ context.Context, id, name string) (models.HistoryRecord, error) {
	name, err := cleanName(name)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Name = name
			rec := s.records[i]
			rec.ConfigAtSave = rec.ConfigAtSave.Clone()
			return rec, nil
		}
	}
	return models.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}
