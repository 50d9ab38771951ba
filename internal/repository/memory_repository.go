package repository

import (
	"context"
	"sync"

	"github.com/abelzeko/riverflow/internal/entities"
)

// MemoryStatusRepository holds the latest status in process memory
type MemoryStatusRepository struct {
	status entities.Status
	saved  bool
	mutex  sync.RWMutex
}

// NewMemoryStatusRepository creates an empty in-memory repository
func NewMemoryStatusRepository() *MemoryStatusRepository {
	return &MemoryStatusRepository{}
}

// SaveStatus replaces the stored status
func (r *MemoryStatusRepository) SaveStatus(_ context.Context, status entities.Status) error {
	rivers := make([]entities.RiverView, len(status.Rivers))
	copy(rivers, status.Rivers)
	status.Rivers = rivers

	r.mutex.Lock()
	r.status = status
	r.saved = true
	r.mutex.Unlock()
	return nil
}

// GetStatus returns a copy of the stored status, or a loading status before the first save
func (r *MemoryStatusRepository) GetStatus(_ context.Context) (entities.Status, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if !r.saved {
		return entities.LoadingStatus(), nil
	}
	status := r.status
	status.Rivers = make([]entities.RiverView, len(r.status.Rivers))
	copy(status.Rivers, r.status.Rivers)
	return status, nil
}

// Close is a no-op
func (r *MemoryStatusRepository) Close() error {
	return nil
}
