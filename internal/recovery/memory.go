package recovery

import (
	"context"
	"sync"

	"github.com/example/studyflow/pkg/models"
)

type key struct {
	userID   string
	lessonID int
}

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[key]models.SessionSnapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[key]models.SessionSnapshot)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, snap models.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key{snap.UserID, snap.LessonID}] = snap.Clone()
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, userID string, lessonID int) (*models.SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[key{userID, lessonID}]
	if !ok {
		return nil, nil
	}
	c := snap.Clone()
	return &c, nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, userID string, lessonID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, key{userID, lessonID})
	return nil
}

// FindLive implements Store. Ties on UpdatedAt go to the lower lesson id.
func (m *MemoryStore) FindLive(_ context.Context, userID string) (*models.SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *models.SessionSnapshot
	for k, snap := range m.snapshots {
		if k.userID != userID || snap.Status != models.StatusInProgress {
			continue
		}
		if best == nil || snap.UpdatedAt.After(best.UpdatedAt) ||
			(snap.UpdatedAt.Equal(best.UpdatedAt) && snap.LessonID < best.LessonID) {
			c := snap.Clone()
			best = &c
		}
	}
	return best, nil
}
