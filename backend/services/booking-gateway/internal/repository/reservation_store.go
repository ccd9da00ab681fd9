package repository

import (
	"context"
	"errors"
	"sync"

	"chargebook/backend/services/booking-gateway/internal/models"
)

// ErrReservationNotCached is returned on a cache miss.
var ErrReservationNotCached = errors.New("reservation not cached")

// ReservationStore caches acknowledged reservation projections by id.
type ReservationStore interface {
	Save(ctx context.Context, r *models.Reservation) error
	Get(ctx context.Context, id string) (*models.Reservation, error)
	Delete(ctx context.Context, id string) error
}

// MemoryReservationStore is an in-process ReservationStore.
type MemoryReservationStore struct {
	mu    sync.RWMutex
	items map[string]*models.Reservation
}

// NewMemoryReservationStore builds an empty store.
func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{items: make(map[string]*models.Reservation)}
}

func (m *MemoryReservationStore) Save(_ context.Context, r *models.Reservation) error {
	if r == nil || r.ID == "" {
		return errors.New("reservation id is required")
	}
	m.mu.Lock()
	m.items[r.ID] = r.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryReservationStore) Get(_ context.Context, id string) (*models.Reservation, error) {
	m.mu.RLock()
	r, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrReservationNotCached
	}
	return r.Clone(), nil
}

func (m *MemoryReservationStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}
