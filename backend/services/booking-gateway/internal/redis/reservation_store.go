// Package redisstore implements the gateway caches on redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/repository"
)

// ReservationStore caches acknowledged reservation projections.
type ReservationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReservationStore returns redis-backed store.
func NewReservationStore(client *redis.Client, ttl time.Duration) *ReservationStore {
	return &ReservationStore{client: client, ttl: ttl}
}

func (s *ReservationStore) key(id string) string {
	return fmt.Sprintf("gateway:reservations:%s", id)
}

// Save caches the reservation.
func (s *ReservationStore) Save(ctx context.Context, r *models.Reservation) error {
	if r == nil || r.ID == "" {
		return errors.New("reservation id is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(r.ID), data, s.ttl).Err()
}

// Get returns the cached reservation or repository.ErrReservationNotCached.
func (s *ReservationStore) Get(ctx context.Context, id string) (*models.Reservation, error) {
	result, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrReservationNotCached
	}
	if err != nil {
		return nil, err
	}
	var r models.Reservation
	if err := json.Unmarshal([]byte(result), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes the cached reservation.
func (s *ReservationStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
