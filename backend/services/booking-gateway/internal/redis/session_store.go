package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chargebook/backend/services/booking-gateway/internal/policy"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// SessionStore keeps login sessions until their token expires.
type SessionStore struct {
	client      *redis.Client
	clock       policy.Clock
	fallbackTTL time.Duration
}

// NewSessionStore returns redis-backed store. fallbackTTL applies to sessions without an expiry.
func NewSessionStore(client *redis.Client, clock policy.Clock, fallbackTTL time.Duration) *SessionStore {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	return &SessionStore{client: client, clock: clock, fallbackTTL: fallbackTTL}
}

func (s *SessionStore) key(id string) string {
	return fmt.Sprintf("gateway:sessions:%s", id)
}

// Save caches the session with a TTL ending at its expiry.
func (s *SessionStore) Save(ctx context.Context, sess session.Session) error {
	if sess.ID == "" || sess.Token == "" || sess.SubjectID == "" {
		return session.ErrInvalid
	}
	ttl := s.fallbackTTL
	if !sess.ExpiresAt.IsZero() {
		ttl = sess.TTL(s.clock.Now())
		if ttl <= 0 {
			return nil
		}
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sess.ID), data, ttl).Err()
}

// Get returns the live session for id.
func (s *SessionStore) Get(ctx context.Context, id string) (session.Session, error) {
	result, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	var sess session.Session
	if err := json.Unmarshal([]byte(result), &sess); err != nil {
		return session.Session{}, err
	}
	if sess.IsExpired(s.clock.Now()) {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
