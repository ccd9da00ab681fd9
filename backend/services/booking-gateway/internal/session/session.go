// Package session holds the authenticated caller context and its stores.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"chargebook/backend/services/booking-gateway/internal/policy"
)

var (
	// ErrNotFound is returned when no live session exists for an id.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalid is returned when saving an incomplete session.
	ErrInvalid = errors.New("session: id, token and subject are required")
)

// Session is created on login and destroyed on logout or expiry.
// Token is the backend bearer token and never leaves the gateway.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Role      Role      `json:"role"`
	RawRole   string    `json:"raw_role"`
	SubjectID string    `json:"subject_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the session is past its expiry at now.
func (s Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TTL is the remaining lifetime at now, never negative.
func (s Session) TTL(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (s Session) validate() error {
	if s.ID == "" || s.Token == "" || s.SubjectID == "" {
		return ErrInvalid
	}
	return nil
}

// Store persists sessions by id.
type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	clock policy.Clock

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore builds an empty store.
func NewMemoryStore(clock policy.Clock) *MemoryStore {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	return &MemoryStore{clock: clock, sessions: make(map[string]Session)}
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	if err := s.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.IsExpired(m.clock.Now()) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

type contextKey struct{}

// WithSession stores an immutable snapshot on ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the snapshot stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
