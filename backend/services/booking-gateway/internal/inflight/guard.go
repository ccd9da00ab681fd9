// Package inflight keeps at most one running call per logical action.
package inflight

import (
	"context"
	"errors"
	"strings"
	"sync"

	"chargebook/backend/services/booking-gateway/internal/apperr"
)

// ErrSuperseded is returned to a call that was cancelled by a newer call for the same key.
var ErrSuperseded = errors.New("inflight: superseded by a newer request")

type call struct {
	cancel     context.CancelFunc
	superseded bool
}

// Guard cancels the previous call for a key when a new one starts.
type Guard struct {
	mu    sync.Mutex
	calls map[string]*call
}

// NewGuard builds an empty Guard.
func NewGuard() *Guard {
	return &Guard{calls: make(map[string]*call)}
}

// Key joins parts into a guard key, e.g. Key(owner, "cancel", id).
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Do runs fn with a context that is cancelled when ctx ends or when another
// Do for key starts. fn must not apply local state once its context is done.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithCancel(ctx)
	c := &call{cancel: cancel}

	g.mu.Lock()
	if prev, ok := g.calls[key]; ok {
		prev.superseded = true
		prev.cancel()
	}
	g.calls[key] = c
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		cancel()
	}()

	err := fn(cctx)
	if err == nil {
		return nil
	}

	g.mu.Lock()
	superseded := c.superseded
	g.mu.Unlock()
	if superseded {
		return apperr.Wrap(apperr.Conflict, "inflight", ErrSuperseded)
	}
	return err
}

// Len is the number of running calls.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
