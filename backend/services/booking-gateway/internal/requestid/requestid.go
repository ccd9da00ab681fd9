// Package requestid carries the correlation id shared by inbound and outbound requests.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header used in both directions.
const Header = "X-Request-ID"

type ctxKey struct{}

// New returns a fresh id.
func New() string { return uuid.NewString() }

// WithContext stores id on ctx.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the stored id or an empty string.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns the id on ctx, generating one if absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := New()
	return WithContext(ctx, id), id
}
