package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chargebook/backend/libs/retry"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultPingAttempts = 5
)

// Options selects the redis endpoint and logical database.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient returns a configured go-redis client and validates the connection with PING,
// retrying with backoff while redis comes up.
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}
	if opts.DB < 0 {
		return nil, errors.New("redis: db index must not be negative")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	err := retry.Startup(ctx, defaultPingAttempts, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if isAuthError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// isAuthError reports a credential rejection from the server.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "WRONGPASS") || strings.HasPrefix(msg, "NOAUTH")
}
