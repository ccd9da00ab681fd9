package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartupRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Startup(context.Background(), 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestStartupGivesUp(t *testing.T) {
	calls := 0
	err := Startup(context.Background(), 2, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestStartupStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Startup(context.Background(), 5, func(context.Context) error {
		calls++
		return Permanent(errors.New("bad dsn"))
	})
	require.EqualError(t, err, "bad dsn")
	require.Equal(t, 1, calls)
}

func TestStartupSingleTry(t *testing.T) {
	calls := 0
	_ = Startup(context.Background(), 0, func(context.Context) error {
		calls++
		return errors.New("x")
	})
	require.Equal(t, 1, calls)
}
