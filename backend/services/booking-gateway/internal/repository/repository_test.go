package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chargebook/backend/services/booking-gateway/internal/models"
)

func TestMemoryJournalOrdersByTime(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	second := &models.Transition{ReservationID: "r1", Event: "approve", FromStatus: models.StatusPending, ToStatus: models.StatusApproved, ActorID: "op", OccurredAt: base.Add(time.Hour)}
	first := &models.Transition{ReservationID: "r1", Event: "create", ToStatus: models.StatusPending, ActorID: "own", OccurredAt: base}
	require.NoError(t, j.Record(ctx, second))
	require.NoError(t, j.Record(ctx, first))
	require.NoError(t, j.Record(ctx, &models.Transition{ReservationID: "r2", Event: "create", ToStatus: models.StatusPending, OccurredAt: base}))

	list, err := j.ListByReservation(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "create", list[0].Event)
	require.NotZero(t, list[1].ID)

	require.ErrorIs(t, j.Record(ctx, &models.Transition{Event: "x"}), ErrInvalidTransition)
}

func TestMemoryReservationStoreCopies(t *testing.T) {
	s := NewMemoryReservationStore()
	ctx := context.Background()
	now := time.Now()
	r := &models.Reservation{ID: "r1", Status: models.StatusApproved, ApprovedAt: &now}
	require.NoError(t, s.Save(ctx, r))

	r.Status = models.StatusCancelled
	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, got.Status)

	require.NoError(t, s.Delete(ctx, "r1"))
	_, err = s.Get(ctx, "r1")
	require.ErrorIs(t, err, ErrReservationNotCached)
}
