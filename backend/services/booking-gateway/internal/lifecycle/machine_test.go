package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/policy"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func fixedMachine(now time.Time) *Machine {
	return NewMachine(policy.ClockFunc(func() time.Time { return now }))
}

func reservation(status models.ReservationStatus, start time.Time) *models.Reservation {
	return &models.Reservation{
		ID:            "r-1",
		OwnerID:       "owner-1",
		StationID:     "st-1",
		SlotNumber:    2,
		StartTime:     start,
		DurationHours: 2,
		Status:        status,
	}
}

func TestPlanCreate(t *testing.T) {
	m := fixedMachine(base)

	p, err := m.PlanCreate(base.Add(time.Hour), 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, p.To)

	_, err = m.PlanCreate(base.Add(-time.Minute), 1)
	require.ErrorIs(t, err, apperr.InvalidTimeWindow)

	_, err = m.PlanCreate(base, 1)
	require.ErrorIs(t, err, apperr.InvalidTimeWindow)

	_, err = m.PlanCreate(base.Add(time.Hour), 0)
	require.ErrorIs(t, err, apperr.InvalidTimeWindow)
}

func TestCancelWindowScenario(t *testing.T) {
	start := base.Add(13 * time.Hour)
	r := reservation(models.StatusPending, start)

	p, err := fixedMachine(base).PlanCancel(r)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, p.To)

	_, err = fixedMachine(base.Add(2 * time.Hour)).PlanCancel(r)
	require.ErrorIs(t, err, apperr.InvalidTimeWindow)
}

func TestModifyUsesAcknowledgedStart(t *testing.T) {
	r := reservation(models.StatusApproved, base.Add(11*time.Hour))
	m := fixedMachine(base)

	// Moving a start that is already inside the window is rejected even if the new start is far out.
	_, err := m.PlanModify(r, base.Add(48*time.Hour))
	require.ErrorIs(t, err, apperr.InvalidTimeWindow)

	r.StartTime = base.Add(24 * time.Hour)
	p, err := m.PlanModify(r, base.Add(30*time.Hour))
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, p.To)
	require.False(t, p.Replay)

	_, err = m.PlanModify(r, base.Add(-time.Hour))
	require.ErrorIs(t, err, apperr.InvalidTimeWindow)

	p, err = m.PlanModify(r, r.StartTime)
	require.NoError(t, err)
	require.True(t, p.Replay)
}

func TestModifyToSameStartInsideNoticeWindowIsRejected(t *testing.T) {
	r := reservation(models.StatusPending, base.Add(11*time.Hour))

	_, err := fixedMachine(base).PlanModify(r, r.StartTime)
	require.ErrorIs(t, err, apperr.InvalidTimeWindow)

	r.StartTime = base.Add(12 * time.Hour)
	p, err := fixedMachine(base).PlanModify(r, r.StartTime)
	require.NoError(t, err)
	require.True(t, p.Replay)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	m := fixedMachine(base)
	start := base.Add(48 * time.Hour)

	completed := reservation(models.StatusCompleted, start)
	_, err := m.PlanCancel(completed)
	require.ErrorIs(t, err, apperr.InvalidState)
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	_, err = m.PlanModify(completed, start.Add(time.Hour))
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	_, err = m.PlanApprove(completed)
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	cancelled := reservation(models.StatusCancelled, start)
	_, err = m.PlanApprove(cancelled)
	require.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = m.PlanConfirmArrival(cancelled, cancelled.ID)
	require.ErrorIs(t, err, apperr.InvalidState)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestConfirmArrival(t *testing.T) {
	m := fixedMachine(base)
	r := reservation(models.StatusApproved, base.Add(time.Hour))

	_, err := m.PlanConfirmArrival(r, "someone-else")
	require.ErrorIs(t, err, apperr.MalformedPayload)

	p, err := m.PlanConfirmArrival(r, r.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, p.To)

	Apply(r, p, "op-1", base)
	require.Equal(t, models.StatusCompleted, r.Status)
	require.NotNil(t, r.CompletedAt)
	require.NoError(t, Validate(r))

	again, err := m.PlanConfirmArrival(r, r.ID)
	require.NoError(t, err)
	require.True(t, again.Replay)

	stamp := *r.CompletedAt
	Apply(r, again, "op-2", base.Add(time.Hour))
	require.Equal(t, stamp, *r.CompletedAt)

	pending := reservation(models.StatusPending, base.Add(time.Hour))
	_, err = m.PlanConfirmArrival(pending, pending.ID)
	require.ErrorIs(t, err, ErrNotApproved)
}

func TestApproveStampsOperator(t *testing.T) {
	m := fixedMachine(base)
	r := reservation(models.StatusPending, base.Add(time.Hour))

	p, err := m.PlanApprove(r)
	require.NoError(t, err)
	Apply(r, p, "op-1", base)
	require.Equal(t, models.StatusApproved, r.Status)
	require.Equal(t, "op-1", r.ApprovedBy)
	require.NotNil(t, r.ApprovedAt)

	p, err = m.PlanApprove(r)
	require.NoError(t, err)
	require.True(t, p.Replay)
}

// Walks every event sequence up to a fixed depth and checks that COMPLETED is only
// ever reached from APPROVED.
func TestCompletedRequiresApproval(t *testing.T) {
	m := fixedMachine(base)
	events := []Event{EventApprove, EventModify, EventCancel, EventConfirmArrival}

	var walk func(r *models.Reservation, history []models.ReservationStatus, depth int)
	walk = func(r *models.Reservation, history []models.ReservationStatus, depth int) {
		if depth == 0 {
			return
		}
		for _, ev := range events {
			next := r.Clone()
			p, err := m.Plan(next, ev, Args{StartTime: next.StartTime.Add(time.Hour), DecodedID: next.ID})
			if err != nil {
				continue
			}
			Apply(next, p, "op-1", base)
			if next.Status == models.StatusCompleted && !p.Replay {
				require.Equal(t, models.StatusApproved, p.From)
				require.Contains(t, history, models.StatusApproved)
			}
			walk(next, append(append([]models.ReservationStatus(nil), history...), next.Status), depth-1)
		}
	}

	start := reservation(models.StatusPending, base.Add(48*time.Hour))
	walk(start, []models.ReservationStatus{models.StatusPending}, 5)
}

func TestPlanUnknownEvent(t *testing.T) {
	_, err := fixedMachine(base).Plan(reservation(models.StatusPending, base), Event("teleport"), Args{})
	require.ErrorIs(t, err, apperr.InvalidState)

	_, err = fixedMachine(base).Plan(nil, EventApprove, Args{})
	require.ErrorIs(t, err, apperr.NotFound)
}

func TestReconcilePrefersRemote(t *testing.T) {
	local := reservation(models.StatusApproved, base.Add(time.Hour))
	p := Plan{Event: EventConfirmArrival, From: models.StatusApproved, To: models.StatusCompleted}

	remote := &models.Reservation{ID: "r-1", Status: models.StatusCompleted}
	out := Reconcile(local, remote, p, "op-1", base)
	require.Equal(t, models.StatusCompleted, out.Status)
	require.NotNil(t, out.CompletedAt)
	require.Equal(t, local.StationID, out.StationID)
	require.Equal(t, local.SlotNumber, out.SlotNumber)

	// The authority may disagree; its status is kept.
	remote = &models.Reservation{ID: "r-1", Status: models.StatusCancelled, CancelledAt: &base}
	out = Reconcile(local, remote, p, "op-1", base)
	require.Equal(t, models.StatusCancelled, out.Status)
	require.Nil(t, out.CompletedAt)

	// An ack without a body applies the plan to the local view.
	out = Reconcile(local, nil, p, "op-1", base)
	require.Equal(t, models.StatusCompleted, out.Status)
	require.Equal(t, models.StatusApproved, local.Status)
}

func TestValidate(t *testing.T) {
	r := reservation(models.StatusPending, base)
	require.NoError(t, Validate(r))

	r.CompletedAt = &base
	require.ErrorIs(t, Validate(r), apperr.InvalidState)

	r.Status = models.StatusCompleted
	require.NoError(t, Validate(r))

	r.CancelledAt = &base
	require.Error(t, Validate(r))

	r = reservation("BOGUS", base)
	require.True(t, errors.Is(Validate(r), apperr.Unknown))
}
