// Package lifecycle owns the reservation status enum transitions and their guards.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/policy"
)

// Event names a lifecycle input.
type Event string

const (
	EventCreate         Event = "create"
	EventApprove        Event = "approve"
	EventModify         Event = "modify"
	EventCancel         Event = "cancel"
	EventConfirmArrival Event = "confirm_arrival"
)

// Details attached to InvalidState errors so callers can word messages precisely.
var (
	ErrNotApproved      = errors.New("reservation has not been approved yet")
	ErrAlreadyCompleted = errors.New("reservation is already completed")
	ErrAlreadyCancelled = errors.New("reservation is already cancelled")
)

type transition struct {
	From  models.ReservationStatus
	Event Event
	To    models.ReservationStatus
}

// Empty From means "no reservation yet".
var transitions = []transition{
	{From: "", Event: EventCreate, To: models.StatusPending},
	{From: models.StatusPending, Event: EventApprove, To: models.StatusApproved},
	{From: models.StatusPending, Event: EventModify, To: models.StatusPending},
	{From: models.StatusApproved, Event: EventModify, To: models.StatusApproved},
	{From: models.StatusPending, Event: EventCancel, To: models.StatusCancelled},
	{From: models.StatusApproved, Event: EventCancel, To: models.StatusCancelled},
	{From: models.StatusApproved, Event: EventConfirmArrival, To: models.StatusCompleted},
}

// Next returns the target status for from+event, if that edge exists.
func Next(from models.ReservationStatus, ev Event) (models.ReservationStatus, bool) {
	for _, tr := range transitions {
		if tr.From == from && tr.Event == ev {
			return tr.To, true
		}
	}
	return "", false
}

// Plan is the outcome of a successful guard check.
// Replay means the transition was already applied and nothing must be sent or recorded.
type Plan struct {
	Event  Event
	From   models.ReservationStatus
	To     models.ReservationStatus
	Replay bool
}

// Machine evaluates guards against a clock.
type Machine struct {
	clock policy.Clock
}

// NewMachine builds a Machine. A nil clock uses the system clock.
func NewMachine(clock policy.Clock) *Machine {
	if clock == nil {
		clock = policy.SystemClock{}
	}
	return &Machine{clock: clock}
}

// Now exposes the machine's clock reading.
func (m *Machine) Now() time.Time {
	return m.clock.Now()
}

// Args carries the event-specific inputs for Plan.
type Args struct {
	StartTime     time.Time
	DurationHours int
	DecodedID     string
}

// Plan dispatches to the guard for ev. r is ignored for create.
func (m *Machine) Plan(r *models.Reservation, ev Event, args Args) (Plan, error) {
	if ev != EventCreate && r == nil {
		return Plan{}, apperr.New(apperr.NotFound, "lifecycle.plan", "reservation not found")
	}
	switch ev {
	case EventCreate:
		return m.PlanCreate(args.StartTime, args.DurationHours)
	case EventApprove:
		return m.PlanApprove(r)
	case EventModify:
		return m.PlanModify(r, args.StartTime)
	case EventCancel:
		return m.PlanCancel(r)
	case EventConfirmArrival:
		return m.PlanConfirmArrival(r, args.DecodedID)
	}
	return Plan{}, apperr.New(apperr.InvalidState, "lifecycle.plan", fmt.Sprintf("unknown event %q", ev))
}

// PlanCreate checks a new booking's time window.
func (m *Machine) PlanCreate(start time.Time, durationHours int) (Plan, error) {
	const op = "lifecycle.create"
	if err := policy.ValidateFutureStart(op, start, m.clock.Now()); err != nil {
		return Plan{}, err
	}
	if err := policy.ValidateDuration(op, durationHours); err != nil {
		return Plan{}, err
	}
	return Plan{Event: EventCreate, To: models.StatusPending}, nil
}

// PlanApprove checks an operator approval.
func (m *Machine) PlanApprove(r *models.Reservation) (Plan, error) {
	const op = "lifecycle.approve"
	if r.Status == models.StatusApproved {
		return replay(EventApprove, r.Status), nil
	}
	to, ok := Next(r.Status, EventApprove)
	if !ok {
		return Plan{}, illegal(op, r.Status, EventApprove)
	}
	return Plan{Event: EventApprove, From: r.Status, To: to}, nil
}

// PlanModify checks a start-time change. The notice rule is evaluated against
// the acknowledged start, never against newStart, and before the same-start replay.
func (m *Machine) PlanModify(r *models.Reservation, newStart time.Time) (Plan, error) {
	const op = "lifecycle.modify"
	to, ok := Next(r.Status, EventModify)
	if !ok {
		return Plan{}, illegal(op, r.Status, EventModify)
	}
	now := m.clock.Now()
	if err := policy.RequireNotice(op, r.StartTime, now); err != nil {
		return Plan{}, err
	}
	if newStart.Equal(r.StartTime) {
		return replay(EventModify, r.Status), nil
	}
	if err := policy.ValidateFutureStart(op, newStart, now); err != nil {
		return Plan{}, err
	}
	return Plan{Event: EventModify, From: r.Status, To: to}, nil
}

// PlanCancel checks an owner cancellation.
func (m *Machine) PlanCancel(r *models.Reservation) (Plan, error) {
	const op = "lifecycle.cancel"
	if r.Status == models.StatusCancelled {
		return replay(EventCancel, r.Status), nil
	}
	to, ok := Next(r.Status, EventCancel)
	if !ok {
		return Plan{}, illegal(op, r.Status, EventCancel)
	}
	if err := policy.RequireNotice(op, r.StartTime, m.clock.Now()); err != nil {
		return Plan{}, err
	}
	return Plan{Event: EventCancel, From: r.Status, To: to}, nil
}

// PlanConfirmArrival checks a scanned arrival. decodedID is the id recovered from the QR payload.
func (m *Machine) PlanConfirmArrival(r *models.Reservation, decodedID string) (Plan, error) {
	const op = "lifecycle.confirm_arrival"
	if decodedID == "" || decodedID != r.ID {
		return Plan{}, apperr.New(apperr.MalformedPayload, op, "payload does not belong to this reservation")
	}
	if r.Status == models.StatusCompleted {
		return replay(EventConfirmArrival, r.Status), nil
	}
	to, ok := Next(r.Status, EventConfirmArrival)
	if !ok {
		return Plan{}, illegal(op, r.Status, EventConfirmArrival)
	}
	return Plan{Event: EventConfirmArrival, From: r.Status, To: to}, nil
}

// Apply moves r to plan.To and stamps the matching audit fields. Replays are ignored.
func Apply(r *models.Reservation, p Plan, actorID string, at time.Time) {
	if p.Replay {
		return
	}
	at = at.UTC()
	r.Status = p.To
	switch p.Event {
	case EventApprove:
		if r.ApprovedBy == "" {
			r.ApprovedBy = actorID
		}
		if r.ApprovedAt == nil {
			r.ApprovedAt = &at
		}
	case EventConfirmArrival:
		if r.CompletedAt == nil {
			r.CompletedAt = &at
		}
	case EventCancel:
		if r.CancelledAt == nil {
			r.CancelledAt = &at
		}
	}
}

// Reconcile returns the state to keep after the authority acknowledged plan.
// The remote body wins; missing fields are filled from the local view and the plan.
func Reconcile(local, remote *models.Reservation, p Plan, actorID string, at time.Time) *models.Reservation {
	var out *models.Reservation
	if remote == nil {
		out = local.Clone()
		Apply(out, p, actorID, at)
		return out
	}

	out = remote.Clone()
	if out.ID == "" {
		out.ID = local.ID
	}
	if out.OwnerID == "" {
		out.OwnerID = local.OwnerID
	}
	if out.StationID == "" {
		out.StationID = local.StationID
		out.StationName = local.StationName
	}
	if out.SlotNumber == 0 {
		out.SlotNumber = local.SlotNumber
	}
	if out.DurationHours == 0 {
		out.DurationHours = local.DurationHours
	}
	if out.StartTime.IsZero() {
		out.StartTime = local.StartTime
	}
	if out.QRPayload == "" {
		out.QRPayload = local.QRPayload
	}
	if !out.Status.Valid() {
		out.Status = local.Status
		Apply(out, p, actorID, at)
		return out
	}
	if out.Status == p.To && !p.Replay {
		// Authority agrees; make sure the terminal stamps are present.
		stamped := out.Clone()
		stamped.Status = p.From
		Apply(stamped, p, actorID, at)
		return stamped
	}
	return out
}

// Validate enforces the terminal-stamp invariant on a reservation.
func Validate(r *models.Reservation) error {
	const op = "lifecycle.validate"
	if r == nil {
		return apperr.New(apperr.NotFound, op, "reservation is missing")
	}
	if !r.Status.Valid() {
		return apperr.New(apperr.Unknown, op, fmt.Sprintf("unknown reservation status %q", r.Status))
	}
	if r.CompletedAt != nil && r.CancelledAt != nil {
		return apperr.New(apperr.InvalidState, op, "reservation cannot be both completed and cancelled")
	}
	if r.CompletedAt != nil && r.Status != models.StatusCompleted {
		return apperr.New(apperr.InvalidState, op, "completion time set on a non-completed reservation")
	}
	if r.CancelledAt != nil && r.Status != models.StatusCancelled {
		return apperr.New(apperr.InvalidState, op, "cancellation time set on a non-cancelled reservation")
	}
	return nil
}

func replay(ev Event, status models.ReservationStatus) Plan {
	return Plan{Event: ev, From: status, To: status, Replay: true}
}

func illegal(op string, from models.ReservationStatus, ev Event) error {
	switch {
	case from == models.StatusCompleted:
		return apperr.WithDetail(apperr.InvalidState, op, ErrAlreadyCompleted)
	case from == models.StatusCancelled:
		return apperr.WithDetail(apperr.InvalidState, op, ErrAlreadyCancelled)
	case from == models.StatusPending && ev == EventConfirmArrival:
		return apperr.WithDetail(apperr.InvalidState, op, ErrNotApproved)
	}
	return apperr.New(apperr.InvalidState, op, fmt.Sprintf("cannot %s a %s reservation", ev, from))
}
