package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/authz"
	"chargebook/backend/services/booking-gateway/internal/clients"
	"chargebook/backend/services/booking-gateway/internal/inflight"
	"chargebook/backend/services/booking-gateway/internal/ledger"
	"chargebook/backend/services/booking-gateway/internal/lifecycle"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/qr"
	"chargebook/backend/services/booking-gateway/internal/repository"
	"chargebook/backend/services/booking-gateway/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeBackend is an in-memory stand-in for the booking backend.
type fakeBackend struct {
	clock *fakeClock

	mu           sync.Mutex
	nextID       int
	reservations map[string]*models.Reservation
	stations     map[string]models.Station
	calls        map[string]int

	login      *clients.LoginResult
	failWith   map[string]error
	onCancel   func()
	onConfirm  func()
	cancelBody bool
	// strict rejects a second confirmation the way some backends do.
	strict bool
}

func newFakeBackend(clock *fakeClock) *fakeBackend {
	return &fakeBackend{
		clock:        clock,
		reservations: make(map[string]*models.Reservation),
		stations: map[string]models.Station{
			"st-1": {ID: "st-1", Name: "Harbour", OperatorID: "op-1", Slots: []models.Slot{
				{SlotNumber: 1, ConnectorType: models.ConnectorType2, PowerRatingKW: 22, IsAvailable: true},
				{SlotNumber: 2, ConnectorType: models.ConnectorCCS, PowerRatingKW: 50, IsAvailable: true},
			}},
			"st-2": {ID: "st-2", Name: "Airport", OperatorID: "op-2", Slots: []models.Slot{
				{SlotNumber: 1, ConnectorType: models.ConnectorCHAdeMO, PowerRatingKW: 50, IsAvailable: true},
			}},
		},
		calls:    make(map[string]int),
		failWith: make(map[string]error),
	}
}

func (f *fakeBackend) enter(name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if name != "login" && token == "" {
		return apperr.New(apperr.Unauthenticated, name, "missing token")
	}
	return f.failWith[name]
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) get(id string) (*models.Reservation, error) {
	r, ok := f.reservations[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "fake", fmt.Sprintf("reservation %s not found", id))
	}
	return r, nil
}

func subjectOf(token string) string { return strings.TrimPrefix(token, "tok-") }

func (f *fakeBackend) Login(_ context.Context, username, password string) (*clients.LoginResult, error) {
	if err := f.enter("login", ""); err != nil {
		return nil, err
	}
	if f.login == nil || password != "secret" {
		return nil, apperr.New(apperr.Unauthenticated, "fake", "invalid credentials")
	}
	out := *f.login
	return &out, nil
}

func (f *fakeBackend) CreateReservation(_ context.Context, token string, in clients.CreateReservationInput) (*models.Reservation, error) {
	if err := f.enter("create", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r := &models.Reservation{
		ID:            fmt.Sprintf("r-%d", f.nextID),
		OwnerID:       in.OwnerID,
		StationID:     in.StationID,
		SlotNumber:    in.SlotNumber,
		StartTime:     in.StartTime,
		DurationHours: in.DurationHours,
		Status:        models.StatusPending,
	}
	f.reservations[r.ID] = r
	return r.Clone(), nil
}

func (f *fakeBackend) ModifyReservation(_ context.Context, token, id string, newStart time.Time) (*models.Reservation, error) {
	if err := f.enter("modify", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.get(id)
	if err != nil {
		return nil, err
	}
	r.StartTime = newStart
	return r.Clone(), nil
}

func (f *fakeBackend) CancelReservation(_ context.Context, token, id string) (*models.Reservation, error) {
	if err := f.enter("cancel", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	r, err := f.get(id)
	if err == nil {
		now := f.clock.Now()
		r.Status = models.StatusCancelled
		r.CancelledAt = &now
	}
	hook := f.onCancel
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook()
	}
	if f.cancelBody {
		return r.Clone(), nil
	}
	return nil, nil
}

func (f *fakeBackend) GetReservation(_ context.Context, token, id string) (*models.Reservation, error) {
	if err := f.enter("get", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.get(id)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (f *fakeBackend) filter(keep func(*models.Reservation) bool) []models.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Reservation
	for i := 1; i <= f.nextID; i++ {
		if r, ok := f.reservations[fmt.Sprintf("r-%d", i)]; ok && keep(r) {
			out = append(out, *r.Clone())
		}
	}
	return out
}

func (f *fakeBackend) ListUpcoming(_ context.Context, token, ownerID string) ([]models.Reservation, error) {
	if err := f.enter("upcoming", token); err != nil {
		return nil, err
	}
	return f.filter(func(r *models.Reservation) bool { return r.OwnerID == ownerID && !r.Status.Terminal() }), nil
}

func (f *fakeBackend) ListHistory(_ context.Context, token, ownerID string) ([]models.Reservation, error) {
	if err := f.enter("history", token); err != nil {
		return nil, err
	}
	return f.filter(func(r *models.Reservation) bool { return r.OwnerID == ownerID && r.Status.Terminal() }), nil
}

func (f *fakeBackend) ListPending(_ context.Context, token string) ([]models.Reservation, error) {
	if err := f.enter("pending", token); err != nil {
		return nil, err
	}
	return f.filter(func(r *models.Reservation) bool { return r.Status == models.StatusPending }), nil
}

func (f *fakeBackend) GetOperatorStations(_ context.Context, token string) ([]models.Station, error) {
	if err := f.enter("operator_stations", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Station
	for _, id := range []string{"st-1", "st-2"} {
		st := f.stations[id]
		if st.OperatorID == subjectOf(token) {
			st.Slots = append([]models.Slot(nil), st.Slots...)
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetStation(_ context.Context, token, id string) (*models.Station, error) {
	if err := f.enter("station", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stations[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "fake", "station not found")
	}
	st.Slots = append([]models.Slot(nil), st.Slots...)
	return &st, nil
}

func (f *fakeBackend) SetSlotAvailability(_ context.Context, token, stationID string, slotNumber int, available bool) error {
	if err := f.enter("slot", token); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stations[stationID]
	for i := range st.Slots {
		if st.Slots[i].SlotNumber == slotNumber {
			st.Slots[i].IsAvailable = available
		}
	}
	return nil
}

func (f *fakeBackend) ConfirmArrival(_ context.Context, token, reservationID string) (*models.Reservation, error) {
	if err := f.enter("confirm", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	r, err := f.get(reservationID)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	switch {
	case r.Status == models.StatusApproved:
		now := f.clock.Now()
		r.Status = models.StatusCompleted
		r.CompletedAt = &now
	case r.Status == models.StatusCompleted && f.strict:
		f.mu.Unlock()
		return nil, apperr.New(apperr.InvalidState, "backend.confirm_arrival", "booking already completed")
	}
	out := r.Clone()
	hook := f.onConfirm
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

// complete finishes a reservation behind the gateway's back.
func (f *fakeBackend) complete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	r := f.reservations[id]
	r.Status = models.StatusCompleted
	r.CompletedAt = &now
}

func (f *fakeBackend) ApproveBooking(_ context.Context, token, id, operatorID string) (*models.Reservation, error) {
	if err := f.enter("approve", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.get(id)
	if err != nil {
		return nil, err
	}
	now := f.clock.Now()
	r.Status = models.StatusApproved
	r.ApprovedBy = operatorID
	r.ApprovedAt = &now
	return r.Clone(), nil
}

type testEnv struct {
	clock   *fakeClock
	backend *fakeBackend
	ledger  *ledger.Ledger
	journal *repository.MemoryJournal
	cache   *repository.MemoryReservationStore
	codec   *qr.Codec
	res     *ReservationService
	ops     *OperatorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	backend := newFakeBackend(clock)
	l := ledger.New(clock)
	codec, err := qr.NewCodec(qr.ModeSigned, []byte("test-qr-key-0123456789"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	deps := Deps{
		Backend: backend,
		Machine: lifecycle.NewMachine(clock),
		Gate:    authz.NewGate(l, clock),
		Ledger:  l,
		Codec:   codec,
		Cache:   repository.NewMemoryReservationStore(),
		Journal: repository.NewMemoryJournal(),
		Guard:   inflight.NewGuard(),
		Logger:  zap.NewNop(),
	}
	return &testEnv{
		clock:   clock,
		backend: backend,
		ledger:  l,
		journal: deps.Journal.(*repository.MemoryJournal),
		cache:   deps.Cache.(*repository.MemoryReservationStore),
		codec:   codec,
		res:     NewReservationService(deps),
		ops:     NewOperatorService(deps),
	}
}

func (e *testEnv) owner(subject string) *session.Session {
	return &session.Session{
		ID:        "sid-" + subject,
		Token:     "tok-" + subject,
		Role:      session.RoleOwner,
		RawRole:   "EVOwner",
		SubjectID: subject,
		ExpiresAt: e.clock.Now().Add(48 * time.Hour),
	}
}

func (e *testEnv) operator(raw, subject string) *session.Session {
	return &session.Session{
		ID:        "sid-" + subject,
		Token:     "tok-" + subject,
		Role:      session.NormalizeRole(raw),
		RawRole:   raw,
		SubjectID: subject,
		ExpiresAt: e.clock.Now().Add(48 * time.Hour),
	}
}

func (e *testEnv) book(t *testing.T, owner *session.Session, station string, slot int, in time.Duration) *models.Reservation {
	t.Helper()
	r, err := e.res.Create(context.Background(), owner, CreateInput{
		StationID:     station,
		SlotNumber:    slot,
		StartTime:     e.clock.Now().Add(in),
		DurationHours: 2,
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return r
}
