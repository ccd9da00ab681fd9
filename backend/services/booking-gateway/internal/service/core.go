package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/authz"
	"chargebook/backend/services/booking-gateway/internal/inflight"
	"chargebook/backend/services/booking-gateway/internal/ledger"
	"chargebook/backend/services/booking-gateway/internal/lifecycle"
	"chargebook/backend/services/booking-gateway/internal/metrics"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/qr"
	"chargebook/backend/services/booking-gateway/internal/repository"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// Deps are the collaborators shared by the reservation and operator services.
type Deps struct {
	Backend Backend
	Machine *lifecycle.Machine
	Gate    *authz.Gate
	Ledger  *ledger.Ledger
	Codec   *qr.Codec
	Cache   repository.ReservationStore
	Journal repository.TransitionJournal
	Guard   *inflight.Guard
	Logger  *zap.Logger
}

// core holds the steps both services run around the backend.
type core struct {
	Deps
	refresh singleflight.Group
	locks   keyedMutex
}

func newCore(d Deps) *core {
	if d.Guard == nil {
		d.Guard = inflight.NewGuard()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &core{Deps: d}
}

// reservation returns the acknowledged projection, from cache or backend.
func (c *core) reservation(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error) {
	if id == "" {
		return nil, apperr.New(apperr.NotFound, "reservation.load", "reservation id is required")
	}
	cached, err := c.Cache.Get(ctx, id)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, repository.ErrReservationNotCached) {
		c.Logger.Warn("reservation cache read failed", zap.String("reservation_id", id), zap.Error(err))
	}

	remote, err := c.Backend.GetReservation(ctx, token(sess), id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Validate(remote); err != nil {
		return nil, err
	}
	c.remember(ctx, remote)
	return remote, nil
}

type writeFunc func(ctx context.Context) (*models.Reservation, error)

// write sends one planned transition under the inflight guard and reconciles the answer.
// Once a call has gone out and did not come back reconciled, the cached projection
// is dropped. When the backend refuses the write as stale, the reservation is read
// again and a write that had already landed is returned as a replay.
func (c *core) write(ctx context.Context, sess *session.Session, key string, local *models.Reservation, plan lifecycle.Plan, args lifecycle.Args, send writeFunc) (*models.Reservation, lifecycle.Plan, error) {
	var out *models.Reservation
	err := c.Guard.Do(ctx, key, func(ctx context.Context) error {
		remote, err := send(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		out = lifecycle.Reconcile(local, remote, plan, sess.SubjectID, c.Machine.Now())
		return lifecycle.Validate(out)
	})
	if err == nil {
		return out, plan, nil
	}
	if local.ID == "" {
		return nil, plan, err
	}
	c.forget(ctx, local.ID)

	if errors.Is(err, inflight.ErrSuperseded) {
		return nil, plan, err
	}
	if kind := apperr.KindOf(err); kind != apperr.InvalidState && kind != apperr.Conflict {
		return nil, plan, err
	}
	current, again, rerr := c.settled(ctx, sess, local.ID, plan.Event, args)
	if rerr != nil || !again.Replay {
		return nil, plan, err
	}
	c.Logger.Info("backend already applied transition",
		zap.String("reservation_id", local.ID),
		zap.String("event", string(plan.Event)),
	)
	return current, again, nil
}

// settled reads id from the backend and plans ev against what it holds.
func (c *core) settled(ctx context.Context, sess *session.Session, id string, ev lifecycle.Event, args lifecycle.Args) (*models.Reservation, lifecycle.Plan, error) {
	remote, err := c.Backend.GetReservation(ctx, token(sess), id)
	if err != nil {
		return nil, lifecycle.Plan{}, err
	}
	if err := lifecycle.Validate(remote); err != nil {
		return nil, lifecycle.Plan{}, err
	}
	c.remember(ctx, remote)
	p, err := c.Machine.Plan(remote, ev, args)
	if err != nil {
		return nil, lifecycle.Plan{}, err
	}
	return remote, p, nil
}

// syncStation reloads stationID from the backend and publishes what changed.
func (c *core) syncStation(ctx context.Context, sess *session.Session, stationID, reason string) {
	st, err := c.Backend.GetStation(ctx, token(sess), stationID)
	if err != nil {
		c.Logger.Warn("station refresh failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}
	changes, err := c.Ledger.Sync(*st, reason)
	if err != nil {
		c.Logger.Warn("station refresh rejected", zap.String("station_id", stationID), zap.Error(err))
		return
	}
	for range changes {
		metrics.SlotChange(reason)
	}
}

// station makes sure stationID is in the ledger, loading it from the backend once.
func (c *core) station(ctx context.Context, sess *session.Session, stationID string) error {
	if stationID == "" {
		return apperr.New(apperr.NotFound, "station.load", "station id is required")
	}
	if c.Ledger.HasStation(stationID) {
		return nil
	}
	_, err, _ := c.refresh.Do("station:"+stationID, func() (interface{}, error) {
		st, err := c.Backend.GetStation(ctx, token(sess), stationID)
		if err != nil {
			return nil, err
		}
		return nil, c.Ledger.Load([]models.Station{*st})
	})
	return err
}

// operatorStations reloads the caller's station list into the ledger.
func (c *core) operatorStations(ctx context.Context, sess *session.Session) ([]models.Station, error) {
	v, err, _ := c.refresh.Do("operator:"+sess.SubjectID, func() (interface{}, error) {
		stations, err := c.Backend.GetOperatorStations(ctx, token(sess))
		if err != nil {
			return nil, err
		}
		for i := range stations {
			if stations[i].OperatorID == "" {
				stations[i].OperatorID = sess.SubjectID
			}
		}
		if err := c.Ledger.Load(stations); err != nil {
			return nil, err
		}
		return stations, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Station), nil
}

// operatorStation resolves stationID for an operator, refreshing their list on a miss.
func (c *core) operatorStation(ctx context.Context, sess *session.Session, stationID string) error {
	if c.Ledger.HasStation(stationID) {
		return nil
	}
	if _, err := c.operatorStations(ctx, sess); err != nil {
		return err
	}
	if !c.Ledger.HasStation(stationID) {
		return c.station(ctx, sess, stationID)
	}
	return nil
}

// commit stores an acknowledged transition. Events that can happen only once
// per reservation are journaled once even when two callers race past the plan.
func (c *core) commit(ctx context.Context, after *models.Reservation, plan lifecycle.Plan, actorID string) (replayed bool) {
	unlock := c.locks.lock(after.ID)
	defer unlock()

	replay := plan.Replay
	if !replay && plan.Event != lifecycle.EventModify {
		seen, err := c.Journal.ListByReservation(ctx, after.ID)
		if err != nil {
			c.Logger.Warn("journal read failed", zap.String("reservation_id", after.ID), zap.Error(err))
		}
		for _, t := range seen {
			if t.Event == string(plan.Event) && t.ToStatus == after.Status {
				replay = true
				break
			}
		}
	}

	c.remember(ctx, after)
	metrics.Transition(string(plan.Event), replay)
	if replay {
		return true
	}

	t := &models.Transition{
		ReservationID: after.ID,
		Event:         string(plan.Event),
		FromStatus:    plan.From,
		ToStatus:      after.Status,
		ActorID:       actorID,
		OccurredAt:    c.Machine.Now(),
	}
	if err := c.Journal.Record(ctx, t); err != nil {
		c.Logger.Error("journal write failed",
			zap.String("reservation_id", after.ID),
			zap.String("event", t.Event),
			zap.Error(err),
		)
	}
	return false
}

// forget drops id from the cache even when ctx is already cancelled.
func (c *core) forget(ctx context.Context, id string) {
	if err := c.Cache.Delete(context.WithoutCancel(ctx), id); err != nil {
		c.Logger.Warn("reservation cache delete failed", zap.String("reservation_id", id), zap.Error(err))
	}
}

func (c *core) remember(ctx context.Context, r *models.Reservation) {
	if err := c.Cache.Save(ctx, r); err != nil {
		c.Logger.Warn("reservation cache write failed", zap.String("reservation_id", r.ID), zap.Error(err))
	}
}

func token(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	return sess.Token
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
