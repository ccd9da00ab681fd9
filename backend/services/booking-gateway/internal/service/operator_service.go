package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/authz"
	"chargebook/backend/services/booking-gateway/internal/inflight"
	"chargebook/backend/services/booking-gateway/internal/ledger"
	"chargebook/backend/services/booking-gateway/internal/lifecycle"
	"chargebook/backend/services/booking-gateway/internal/metrics"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// ArrivalResult is shown to the operator after a scan.
type ArrivalResult struct {
	ReservationID string                   `json:"reservation_id"`
	CustomerID    string                   `json:"customer_id"`
	StationID     string                   `json:"station_id"`
	StationName   string                   `json:"station_name,omitempty"`
	SlotNumber    int                      `json:"slot_number"`
	StartTime     time.Time                `json:"start_time"`
	EndTime       time.Time                `json:"end_time"`
	Status        models.ReservationStatus `json:"status"`
	CompletedAt   *time.Time               `json:"completed_at,omitempty"`
	Replayed      bool                     `json:"replayed"`
}

func newArrivalResult(r *models.Reservation, replayed bool) *ArrivalResult {
	return &ArrivalResult{
		ReservationID: r.ID,
		CustomerID:    r.OwnerID,
		StationID:     r.StationID,
		StationName:   r.StationName,
		SlotNumber:    r.SlotNumber,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime(),
		Status:        r.Status,
		CompletedAt:   r.CompletedAt,
		Replayed:      replayed,
	}
}

// OperatorService runs the station operator side.
type OperatorService struct {
	*core
}

// NewOperatorService builds OperatorService.
func NewOperatorService(d Deps) *OperatorService {
	return &OperatorService{core: newCore(d)}
}

// Stations refreshes and returns the caller's stations.
func (s *OperatorService) Stations(ctx context.Context, sess *session.Session) ([]models.Station, error) {
	if err := s.Gate.Require(sess, authz.ActionListStations, authz.Resource{}); err != nil {
		return nil, err
	}
	assigned, err := s.operatorStations(ctx, sess)
	if err != nil {
		return nil, err
	}
	out := make([]models.Station, 0, len(assigned))
	for _, st := range assigned {
		if !s.Gate.Authorize(sess, authz.ActionSetSlotAvailability, authz.Resource{StationID: st.ID}) {
			continue
		}
		current, err := s.Ledger.Station(st.ID)
		if err != nil {
			continue
		}
		out = append(out, current)
	}
	return out, nil
}

// SetSlotAvailability toggles one slot of the caller's station.
func (s *OperatorService) SetSlotAvailability(ctx context.Context, sess *session.Session, stationID string, slotNumber int, available bool) (models.Slot, error) {
	if err := s.Gate.RequireRole(sess, session.RoleOperator); err != nil {
		return models.Slot{}, err
	}
	if err := s.operatorStation(ctx, sess, stationID); err != nil {
		return models.Slot{}, err
	}
	if err := s.Gate.Require(sess, authz.ActionSetSlotAvailability, authz.Resource{StationID: stationID}); err != nil {
		return models.Slot{}, err
	}

	key := models.SlotKey{StationID: stationID, SlotNumber: slotNumber}
	ticket, err := s.Ledger.Begin(key)
	if err != nil {
		return models.Slot{}, err
	}

	err = s.Guard.Do(ctx, inflight.Key(sess.SubjectID, "slot", key.String()), func(ctx context.Context) error {
		if err := s.Backend.SetSlotAvailability(ctx, sess.Token, stationID, slotNumber, available); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		applied, err := s.Ledger.Commit(ticket, available)
		if err != nil {
			return err
		}
		if applied {
			metrics.SlotChange(ledger.ReasonOperator)
		}
		return nil
	})
	if err != nil {
		return models.Slot{}, err
	}

	s.Logger.Info("slot availability changed",
		zap.String("slot", key.String()),
		zap.Bool("available", available),
		zap.String("operator_id", sess.SubjectID),
	)
	return s.Ledger.Get(key)
}

// Pending lists reservations awaiting approval at the caller's stations.
func (s *OperatorService) Pending(ctx context.Context, sess *session.Session) ([]models.Reservation, error) {
	if err := s.Gate.Require(sess, authz.ActionListPending, authz.Resource{}); err != nil {
		return nil, err
	}
	list, err := s.Backend.ListPending(ctx, sess.Token)
	if err != nil {
		return nil, err
	}
	if _, err := s.operatorStations(ctx, sess); err != nil {
		return nil, err
	}

	out := make([]models.Reservation, 0, len(list))
	for i := range list {
		r := &list[i]
		if r.Status != models.StatusPending {
			continue
		}
		if !s.Gate.Authorize(sess, authz.ActionApprove, authz.Resource{StationID: r.StationID}) {
			continue
		}
		s.remember(ctx, r)
		out = append(out, *r)
	}
	return out, nil
}

// Approve approves a pending reservation at one of the caller's stations.
func (s *OperatorService) Approve(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error) {
	current, err := s.operated(ctx, sess, id, authz.ActionApprove)
	if err != nil {
		return nil, err
	}
	plan, err := s.Machine.PlanApprove(current)
	if err != nil {
		return nil, err
	}
	if plan.Replay {
		s.commit(ctx, current, plan, sess.SubjectID)
		return current, nil
	}

	out, plan, err := s.write(ctx, sess, inflight.Key(sess.SubjectID, "approve", id), current, plan, lifecycle.Args{}, func(ctx context.Context) (*models.Reservation, error) {
		return s.Backend.ApproveBooking(ctx, sess.Token, id, sess.SubjectID)
	})
	if err != nil {
		return nil, err
	}

	// The gateway's codec decodes scans, so its payload replaces any the backend sent.
	if out.Status == models.StatusApproved {
		if payload, err := s.Codec.Mint(out.ID); err == nil {
			out.QRPayload = payload
		} else {
			s.Logger.Warn("qr payload not minted", zap.String("reservation_id", out.ID), zap.Error(err))
		}
	}
	s.commit(ctx, out, plan, sess.SubjectID)
	s.Logger.Info("reservation approved", zap.String("reservation_id", id), zap.String("operator_id", sess.SubjectID))
	return out, nil
}

// ConfirmArrival decodes a scanned code and completes the reservation it names.
// Scanning the same code again returns the completed reservation with Replayed set.
func (s *OperatorService) ConfirmArrival(ctx context.Context, sess *session.Session, payload string) (*ArrivalResult, error) {
	if err := s.Gate.RequireRole(sess, session.RoleOperator); err != nil {
		return nil, err
	}
	id, err := s.Codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	current, err := s.operated(ctx, sess, id, authz.ActionConfirmArrival)
	if err != nil {
		return nil, err
	}
	plan, err := s.Machine.PlanConfirmArrival(current, id)
	if err != nil {
		return nil, err
	}
	if plan.Replay {
		s.commit(ctx, current, plan, sess.SubjectID)
		s.syncStation(ctx, sess, current.StationID, ledger.ReasonArrival)
		return newArrivalResult(current, true), nil
	}

	args := lifecycle.Args{DecodedID: id}
	out, plan, err := s.write(ctx, sess, inflight.Key(sess.SubjectID, "arrival", id), current, plan, args, func(ctx context.Context) (*models.Reservation, error) {
		return s.Backend.ConfirmArrival(ctx, sess.Token, id)
	})
	if err != nil {
		return nil, err
	}

	replayed := s.commit(ctx, out, plan, sess.SubjectID)
	if out.Status == models.StatusCompleted {
		s.syncStation(ctx, sess, out.StationID, ledger.ReasonArrival)
	}
	s.Logger.Info("arrival confirmed",
		zap.String("reservation_id", id),
		zap.String("operator_id", sess.SubjectID),
		zap.Bool("replayed", replayed),
	)
	return newArrivalResult(out, replayed), nil
}

// operated loads id and checks the caller operates its station.
func (s *OperatorService) operated(ctx context.Context, sess *session.Session, id string, action authz.Action) (*models.Reservation, error) {
	if err := s.Gate.RequireRole(sess, session.RoleOperator); err != nil {
		return nil, err
	}
	r, err := s.reservation(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if err := s.operatorStation(ctx, sess, r.StationID); err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, apperr.New(apperr.Forbidden, "operator."+string(action), "reservation belongs to a station you do not operate")
		}
		return nil, err
	}
	if err := s.Gate.Require(sess, action, authz.Resource{StationID: r.StationID}); err != nil {
		return nil, err
	}
	return r, nil
}

// AuthorizeFeed checks the caller may watch stationID's live slot feed.
func (s *OperatorService) AuthorizeFeed(ctx context.Context, sess *session.Session, stationID string) error {
	if err := s.Gate.RequireRole(sess, session.RoleOperator); err != nil {
		return err
	}
	if err := s.operatorStation(ctx, sess, stationID); err != nil {
		return err
	}
	return s.Gate.Require(sess, authz.ActionReadFeed, authz.Resource{StationID: stationID})
}

// Snapshot returns the ledger's current view of stationID.
func (s *OperatorService) Snapshot(stationID string) (models.Station, error) {
	return s.Ledger.Station(stationID)
}
