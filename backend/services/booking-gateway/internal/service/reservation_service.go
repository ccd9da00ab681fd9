package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/authz"
	"chargebook/backend/services/booking-gateway/internal/clients"
	"chargebook/backend/services/booking-gateway/internal/inflight"
	"chargebook/backend/services/booking-gateway/internal/lifecycle"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/qr"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// CreateInput is an owner's booking request.
type CreateInput struct {
	StationID     string
	SlotNumber    int
	StartTime     time.Time
	DurationHours int
}

// Upcoming is an owner's dashboard view.
type Upcoming struct {
	Reservations []models.Reservation `json:"reservations"`
	Pending      int                  `json:"pending"`
	Approved     int                  `json:"approved"`
}

// ReservationService runs the owner side of the lifecycle.
type ReservationService struct {
	*core
}

// NewReservationService builds ReservationService.
func NewReservationService(d Deps) *ReservationService {
	return &ReservationService{core: newCore(d)}
}

// Create books a slot for the caller.
func (s *ReservationService) Create(ctx context.Context, sess *session.Session, in CreateInput) (*models.Reservation, error) {
	if err := s.Gate.Require(sess, authz.ActionCreate, authz.Resource{OwnerID: subject(sess), StationID: in.StationID}); err != nil {
		return nil, err
	}
	plan, err := s.Machine.PlanCreate(in.StartTime, in.DurationHours)
	if err != nil {
		return nil, err
	}
	if in.SlotNumber <= 0 {
		return nil, apperr.New(apperr.NotFound, "reservation.create", "slot number is required")
	}
	if err := s.station(ctx, sess, in.StationID); err != nil {
		return nil, err
	}
	key := models.SlotKey{StationID: in.StationID, SlotNumber: in.SlotNumber}
	if err := s.Ledger.CheckBookable(key); err != nil {
		return nil, err
	}

	local := &models.Reservation{
		OwnerID:       sess.SubjectID,
		StationID:     in.StationID,
		SlotNumber:    in.SlotNumber,
		StartTime:     in.StartTime.UTC(),
		DurationHours: in.DurationHours,
	}
	if st, err := s.Ledger.Station(in.StationID); err == nil {
		local.StationName = st.Name
	}

	out, plan, err := s.write(ctx, sess, inflight.Key(sess.SubjectID, "create", key.String()), local, plan, lifecycle.Args{}, func(ctx context.Context) (*models.Reservation, error) {
		remote, err := s.Backend.CreateReservation(ctx, sess.Token, clients.CreateReservationInput{
			OwnerID:       sess.SubjectID,
			StationID:     in.StationID,
			SlotNumber:    in.SlotNumber,
			StartTime:     local.StartTime,
			DurationHours: in.DurationHours,
		})
		if err == nil && (remote == nil || remote.ID == "") {
			return nil, apperr.New(apperr.Unknown, "reservation.create", "backend did not return the new reservation")
		}
		return remote, err
	})
	if err != nil {
		return nil, err
	}

	s.commit(ctx, out, plan, sess.SubjectID)
	s.Logger.Info("reservation created",
		zap.String("reservation_id", out.ID),
		zap.String("owner_id", out.OwnerID),
		zap.String("slot", key.String()),
	)
	return out, nil
}

// Modify moves the start of the caller's reservation.
func (s *ReservationService) Modify(ctx context.Context, sess *session.Session, id string, newStart time.Time) (*models.Reservation, error) {
	current, err := s.owned(ctx, sess, id, authz.ActionModify)
	if err != nil {
		return nil, err
	}
	plan, err := s.Machine.PlanModify(current, newStart.UTC())
	if err != nil {
		return nil, err
	}
	if plan.Replay {
		s.commit(ctx, current, plan, sess.SubjectID)
		return current, nil
	}

	local := current.Clone()
	local.StartTime = newStart.UTC()

	args := lifecycle.Args{StartTime: local.StartTime}
	out, plan, err := s.write(ctx, sess, inflight.Key(sess.SubjectID, "modify", id), local, plan, args, func(ctx context.Context) (*models.Reservation, error) {
		return s.Backend.ModifyReservation(ctx, sess.Token, id, local.StartTime)
	})
	if err != nil {
		return nil, err
	}

	s.commit(ctx, out, plan, sess.SubjectID)
	s.Logger.Info("reservation modified", zap.String("reservation_id", id), zap.Time("start_time", out.StartTime))
	return out, nil
}

// Cancel cancels the caller's reservation.
func (s *ReservationService) Cancel(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error) {
	current, err := s.owned(ctx, sess, id, authz.ActionCancel)
	if err != nil {
		return nil, err
	}
	plan, err := s.Machine.PlanCancel(current)
	if err != nil {
		return nil, err
	}
	if plan.Replay {
		s.commit(ctx, current, plan, sess.SubjectID)
		return current, nil
	}

	out, plan, err := s.write(ctx, sess, inflight.Key(sess.SubjectID, "cancel", id), current, plan, lifecycle.Args{}, func(ctx context.Context) (*models.Reservation, error) {
		return s.Backend.CancelReservation(ctx, sess.Token, id)
	})
	if err != nil {
		return nil, err
	}

	s.commit(ctx, out, plan, sess.SubjectID)
	s.Logger.Info("reservation cancelled", zap.String("reservation_id", id))
	return out, nil
}

// Get returns one reservation visible to the caller.
func (s *ReservationService) Get(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error) {
	if sess == nil {
		return nil, s.Gate.Require(nil, authz.ActionRead, authz.Resource{})
	}
	r, err := s.reservation(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if sess.Role == session.RoleOperator {
		if err := s.operatorStation(ctx, sess, r.StationID); err != nil && apperr.KindOf(err) != apperr.NotFound {
			return nil, err
		}
	}
	if err := s.Gate.Require(sess, authz.ActionRead, authz.Resource{OwnerID: r.OwnerID, StationID: r.StationID}); err != nil {
		return nil, err
	}
	return r, nil
}

// Upcoming lists the caller's future reservations with status counts.
func (s *ReservationService) Upcoming(ctx context.Context, sess *session.Session) (*Upcoming, error) {
	list, err := s.list(ctx, sess, s.Backend.ListUpcoming)
	if err != nil {
		return nil, err
	}
	out := &Upcoming{Reservations: list}
	for _, r := range list {
		switch r.Status {
		case models.StatusPending:
			out.Pending++
		case models.StatusApproved:
			out.Approved++
		}
	}
	return out, nil
}

// History lists the caller's past reservations.
func (s *ReservationService) History(ctx context.Context, sess *session.Session) ([]models.Reservation, error) {
	return s.list(ctx, sess, s.Backend.ListHistory)
}

// QRPayload mints the arrival code of an approved reservation.
func (s *ReservationService) QRPayload(ctx context.Context, sess *session.Session, id string) (string, error) {
	const op = "reservation.qr"
	r, err := s.owned(ctx, sess, id, authz.ActionReadQR)
	if err != nil {
		return "", err
	}
	switch r.Status {
	case models.StatusApproved:
	case models.StatusPending:
		return "", apperr.WithDetail(apperr.InvalidState, op, lifecycle.ErrNotApproved)
	case models.StatusCompleted:
		return "", apperr.WithDetail(apperr.InvalidState, op, lifecycle.ErrAlreadyCompleted)
	default:
		return "", apperr.WithDetail(apperr.InvalidState, op, lifecycle.ErrAlreadyCancelled)
	}
	payload, err := s.Codec.Mint(r.ID)
	if err != nil {
		return "", apperr.Wrap(apperr.Unknown, op, err)
	}
	return payload, nil
}

// QRImage renders the arrival code as a PNG.
func (s *ReservationService) QRImage(ctx context.Context, sess *session.Session, id string, size int) ([]byte, error) {
	payload, err := s.QRPayload(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	return qr.Render(payload, size)
}

// Transitions returns the journaled transitions of a reservation visible to the caller.
func (s *ReservationService) Transitions(ctx context.Context, sess *session.Session, id string) ([]models.Transition, error) {
	if _, err := s.Get(ctx, sess, id); err != nil {
		return nil, err
	}
	list, err := s.Journal.ListByReservation(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unknown, "reservation.transitions", err)
	}
	return list, nil
}

type listFunc func(ctx context.Context, token, ownerID string) ([]models.Reservation, error)

func (s *ReservationService) list(ctx context.Context, sess *session.Session, fetch listFunc) ([]models.Reservation, error) {
	if err := s.Gate.Require(sess, authz.ActionListOwn, authz.Resource{OwnerID: subject(sess)}); err != nil {
		return nil, err
	}
	list, err := fetch(ctx, sess.Token, sess.SubjectID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Reservation, 0, len(list))
	for i := range list {
		r := &list[i]
		if r.OwnerID == "" {
			r.OwnerID = sess.SubjectID
		}
		if err := lifecycle.Validate(r); err != nil {
			s.Logger.Warn("skipping inconsistent reservation", zap.String("reservation_id", r.ID), zap.Error(err))
			continue
		}
		s.remember(ctx, r)
		out = append(out, *r)
	}
	return out, nil
}

// owned loads id and checks the caller may perform action on it as its owner.
func (s *ReservationService) owned(ctx context.Context, sess *session.Session, id string, action authz.Action) (*models.Reservation, error) {
	if err := s.Gate.RequireRole(sess, session.RoleOwner); err != nil {
		return nil, err
	}
	r, err := s.reservation(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if err := s.Gate.Require(sess, action, authz.Resource{OwnerID: r.OwnerID, StationID: r.StationID}); err != nil {
		return nil, err
	}
	return r, nil
}

func subject(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	return sess.SubjectID
}
