package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/service"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// Operations is the station operator side.
type Operations interface {
	Stations(ctx context.Context, sess *session.Session) ([]models.Station, error)
	SetSlotAvailability(ctx context.Context, sess *session.Session, stationID string, slotNumber int, available bool) (models.Slot, error)
	Pending(ctx context.Context, sess *session.Session) ([]models.Reservation, error)
	Approve(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error)
	ConfirmArrival(ctx context.Context, sess *session.Session, payload string) (*service.ArrivalResult, error)
}

// OperatorHandlers serves /api/operator.
type OperatorHandlers struct {
	ops    Operations
	logger *zap.Logger
}

// NewOperatorHandlers returns handler struct.
func NewOperatorHandlers(ops Operations, logger *zap.Logger) *OperatorHandlers {
	return &OperatorHandlers{ops: ops, logger: logger}
}

type slotAvailabilityRequest struct {
	Available *bool `json:"available"`
}

type arrivalRequest struct {
	Payload string `json:"payload"`
}

// Stations handles GET /api/operator/stations.
func (h *OperatorHandlers) Stations(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := h.ops.Stations(r.Context(), sess)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stations": out})
}

// SetSlotAvailability handles PATCH /api/operator/stations/{stationId}/slots/{slotNumber}.
func (h *OperatorHandlers) SetSlotAvailability(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	slot, err := pathInt(r, "slotNumber")
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	var req slotAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if req.Available == nil {
		writeAppError(w, r, h.logger, apperr.New(apperr.MalformedPayload, "http.slot", "available is required"))
		return
	}
	out, err := h.ops.SetSlotAvailability(r.Context(), sess, chi.URLParam(r, "stationId"), slot, *req.Available)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Pending handles GET /api/operator/bookings/pending.
func (h *OperatorHandlers) Pending(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := h.ops.Pending(r.Context(), sess)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Reservations: out})
}

// Approve handles POST /api/operator/bookings/{id}/approve.
func (h *OperatorHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := h.ops.Approve(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ConfirmArrival handles POST /api/operator/arrivals.
func (h *OperatorHandlers) ConfirmArrival(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	var req arrivalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := h.ops.ConfirmArrival(r.Context(), sess, req.Payload)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
