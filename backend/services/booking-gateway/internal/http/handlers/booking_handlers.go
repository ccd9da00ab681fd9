package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/models"
	"chargebook/backend/services/booking-gateway/internal/service"
	"chargebook/backend/services/booking-gateway/internal/session"
)

// Bookings is the owner side of the reservation lifecycle.
type Bookings interface {
	Create(ctx context.Context, sess *session.Session, in service.CreateInput) (*models.Reservation, error)
	Modify(ctx context.Context, sess *session.Session, id string, newStart time.Time) (*models.Reservation, error)
	Cancel(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error)
	Get(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error)
	Upcoming(ctx context.Context, sess *session.Session) (*service.Upcoming, error)
	History(ctx context.Context, sess *session.Session) ([]models.Reservation, error)
	QRPayload(ctx context.Context, sess *session.Session, id string) (string, error)
	QRImage(ctx context.Context, sess *session.Session, id string, size int) ([]byte, error)
	Transitions(ctx context.Context, sess *session.Session, id string) ([]models.Transition, error)
}

// BookingHandlers serves /api/bookings.
type BookingHandlers struct {
	bookings Bookings
	logger   *zap.Logger
}

// NewBookingHandlers returns handler struct.
func NewBookingHandlers(bookings Bookings, logger *zap.Logger) *BookingHandlers {
	return &BookingHandlers{bookings: bookings, logger: logger}
}

type createBookingRequest struct {
	StationID     string    `json:"station_id"`
	SlotNumber    int       `json:"slot_number"`
	StartTime     time.Time `json:"start_time"`
	DurationHours int       `json:"duration_hours"`
}

type modifyBookingRequest struct {
	StartTime time.Time `json:"start_time"`
}

type qrResponse struct {
	ReservationID string `json:"reservation_id"`
	Payload       string `json:"payload"`
}

type listResponse struct {
	Reservations []models.Reservation `json:"reservations"`
}

// Create handles POST /api/bookings.
func (h *BookingHandlers) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if req.StartTime.IsZero() {
		writeAppError(w, r, h.logger, apperr.New(apperr.MalformedPayload, "http.booking", "start_time is required"))
		return
	}
	out, err := h.bookings.Create(r.Context(), sess, service.CreateInput{
		StationID:     req.StationID,
		SlotNumber:    req.SlotNumber,
		StartTime:     req.StartTime,
		DurationHours: req.DurationHours,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// Get handles GET /api/bookings/{id}.
func (h *BookingHandlers) Get(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.bookings.Get)
}

// Cancel handles DELETE /api/bookings/{id}.
func (h *BookingHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.bookings.Cancel)
}

// Modify handles PUT /api/bookings/{id}.
func (h *BookingHandlers) Modify(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	var req modifyBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if req.StartTime.IsZero() {
		writeAppError(w, r, h.logger, apperr.New(apperr.MalformedPayload, "http.booking", "start_time is required"))
		return
	}
	out, err := h.bookings.Modify(r.Context(), sess, chi.URLParam(r, "id"), req.StartTime)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Upcoming handles GET /api/bookings/upcoming.
func (h *BookingHandlers) Upcoming(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := h.bookings.Upcoming(r.Context(), sess)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// History handles GET /api/bookings/history.
func (h *BookingHandlers) History(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := h.bookings.History(r.Context(), sess)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Reservations: out})
}

// QR handles GET /api/bookings/{id}/qr.
func (h *BookingHandlers) QR(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	payload, err := h.bookings.QRPayload(r.Context(), sess, id)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{ReservationID: id, Payload: payload})
}

// QRImage handles GET /api/bookings/{id}/qr.png?size=N.
func (h *BookingHandlers) QRImage(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 64 || size > 1024 {
			writeAppError(w, r, h.logger, apperr.New(apperr.MalformedPayload, "http.qr", "size must be between 64 and 1024"))
			return
		}
	}
	png, err := h.bookings.QRImage(r.Context(), sess, chi.URLParam(r, "id"), size)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Transitions handles GET /api/bookings/{id}/transitions.
func (h *BookingHandlers) Transitions(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := h.bookings.Transitions(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transitions": out})
}

type byIDFunc func(ctx context.Context, sess *session.Session, id string) (*models.Reservation, error)

func (h *BookingHandlers) byID(w http.ResponseWriter, r *http.Request, fn byIDFunc) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	out, err := fn(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
