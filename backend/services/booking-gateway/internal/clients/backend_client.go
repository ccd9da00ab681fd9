package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/metrics"
	"chargebook/backend/services/booking-gateway/internal/models"
)

// LoginResult is the backend's answer to a successful login.
type LoginResult struct {
	Token     string
	Role      string
	Username  string
	SubjectID string
	ExpiresAt time.Time
}

// CreateReservationInput describes a new booking.
type CreateReservationInput struct {
	OwnerID       string
	StationID     string
	SlotNumber    int
	StartTime     time.Time
	DurationHours int
}

// BackendClient talks to the authoritative booking backend.
type BackendClient struct {
	base *BaseClient
}

// NewBackendClient returns a client for the backend at baseURL.
func NewBackendClient(baseURL string, httpClient HTTPDoer) (*BackendClient, error) {
	base, err := NewBaseClient(baseURL, httpClient)
	if err != nil {
		return nil, err
	}
	return &BackendClient{base: base}, nil
}

// Login exchanges credentials for a backend token.
func (c *BackendClient) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	const op = "backend.login"
	body, _ := json.Marshal(loginRequest{Username: username, Password: password})

	env, err := c.call(ctx, op, http.MethodPost, "/auth/login", "", body, false)
	if err != nil {
		return nil, err
	}
	var dto loginDTO
	if err := decodeData(op, env, &dto); err != nil {
		return nil, err
	}
	if dto.Token == "" {
		return nil, apperr.New(apperr.Unknown, op, "backend returned no token")
	}
	expires, err := parseTime(dto.ExpiresAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unknown, op, err)
	}
	username = firstNonEmpty(dto.Username, username)
	return &LoginResult{
		Token:     dto.Token,
		Role:      dto.Role,
		Username:  username,
		SubjectID: firstNonEmpty(dto.UserID, dto.Nic, username),
		ExpiresAt: expires,
	}, nil
}

// CreateReservation books a slot. The backend assigns the id.
func (c *BackendClient) CreateReservation(ctx context.Context, token string, in CreateReservationInput) (*models.Reservation, error) {
	const op = "backend.create_reservation"
	body, _ := json.Marshal(createBookingRequest{
		EvOwnerNic:          in.OwnerID,
		StationID:           in.StationID,
		SlotNumber:          in.SlotNumber,
		ReservationDateTime: formatTime(in.StartTime),
		Duration:            in.DurationHours,
	})
	return c.reservation(ctx, op, http.MethodPost, "/booking", token, body)
}

// ModifyReservation moves a reservation to newStart.
func (c *BackendClient) ModifyReservation(ctx context.Context, token, id string, newStart time.Time) (*models.Reservation, error) {
	const op = "backend.modify_reservation"
	body, _ := json.Marshal(modifyBookingRequest{ReservationID: id, NewStartTimeIso: formatTime(newStart)})
	return c.reservation(ctx, op, http.MethodPut, "/booking/"+url.PathEscape(id), token, body)
}

// CancelReservation cancels a reservation. The result is nil when the backend only acknowledges.
func (c *BackendClient) CancelReservation(ctx context.Context, token, id string) (*models.Reservation, error) {
	const op = "backend.cancel_reservation"
	body, _ := json.Marshal(cancelBookingRequest{ReservationID: id})
	return c.reservation(ctx, op, http.MethodDelete, "/booking/"+url.PathEscape(id), token, body)
}

// GetReservation loads one reservation.
func (c *BackendClient) GetReservation(ctx context.Context, token, id string) (*models.Reservation, error) {
	const op = "backend.get_reservation"
	r, err := c.reservation(ctx, op, http.MethodGet, "/booking/"+url.PathEscape(id), token, nil)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.New(apperr.NotFound, op, fmt.Sprintf("reservation %s not found", id))
	}
	return r, nil
}

// ListUpcoming lists an owner's future reservations.
func (c *BackendClient) ListUpcoming(ctx context.Context, token, ownerID string) ([]models.Reservation, error) {
	return c.reservations(ctx, "backend.list_upcoming", "/booking/upcoming?nic="+url.QueryEscape(ownerID), token)
}

// ListHistory lists an owner's past reservations.
func (c *BackendClient) ListHistory(ctx context.Context, token, ownerID string) ([]models.Reservation, error) {
	return c.reservations(ctx, "backend.list_history", "/booking/history?nic="+url.QueryEscape(ownerID), token)
}

// ListPending lists reservations awaiting approval.
func (c *BackendClient) ListPending(ctx context.Context, token string) ([]models.Reservation, error) {
	return c.reservations(ctx, "backend.list_pending", "/booking/pending", token)
}

// GetOperatorStations lists the stations assigned to the token's operator.
func (c *BackendClient) GetOperatorStations(ctx context.Context, token string) ([]models.Station, error) {
	const op = "backend.operator_stations"
	env, err := c.call(ctx, op, http.MethodGet, "/station/operator/stations", token, nil, true)
	if err != nil {
		return nil, err
	}
	var dtos []stationDTO
	if err := decodeData(op, env, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Station, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

// GetStation loads one station with its slots.
func (c *BackendClient) GetStation(ctx context.Context, token, id string) (*models.Station, error) {
	const op = "backend.get_station"
	env, err := c.call(ctx, op, http.MethodGet, "/station/"+url.PathEscape(id), token, nil, true)
	if err != nil {
		return nil, err
	}
	if !env.hasData() {
		return nil, apperr.New(apperr.NotFound, op, fmt.Sprintf("station %s not found", id))
	}
	var dto stationDTO
	if err := decodeData(op, env, &dto); err != nil {
		return nil, err
	}
	st := dto.toModel()
	if st.ID == "" {
		st.ID = id
	}
	return &st, nil
}

// SetSlotAvailability toggles one slot.
func (c *BackendClient) SetSlotAvailability(ctx context.Context, token, stationID string, slotNumber int, available bool) error {
	const op = "backend.set_slot_availability"
	body, _ := json.Marshal(slotAvailabilityRequest{IsAvailable: available})
	path := fmt.Sprintf("/station/%s/slots/%s/availability", url.PathEscape(stationID), strconv.Itoa(slotNumber))
	_, err := c.call(ctx, op, http.MethodPatch, path, token, body, true)
	return err
}

// ConfirmArrival reports a scanned arrival for reservationID.
func (c *BackendClient) ConfirmArrival(ctx context.Context, token, reservationID string) (*models.Reservation, error) {
	const op = "backend.confirm_arrival"
	body, _ := json.Marshal(confirmArrivalRequest{QrCode: reservationID})
	return c.reservation(ctx, op, http.MethodPost, "/booking/confirm-arrival", token, body)
}

// ApproveBooking approves a pending reservation on behalf of operatorID.
func (c *BackendClient) ApproveBooking(ctx context.Context, token, id, operatorID string) (*models.Reservation, error) {
	const op = "backend.approve_booking"
	body, _ := json.Marshal(approveBookingRequest{ReservationID: id, OperatorID: operatorID})
	return c.reservation(ctx, op, http.MethodPatch, "/booking/"+url.PathEscape(id)+"/approve", token, body)
}

func (c *BackendClient) reservation(ctx context.Context, op, method, path, token string, body []byte) (*models.Reservation, error) {
	env, err := c.call(ctx, op, method, path, token, body, true)
	if err != nil {
		return nil, err
	}
	if !env.hasData() {
		return nil, nil
	}
	var dto reservationDTO
	if err := decodeData(op, env, &dto); err != nil {
		return nil, err
	}
	r, err := dto.toModel()
	if err != nil {
		return nil, apperr.Wrap(apperr.Unknown, op, err)
	}
	return r, nil
}

func (c *BackendClient) reservations(ctx context.Context, op, path, token string) ([]models.Reservation, error) {
	env, err := c.call(ctx, op, http.MethodGet, path, token, nil, true)
	if err != nil {
		return nil, err
	}
	var dtos []reservationDTO
	if env.hasData() {
		if err := decodeData(op, env, &dtos); err != nil {
			return nil, err
		}
	}
	out := make([]models.Reservation, 0, len(dtos))
	for _, d := range dtos {
		r, err := d.toModel()
		if err != nil {
			return nil, apperr.Wrap(apperr.Unknown, op, err)
		}
		out = append(out, *r)
	}
	return out, nil
}

// call sends one request and classifies the outcome.
// Privileged calls without a token fail before anything is sent.
func (c *BackendClient) call(ctx context.Context, op, method, path, token string, body []byte, privileged bool) (envelope, error) {
	if privileged && strings.TrimSpace(token) == "" {
		return envelope{}, apperr.New(apperr.Unauthenticated, op, "please sign in again")
	}
	started := time.Now()
	env, err := c.send(ctx, op, method, path, token, body)
	metrics.ObserveBackend(op, started, string(apperr.KindOf(err)))
	return env, err
}

func (c *BackendClient) send(ctx context.Context, op, method, path, token string, body []byte) (envelope, error) {
	status, respBody, err := c.base.Do(ctx, Request{Method: method, Path: path, Body: body, Token: token})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return envelope{}, ctx.Err()
		}
		return envelope{}, apperr.Wrap(apperr.NetworkError, op, err)
	}

	var env envelope
	if len(strings.TrimSpace(string(respBody))) > 0 {
		if jerr := json.Unmarshal(respBody, &env); jerr != nil && status < 300 {
			return envelope{}, apperr.Wrap(apperr.Unknown, op, fmt.Errorf("decode response: %w", jerr))
		}
	} else if status < 300 {
		env.Success = true
	}

	if status >= 300 {
		return envelope{}, classify(op, status, env.Message)
	}
	if !env.Success {
		return envelope{}, classify(op, http.StatusUnprocessableEntity, env.Message)
	}
	return env, nil
}

func classify(op string, status int, message string) error {
	message = strings.TrimSpace(message)
	withMessage := func(kind apperr.Kind, fallback string) error {
		if message == "" {
			message = fallback
		}
		return apperr.New(kind, op, message)
	}

	switch {
	case status == http.StatusUnauthorized:
		return withMessage(apperr.Unauthenticated, "session expired, please sign in again")
	case status == http.StatusForbidden:
		return withMessage(apperr.Forbidden, "not allowed")
	case status == http.StatusNotFound:
		return withMessage(apperr.NotFound, "not found")
	case status == http.StatusConflict:
		return withMessage(apperr.Conflict, "slot is no longer available")
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "12 hour") || strings.Contains(lower, "window") || strings.Contains(lower, "past"):
			return withMessage(apperr.InvalidTimeWindow, "invalid time window")
		case strings.Contains(lower, "status") || strings.Contains(lower, "state") || strings.Contains(lower, "already"):
			return withMessage(apperr.InvalidState, "invalid reservation state")
		}
		return withMessage(apperr.Unknown, "request rejected by backend")
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return withMessage(apperr.NetworkError, "")
	}
	return withMessage(apperr.Unknown, fmt.Sprintf("backend returned status %d", status))
}

func decodeData(op string, env envelope, dst interface{}) error {
	if !env.hasData() {
		return apperr.New(apperr.Unknown, op, "backend returned an empty body")
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return apperr.Wrap(apperr.Unknown, op, fmt.Errorf("decode data: %w", err))
	}
	return nil
}
