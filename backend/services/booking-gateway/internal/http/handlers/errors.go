package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/apperr"
	"chargebook/backend/services/booking-gateway/internal/lifecycle"
	"chargebook/backend/services/booking-gateway/internal/requestid"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason,omitempty"`
}

// statusFor is the single kind to status mapping of the API.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidTimeWindow:
		return http.StatusUnprocessableEntity
	case apperr.InvalidState, apperr.Conflict:
		return http.StatusConflict
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.MalformedPayload:
		return http.StatusBadRequest
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.NetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, lifecycle.ErrNotApproved):
		return "not_approved"
	case errors.Is(err, lifecycle.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, lifecycle.ErrAlreadyCancelled):
		return "already_cancelled"
	}
	return ""
}

// writeAppError renders err and logs server-side failures.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// The client went away; nobody reads the response.
		return
	}
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	resp := ErrorResponse{
		Error:     apperr.UserMessage(err),
		Kind:      string(kind),
		Retryable: apperr.Retryable(err),
	}
	if kind == apperr.InvalidState {
		resp.Reason = reasonFor(err)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.String("request_id", requestid.FromContext(r.Context())),
			zap.Error(err),
		)
	} else {
		logger.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}
