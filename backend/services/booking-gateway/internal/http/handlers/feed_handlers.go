package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/session"
)

// FeedAuthorizer decides who may watch a station.
type FeedAuthorizer interface {
	AuthorizeFeed(ctx context.Context, sess *session.Session, stationID string) error
}

// FeedServer upgrades an authorised request into a live feed.
type FeedServer interface {
	Serve(w http.ResponseWriter, r *http.Request, stationID, subscriberID string)
}

// FeedHandlers serves the live slot feed.
type FeedHandlers struct {
	authz  FeedAuthorizer
	feed   FeedServer
	logger *zap.Logger
}

// NewFeedHandlers returns handler struct.
func NewFeedHandlers(authz FeedAuthorizer, feed FeedServer, logger *zap.Logger) *FeedHandlers {
	return &FeedHandlers{authz: authz, feed: feed, logger: logger}
}

// Subscribe handles GET /api/operator/stations/{stationId}/feed.
func (h *FeedHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	sess, err := currentSession(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	stationID := chi.URLParam(r, "stationId")
	if err := h.authz.AuthorizeFeed(r.Context(), sess, stationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	h.feed.Serve(w, r, stationID, sess.SubjectID)
}
