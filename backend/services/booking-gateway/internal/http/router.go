package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/http/handlers"
	"chargebook/backend/services/booking-gateway/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	AuthHandlers     *handlers.AuthHandlers
	BookingHandlers  *handlers.BookingHandlers
	OperatorHandlers *handlers.OperatorHandlers
	FeedHandlers     *handlers.FeedHandlers
	HealthHandler    http.HandlerFunc
	Logger           *zap.Logger
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware(deps.Logger))

	r.Get("/health", deps.HealthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/auth/login", deps.AuthHandlers.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/api/auth/logout", deps.AuthHandlers.Logout)

		r.Route("/api/bookings", func(r chi.Router) {
			r.Post("/", deps.BookingHandlers.Create)
			r.Get("/upcoming", deps.BookingHandlers.Upcoming)
			r.Get("/history", deps.BookingHandlers.History)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", deps.BookingHandlers.Get)
				r.Put("/", deps.BookingHandlers.Modify)
				r.Delete("/", deps.BookingHandlers.Cancel)
				r.Get("/qr", deps.BookingHandlers.QR)
				r.Get("/qr.png", deps.BookingHandlers.QRImage)
				r.Get("/transitions", deps.BookingHandlers.Transitions)
			})
		})

		r.Route("/api/operator", func(r chi.Router) {
			r.Get("/stations", deps.OperatorHandlers.Stations)
			r.Patch("/stations/{stationId}/slots/{slotNumber}", deps.OperatorHandlers.SetSlotAvailability)
			r.Get("/stations/{stationId}/feed", deps.FeedHandlers.Subscribe)
			r.Get("/bookings/pending", deps.OperatorHandlers.Pending)
			r.Post("/bookings/{id}/approve", deps.OperatorHandlers.Approve)
			r.Post("/arrivals", deps.OperatorHandlers.ConfirmArrival)
		})
	})

	return r
}
