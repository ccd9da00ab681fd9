package service

import (
	"context"
	"time"

	"chargebook/backend/services/booking-gateway/internal/clients"
	"chargebook/backend/services/booking-gateway/internal/models"
)

// Backend is the authoritative booking API as the services use it.
// *clients.BackendClient implements it.
type Backend interface {
	Login(ctx context.Context, username, password string) (*clients.LoginResult, error)
	CreateReservation(ctx context.Context, token string, in clients.CreateReservationInput) (*models.Reservation, error)
	ModifyReservation(ctx context.Context, token, id string, newStart time.Time) (*models.Reservation, error)
	CancelReservation(ctx context.Context, token, id string) (*models.Reservation, error)
	GetReservation(ctx context.Context, token, id string) (*models.Reservation, error)
	ListUpcoming(ctx context.Context, token, ownerID string) ([]models.Reservation, error)
	ListHistory(ctx context.Context, token, ownerID string) ([]models.Reservation, error)
	ListPending(ctx context.Context, token string) ([]models.Reservation, error)
	GetOperatorStations(ctx context.Context, token string) ([]models.Station, error)
	GetStation(ctx context.Context, token, id string) (*models.Station, error)
	SetSlotAvailability(ctx context.Context, token, stationID string, slotNumber int, available bool) error
	ConfirmArrival(ctx context.Context, token, reservationID string) (*models.Reservation, error)
	ApproveBooking(ctx context.Context, token, id, operatorID string) (*models.Reservation, error)
}

var _ Backend = (*clients.BackendClient)(nil)
