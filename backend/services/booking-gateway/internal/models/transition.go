package models

import "time"

// Transition is one acknowledged state change of a reservation.
type Transition struct {
	ID            int64             `json:"id"`
	ReservationID string            `json:"reservation_id"`
	Event         string            `json:"event"`
	FromStatus    ReservationStatus `json:"from_status,omitempty"`
	ToStatus      ReservationStatus `json:"to_status"`
	ActorID       string            `json:"actor_id"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
