package models

import "time"

// ReservationStatus is the canonical lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusApproved  ReservationStatus = "APPROVED"
	StatusCompleted ReservationStatus = "COMPLETED"
	StatusCancelled ReservationStatus = "CANCELLED"
)

// Terminal reports whether no further transition is legal.
func (s ReservationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Reservation is a time-bound claim on one slot by one owner.
type Reservation struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"owner_id"`
	StationID     string            `json:"station_id"`
	StationName   string            `json:"station_name,omitempty"`
	SlotNumber    int               `json:"slot_number"`
	StartTime     time.Time         `json:"start_time"`
	DurationHours int               `json:"duration_hours"`
	Status        ReservationStatus `json:"status"`
	QRPayload     string            `json:"qr_payload,omitempty"`
	ApprovedBy    string            `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time        `json:"approved_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
}

// EndTime is the end of the booked window.
func (r *Reservation) EndTime() time.Time {
	return r.StartTime.Add(time.Duration(r.DurationHours) * time.Hour)
}

// Slot returns the composite key of the booked slot.
func (r *Reservation) Slot() SlotKey {
	return SlotKey{StationID: r.StationID, SlotNumber: r.SlotNumber}
}

// Clone returns a deep copy so callers never share timestamp pointers.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	out := *r
	out.ApprovedAt = cloneTime(r.ApprovedAt)
	out.CompletedAt = cloneTime(r.CompletedAt)
	out.CancelledAt = cloneTime(r.CancelledAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
