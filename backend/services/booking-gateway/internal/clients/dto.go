package clients

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chargebook/backend/services/booking-gateway/internal/models"
)

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) hasData() bool {
	d := strings.TrimSpace(string(e.Data))
	return d != "" && d != "null"
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginDTO struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	Username  string `json:"username"`
	UserID    string `json:"userId"`
	Nic       string `json:"nic"`
	ExpiresAt string `json:"expiresAt"`
}

type createBookingRequest struct {
	EvOwnerNic          string `json:"EvOwnerNic"`
	StationID           string `json:"StationId"`
	SlotNumber          int    `json:"SlotNumber"`
	ReservationDateTime string `json:"ReservationDateTime"`
	Duration            int    `json:"Duration"`
}

type modifyBookingRequest struct {
	ReservationID   string `json:"reservationId"`
	NewStartTimeIso string `json:"newStartTimeIso"`
}

type cancelBookingRequest struct {
	ReservationID string `json:"reservationId"`
}

type approveBookingRequest struct {
	ReservationID string `json:"reservationId"`
	OperatorID    string `json:"operatorId"`
}

type confirmArrivalRequest struct {
	QrCode string `json:"QrCode"`
}

type slotAvailabilityRequest struct {
	IsAvailable bool `json:"IsAvailable"`
}

// reservationDTO tolerates the field aliases different backend versions use.
type reservationDTO struct {
	ID                  string `json:"id"`
	BookingID           string `json:"bookingId"`
	EvOwnerNic          string `json:"evOwnerNic"`
	OwnerNic            string `json:"ownerNic"`
	StationID           string `json:"stationId"`
	StationName         string `json:"stationName"`
	ReservationDateTime string `json:"reservationDateTime"`
	StartTime           string `json:"startTime"`
	SlotNumber          int    `json:"slotNumber"`
	Duration            int    `json:"duration"`
	Status              string `json:"status"`
	ApprovedBy          string `json:"approvedBy"`
	ApprovedAt          string `json:"approvedAt"`
	CompletedAt         string `json:"completedAt"`
	CancelledAt         string `json:"cancelledAt"`
	QrCode              string `json:"qrCode"`
	QrCodePayload       string `json:"qrCodePayload"`
}

func (d reservationDTO) toModel() (*models.Reservation, error) {
	r := &models.Reservation{
		ID:            firstNonEmpty(d.ID, d.BookingID),
		OwnerID:       firstNonEmpty(d.EvOwnerNic, d.OwnerNic),
		StationID:     d.StationID,
		StationName:   d.StationName,
		SlotNumber:    d.SlotNumber,
		DurationHours: d.Duration,
		Status:        models.ReservationStatus(strings.ToUpper(strings.TrimSpace(d.Status))),
		ApprovedBy:    d.ApprovedBy,
		QRPayload:     firstNonEmpty(d.QrCodePayload, d.QrCode),
	}

	start, err := parseTime(firstNonEmpty(d.ReservationDateTime, d.StartTime))
	if err != nil {
		return nil, fmt.Errorf("reservation %s start: %w", r.ID, err)
	}
	r.StartTime = start

	for _, f := range []struct {
		raw string
		dst **time.Time
	}{
		{d.ApprovedAt, &r.ApprovedAt},
		{d.CompletedAt, &r.CompletedAt},
		{d.CancelledAt, &r.CancelledAt},
	} {
		if f.raw == "" {
			continue
		}
		t, err := parseTime(f.raw)
		if err != nil {
			return nil, fmt.Errorf("reservation %s: %w", r.ID, err)
		}
		*f.dst = &t
	}
	return r, nil
}

type slotDTO struct {
	SlotNumber    int     `json:"slotNumber"`
	IsAvailable   bool    `json:"isAvailable"`
	PowerRating   float64 `json:"powerRating"`
	ConnectorType string  `json:"connectorType"`
}

type stationDTO struct {
	ID         string    `json:"id"`
	StationID  string    `json:"stationId"`
	Name       string    `json:"name"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address"`
	OperatorID string    `json:"operatorId"`
	Slots      []slotDTO `json:"slots"`
}

func (d stationDTO) toModel() models.Station {
	st := models.Station{
		ID:         firstNonEmpty(d.StationID, d.ID),
		Name:       d.Name,
		Location:   models.GeoPoint{Latitude: d.Latitude, Longitude: d.Longitude},
		Address:    d.Address,
		OperatorID: d.OperatorID,
		Slots:      make([]models.Slot, 0, len(d.Slots)),
	}
	for _, s := range d.Slots {
		st.Slots = append(st.Slots, models.Slot{
			StationID:     st.ID,
			SlotNumber:    s.SlotNumber,
			ConnectorType: normalizeConnector(s.ConnectorType),
			PowerRatingKW: s.PowerRating,
			IsAvailable:   s.IsAvailable,
		})
	}
	return st
}

func normalizeConnector(raw string) models.ConnectorType {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", "")) {
	case "type1", "j1772":
		return models.ConnectorType1
	case "type2", "mennekes":
		return models.ConnectorType2
	case "ccs", "ccs2", "ccs1":
		return models.ConnectorCCS
	case "chademo":
		return models.ConnectorCHAdeMO
	}
	return models.ConnectorOther
}

// Backend timestamps are ISO-8601; zone-less values are taken as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
