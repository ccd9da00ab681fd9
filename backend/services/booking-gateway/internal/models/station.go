package models

import "fmt"

// ConnectorType names the physical plug of a slot.
type ConnectorType string

const (
	ConnectorType1   ConnectorType = "Type1"
	ConnectorType2   ConnectorType = "Type2"
	ConnectorCCS     ConnectorType = "CCS"
	ConnectorCHAdeMO ConnectorType = "CHAdeMO"
	ConnectorOther   ConnectorType = "Other"
)

// SlotKey identifies a slot within a station.
type SlotKey struct {
	StationID  string
	SlotNumber int
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s#%d", k.StationID, k.SlotNumber)
}

// Slot is a single reservable connector position.
type Slot struct {
	StationID     string        `json:"station_id"`
	SlotNumber    int           `json:"slot_number"`
	ConnectorType ConnectorType `json:"connector_type"`
	PowerRatingKW float64       `json:"power_rating_kw"`
	IsAvailable   bool          `json:"is_available"`
}

// Key returns the slot's composite identity.
func (s Slot) Key() SlotKey {
	return SlotKey{StationID: s.StationID, SlotNumber: s.SlotNumber}
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Station groups slots under one operator.
type Station struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Location   GeoPoint `json:"location"`
	Address    string   `json:"address,omitempty"`
	OperatorID string   `json:"operator_id"`
	Slots      []Slot   `json:"slots"`
}

// AvailableSlots counts slots currently open for new bookings.
func (s Station) AvailableSlots() int {
	n := 0
	for _, slot := range s.Slots {
		if slot.IsAvailable {
			n++
		}
	}
	return n
}
