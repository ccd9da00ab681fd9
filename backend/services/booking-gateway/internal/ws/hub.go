package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/ledger"
	"chargebook/backend/services/booking-gateway/internal/metrics"
	"chargebook/backend/services/booking-gateway/internal/models"
)

// Message types pushed to feed clients.
const (
	TypeSnapshot   = "snapshot"
	TypeSlotChange = "slot_change"
)

// Message is one frame of the slot feed.
type Message struct {
	Type       string          `json:"type"`
	StationID  string          `json:"station_id"`
	SlotNumber int             `json:"slot_number,omitempty"`
	Available  *bool           `json:"available,omitempty"`
	Seq        uint64          `json:"seq,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	At         time.Time       `json:"at"`
	Station    *models.Station `json:"station,omitempty"`
}

// Hub fans ledger changes out to the connections subscribed to each station.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Connection]struct{}
	logger *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Connection]struct{}),
		logger: logger,
	}
}

// Add subscribes conn to its station.
func (h *Hub) Add(conn *Connection) {
	h.Subscribe(conn, nil)
}

// Subscribe queues first for conn and registers it under one lock, so a change
// published meanwhile reaches conn after first, never before it.
func (h *Hub) Subscribe(conn *Connection, first func() []byte) {
	h.mu.Lock()
	if first != nil {
		if raw := first(); raw != nil {
			conn.Send(raw)
		}
	}
	set, ok := h.subs[conn.StationID()]
	if !ok {
		set = make(map[*Connection]struct{})
		h.subs[conn.StationID()] = set
	}
	set[conn] = struct{}{}
	h.mu.Unlock()
	metrics.FeedClients(1)
}

// Remove drops conn.
func (h *Hub) Remove(conn *Connection) {
	h.mu.Lock()
	set := h.subs[conn.StationID()]
	_, ok := set[conn]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.subs, conn.StationID())
	}
	h.mu.Unlock()
	if ok {
		metrics.FeedClients(-1)
	}
}

// Len counts subscribers of stationID.
func (h *Hub) Len(stationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[stationID])
}

// Publish is a ledger.Observer. It never blocks on slow clients.
func (h *Hub) Publish(ch ledger.Change) {
	available := ch.Available
	h.broadcast(ch.StationID, Message{
		Type:       TypeSlotChange,
		StationID:  ch.StationID,
		SlotNumber: ch.Slot,
		Available:  &available,
		Seq:        ch.Seq,
		Reason:     ch.Reason,
		At:         ch.At,
	})
}

func (h *Hub) broadcast(stationID string, msg Message) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.subs[stationID]))
	for conn := range h.subs[stationID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode feed message", zap.Error(err))
		return
	}
	for _, conn := range targets {
		conn.Send(raw)
	}
}

// Run blocks until ctx ends and then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.RLock()
	var all []*Connection
	for _, set := range h.subs {
		for conn := range set {
			all = append(all, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range all {
		conn.Close()
	}
	h.logger.Info("slot feed stopped", zap.Int("disconnected", len(all)))
	return nil
}
