package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chargebook/backend/services/booking-gateway/internal/models"
)

// SnapshotFunc returns the current view of a station for new subscribers.
type SnapshotFunc func(stationID string) (models.Station, error)

// Server upgrades authorised feed requests and registers them with the hub.
type Server struct {
	hub          *Hub
	snapshot     SnapshotFunc
	logger       *zap.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds the feed server.
func NewServer(hub *Hub, snapshot SnapshotFunc, pingInterval, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Server{
		hub:          hub,
		snapshot:     snapshot,
		logger:       logger,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Serve upgrades r and streams stationID's slot changes to it. The caller
// must have authorised subscriberID for the station already.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, stationID, subscriberID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("feed upgrade failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(stationID, subscriberID, conn, s.pingInterval, s.writeTimeout, s.logger, func(c *Connection) {
		s.hub.Remove(c)
		cancel()
	})
	s.hub.Subscribe(connection, func() []byte { return s.snapshotMessage(stationID) })

	go connection.Start(ctx)
	s.logger.Info("feed subscriber connected", zap.String("station_id", stationID), zap.String("subscriber_id", subscriberID))
}

func (s *Server) snapshotMessage(stationID string) []byte {
	if s.snapshot == nil {
		return nil
	}
	st, err := s.snapshot(stationID)
	if err != nil {
		s.logger.Warn("feed snapshot unavailable", zap.String("station_id", stationID), zap.Error(err))
		return nil
	}
	raw, err := json.Marshal(Message{Type: TypeSnapshot, StationID: stationID, At: time.Now().UTC(), Station: &st})
	if err != nil {
		return nil
	}
	return raw
}
