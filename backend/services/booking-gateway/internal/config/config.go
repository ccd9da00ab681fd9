package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	libconfig "chargebook/backend/libs/config"
	"chargebook/backend/libs/secrets"
	"chargebook/backend/services/booking-gateway/internal/qr"
)

const defaultPort = "8090"

// HTTP is the inbound listener.
type HTTP struct {
	Port string `yaml:"port" env:"GATEWAY_HTTP_PORT"`
}

// Backend points at the authoritative booking service.
type Backend struct {
	URL     string        `yaml:"url" env:"BOOKING_BACKEND_URL"`
	Timeout time.Duration `yaml:"timeout" env:"BOOKING_BACKEND_TIMEOUT"`
}

// Database is the optional transition journal store.
type Database struct {
	DSN string `yaml:"dsn" env:"GATEWAY_POSTGRES_DSN"`
}

// Redis holds sessions and the reservation cache. Empty Addr keeps both in memory.
type Redis struct {
	Addr           string        `yaml:"addr" env:"GATEWAY_REDIS_ADDR"`
	Password       string        `yaml:"password" env:"GATEWAY_REDIS_PASSWORD"`
	DB             int           `yaml:"db" env:"GATEWAY_REDIS_DB"`
	ReservationTTL time.Duration `yaml:"reservationTtl" env:"GATEWAY_RESERVATION_TTL"`
}

// Security carries key material and token settings.
type Security struct {
	MasterSecret string        `yaml:"masterSecret" env:"GATEWAY_MASTER_SECRET"`
	QRMode       string        `yaml:"qrMode" env:"GATEWAY_QR_MODE"`
	SessionTTL   time.Duration `yaml:"sessionTtl" env:"GATEWAY_SESSION_TTL"`
}

// WebSocket tunes the live slot feed.
type WebSocket struct {
	PingInterval time.Duration `yaml:"pingInterval" env:"GATEWAY_WS_PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"GATEWAY_WS_WRITE_TIMEOUT"`
}

// Config defines booking gateway configuration.
type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Backend   Backend   `yaml:"backend"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Security  Security  `yaml:"security"`
	WebSocket WebSocket `yaml:"websocket"`
}

// Load uses shared config loader and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:    HTTP{Port: defaultPort},
		Backend: Backend{Timeout: 10 * time.Second},
		Redis:   Redis{ReservationTTL: 10 * time.Minute},
		Security: Security{
			QRMode:     string(qr.ModeSigned),
			SessionTTL: 12 * time.Hour,
		},
		WebSocket: WebSocket{
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	raw := strings.TrimSpace(c.Backend.URL)
	if raw == "" {
		return errors.New("booking backend url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("booking backend url %q is not absolute", raw)
	}
	if len(strings.TrimSpace(c.Security.MasterSecret)) < secrets.MinMasterLength {
		return fmt.Errorf("master secret must be at least %d characters", secrets.MinMasterLength)
	}
	switch qr.Mode(c.Security.QRMode) {
	case qr.ModeSigned, qr.ModeRaw:
	default:
		return fmt.Errorf("unknown qr mode %q", c.Security.QRMode)
	}
	if c.Redis.DB < 0 {
		return errors.New("redis db index must not be negative")
	}
	return nil
}

// HTTPAddress returns :port style address. A host:port value is used as is.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// BackendTimeout returns the per-call backend timeout.
func (c *Config) BackendTimeout() time.Duration {
	return orDefault(c.Backend.Timeout, 10*time.Second)
}

// SessionFallbackTTL is the session lifetime when the backend reports no expiry.
func (c *Config) SessionFallbackTTL() time.Duration {
	return orDefault(c.Security.SessionTTL, 12*time.Hour)
}

// ReservationTTL bounds how long a cached reservation is trusted.
func (c *Config) ReservationTTL() time.Duration {
	return orDefault(c.Redis.ReservationTTL, 10*time.Minute)
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	return orDefault(c.WebSocket.PingInterval, 30*time.Second)
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return orDefault(c.WebSocket.WriteTimeout, 10*time.Second)
}

// QRMode returns the configured payload format.
func (c *Config) QRMode() qr.Mode {
	return qr.Mode(c.Security.QRMode)
}

// UseRedis reports whether sessions and cache live in redis.
func (c *Config) UseRedis() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// UsePostgres reports whether the journal is persisted.
func (c *Config) UsePostgres() bool {
	return strings.TrimSpace(c.Database.DSN) != ""
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
