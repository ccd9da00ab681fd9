package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chargebook/backend/services/booking-gateway/internal/qr"
)

func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BOOKING_BACKEND_URL", "http://backend:8080/api")
	t.Setenv("GATEWAY_MASTER_SECRET", "a-long-enough-master-secret")
}

func TestLoadDefaults(t *testing.T) {
	baseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.HTTPAddress())
	require.Equal(t, 10*time.Second, cfg.BackendTimeout())
	require.Equal(t, qr.ModeSigned, cfg.QRMode())
	require.Equal(t, 30*time.Second, cfg.PingInterval())
	require.False(t, cfg.UseRedis())
	require.False(t, cfg.UsePostgres())
}

func TestLoadOverrides(t *testing.T) {
	baseEnv(t)
	t.Setenv("GATEWAY_HTTP_PORT", ":9100")
	t.Setenv("BOOKING_BACKEND_TIMEOUT", "3")
	t.Setenv("GATEWAY_REDIS_ADDR", "redis:6379")
	t.Setenv("GATEWAY_RESERVATION_TTL", "2m")
	t.Setenv("GATEWAY_QR_MODE", "raw")
	t.Setenv("GATEWAY_WS_PING_INTERVAL", "15s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9100", cfg.HTTPAddress())
	require.Equal(t, 3*time.Second, cfg.BackendTimeout())
	require.True(t, cfg.UseRedis())
	require.Equal(t, 2*time.Minute, cfg.ReservationTTL())
	require.Equal(t, qr.ModeRaw, cfg.QRMode())
	require.Equal(t, 15*time.Second, cfg.PingInterval())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"missing backend":  {"BOOKING_BACKEND_URL", ""},
		"relative backend": {"BOOKING_BACKEND_URL", "backend/api"},
		"weak secret":      {"GATEWAY_MASTER_SECRET", "short"},
		"bad qr mode":      {"GATEWAY_QR_MODE", "plain"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			baseEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestHTTPAddressForms(t *testing.T) {
	for in, want := range map[string]string{"": ":8090", "9000": ":9000", ":9001": ":9001", "127.0.0.1:0": "127.0.0.1:0"} {
		cfg := &Config{HTTP: HTTP{Port: in}}
		require.Equal(t, want, cfg.HTTPAddress(), in)
	}
}
