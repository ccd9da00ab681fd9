package app

import (
	"context"
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chargebook/backend/libs/db"
	libredis "chargebook/backend/libs/redis"
	"chargebook/backend/libs/secrets"
	"chargebook/backend/services/booking-gateway/internal/authz"
	"chargebook/backend/services/booking-gateway/internal/clients"
	"chargebook/backend/services/booking-gateway/internal/config"
	httpserver "chargebook/backend/services/booking-gateway/internal/http"
	"chargebook/backend/services/booking-gateway/internal/http/handlers"
	"chargebook/backend/services/booking-gateway/internal/http/middleware"
	"chargebook/backend/services/booking-gateway/internal/inflight"
	"chargebook/backend/services/booking-gateway/internal/ledger"
	"chargebook/backend/services/booking-gateway/internal/lifecycle"
	"chargebook/backend/services/booking-gateway/internal/policy"
	"chargebook/backend/services/booking-gateway/internal/qr"
	redisstore "chargebook/backend/services/booking-gateway/internal/redis"
	"chargebook/backend/services/booking-gateway/internal/repository"
	"chargebook/backend/services/booking-gateway/internal/service"
	"chargebook/backend/services/booking-gateway/internal/session"
	"chargebook/backend/services/booking-gateway/internal/ws"
)

const (
	jwtKeyPurpose = "booking-gateway/jwt"
	qrKeyPurpose  = "booking-gateway/qr"
	keySize       = 32
)

var (
	_ handlers.Bookings       = (*service.ReservationService)(nil)
	_ handlers.Operations     = (*service.OperatorService)(nil)
	_ handlers.FeedAuthorizer = (*service.OperatorService)(nil)
	_ handlers.Authenticator  = (*service.AuthService)(nil)
	_ handlers.FeedServer     = (*ws.Server)(nil)
)

// App wires booking gateway dependencies.
type App struct {
	server *httpserver.Server
	hub    *ws.Hub
	db     *sql.DB
	redis  *goredis.Client
	logger *zap.Logger
}

// New builds the application graph. Postgres and redis are optional; without
// them the journal, sessions and cache stay in process memory.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	jwtKey, err := secrets.Derive(cfg.Security.MasterSecret, jwtKeyPurpose, keySize)
	if err != nil {
		return nil, err
	}
	qrKey, err := secrets.Derive(cfg.Security.MasterSecret, qrKeyPurpose, keySize)
	if err != nil {
		return nil, err
	}
	codec, err := qr.NewCodec(cfg.QRMode(), qrKey)
	if err != nil {
		return nil, err
	}

	clock := policy.SystemClock{}
	checks := map[string]handlers.Check{}

	var journal repository.TransitionJournal = repository.NewMemoryJournal()
	if cfg.UsePostgres() {
		sqlDB, err := db.NewPostgresDB(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: postgres: %w", err)
		}
		a.db = sqlDB
		pg := repository.NewPostgresJournal(sqlDB)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: journal schema: %w", err)
		}
		journal = pg
		checks["postgres"] = sqlDB.PingContext
	} else {
		logger.Warn("GATEWAY_POSTGRES_DSN not set, transition journal kept in memory")
	}

	var (
		sessions session.Store               = session.NewMemoryStore(clock)
		cache    repository.ReservationStore = repository.NewMemoryReservationStore()
	)
	if cfg.UseRedis() {
		client, err := libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		a.redis = client
		sessions = redisstore.NewSessionStore(client, clock, cfg.SessionFallbackTTL())
		cache = redisstore.NewReservationStore(client, cfg.ReservationTTL())
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		logger.Warn("GATEWAY_REDIS_ADDR not set, sessions and reservation cache kept in memory")
	}

	backend, err := clients.NewBackendClient(cfg.Backend.URL, clients.NewDefaultHTTPClient(cfg.BackendTimeout()))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	slots := ledger.New(clock)
	a.hub = ws.NewHub(logger)
	slots.Observe(a.hub.Publish)

	deps := service.Deps{
		Backend: backend,
		Machine: lifecycle.NewMachine(clock),
		Gate:    authz.NewGate(slots, clock),
		Ledger:  slots,
		Codec:   codec,
		Cache:   cache,
		Journal: journal,
		Guard:   inflight.NewGuard(),
		Logger:  logger,
	}
	reservations := service.NewReservationService(deps)
	operators := service.NewOperatorService(deps)
	auth := service.NewAuthService(backend, sessions, service.NewTokenService(jwtKey, clock), clock, cfg.SessionFallbackTTL(), logger)
	feed := ws.NewServer(a.hub, operators.Snapshot, cfg.PingInterval(), cfg.WriteTimeout(), logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandlers:     handlers.NewAuthHandlers(auth, logger),
		BookingHandlers:  handlers.NewBookingHandlers(reservations, logger),
		OperatorHandlers: handlers.NewOperatorHandlers(operators, logger),
		FeedHandlers:     handlers.NewFeedHandlers(operators, feed, logger),
		HealthHandler:    handlers.NewHealthHandler(checks),
		Logger:           logger,
	}, middleware.AuthMiddleware(auth))

	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger, middleware.RecoveryMiddleware(logger))

	logger.Info("booking gateway configured",
		zap.String("backend_url", cfg.Backend.URL),
		zap.String("qr_mode", string(cfg.QRMode())),
		zap.Bool("postgres", a.db != nil),
		zap.Bool("redis", a.redis != nil),
	)
	return a, nil
}

// Run serves HTTP and the slot feed until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return a.hub.Run(gctx) })
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
