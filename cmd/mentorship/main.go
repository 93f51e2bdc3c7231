package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkayan/mentorship/api"
	"github.com/getkayan/mentorship/core/audit"
	"github.com/getkayan/mentorship/core/config"
	"github.com/getkayan/mentorship/core/flow"
	"github.com/getkayan/mentorship/core/guard"
	"github.com/getkayan/mentorship/core/health"
	"github.com/getkayan/mentorship/core/logger"
	"github.com/getkayan/mentorship/core/profile"
	"github.com/getkayan/mentorship/core/provider"
	"github.com/getkayan/mentorship/core/session"
	"github.com/getkayan/mentorship/core/telemetry"
	"github.com/getkayan/mentorship/core/token"
	"github.com/getkayan/mentorship/kgorm"
	"github.com/getkayan/mentorship/kredis"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger.Log.Info("Starting mentorship session service",
		zap.String("version", Version),
		zap.Int("port", cfg.Port),
		zap.String("db_type", cfg.DBType),
		zap.String("provider", cfg.Provider),
	)

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceVersion = Version
	telCfg.Enabled = cfg.TelemetryEnabled
	telCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tel, err := telemetry.NewProvider(telCfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdown("telemetry", tel.Shutdown)

	db, err := kgorm.Open(cfg.DBType, cfg.DSN, &gorm.Config{})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if !cfg.SkipAutoMigrate {
		if err := kgorm.NewRepository(db).AutoMigrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	manager := health.NewManager(Version, health.WithTimeout(2*time.Second))
	events := kgorm.NewAuditRepository(db)

	profiles := kgorm.NewProfileRepository(db)
	manager.Register(health.NewPingChecker("profile_store", profiles.Ping))
	store, err := profileStore(cfg, profiles, rdb, manager)
	if err != nil {
		return err
	}

	p, accounts, err := identityProvider(cfg, db, rdb, events)
	if err != nil {
		return err
	}

	resolver := profile.NewResolver(store, profile.WithDefaultRole(cfg.Role()))
	ctrl := session.NewController(p, resolver,
		session.WithLoginTimeout(cfg.LoginTimeout),
		session.WithTelemetry(tel),
	)
	defer ctrl.Close()
	if err := ctrl.Initialize(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	manager.Register(health.NewSessionChecker(ctrl))

	if r, ok := p.(provider.Refresher); ok {
		go provider.AutoRefresh(ctx, r, 30*time.Second, 2*time.Minute)
	}
	go purgeAudit(ctx, events, 30*24*time.Hour)

	table := guard.DefaultTable()
	if err := table.Validate(); err != nil {
		return fmt.Errorf("route table: %w", err)
	}

	opts := []api.Option{
		api.WithAuditStore(events),
		api.WithHealth(manager),
		api.WithMetrics(tel.Handler()),
	}
	if accounts != nil {
		opts = append(opts, api.WithAccounts(accounts), api.WithProvisioner(resolver))
	}
	h := api.NewHandler(ctrl,
		guard.NewAuthorizer(table, ctrl, guard.WithAuditStore(events), guard.WithTelemetry(tel)),
		opts...,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e, e.Group("/api/v1"))

	errc := make(chan error, 1)
	go func() {
		logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
		errc <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// profileStore layers the Redis and in-process caches over the database.
func profileStore(cfg *config.Config, db profile.Store, rdb redis.UniversalClient, manager *health.Manager) (profile.Store, error) {
	store := db
	if rdb != nil {
		cache := kredis.NewProfileCache(rdb, store, cfg.ProfileCacheTTL)
		manager.Register(health.NewPingChecker("redis", cache.Ping))
		store = cache
	}
	if cfg.ProfileCacheSize > 0 {
		cached, err := profile.NewCachedStore(store, cfg.ProfileCacheSize)
		if err != nil {
			return nil, err
		}
		store = cached
	}
	return store, nil
}

func identityProvider(cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient, events audit.AuditStore) (provider.Provider, api.Accounts, error) {
	if cfg.Provider == config.ProviderRemote {
		var key []byte
		if cfg.JWTSecret != "" {
			key = []byte(cfg.JWTSecret)
		}
		return provider.NewRemote(provider.RemoteConfig{
			BaseURL:      cfg.RemoteURL,
			ClientID:     cfg.RemoteClientID,
			ClientSecret: cfg.RemoteClientSecret,
			VerifyKey:    key,
		}), nil, nil
	}

	var tokens *token.Manager
	switch cfg.SessionStrategy {
	case config.StrategyDatabase:
		tokens = kgorm.NewDatabaseTokens(db, cfg.SessionTTL)
	default:
		tokens = token.NewManager(token.NewHS256Strategy(cfg.JWTSecret, cfg.SessionTTL))
	}
	tokens.AddLogoutNotifier(token.LogoutNotifierFunc(func(ctx context.Context, sessionID, identityID string) error {
		return audit.NewEvent(audit.EventSessionRevoked).
			Actor(identityID).
			Subject(sessionID).
			Success().
			Save(ctx, events)
	}))

	var lockout flow.LockoutStore = flow.NewMemoryLockoutStore()
	if rdb != nil {
		lockout = flow.NewRedisLockoutStore(rdb, "")
	}

	local := kgorm.NewLocalProvider(db, tokens,
		provider.WithAuditStore(events),
		provider.WithLockout(lockout, cfg.LockoutMaxFailures, cfg.LockoutDuration),
	)
	return local, local, nil
}

func purgeAudit(ctx context.Context, store audit.AuditStore, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Log.Warn("audit purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("audit events purged", zap.Int64("count", n))
			}
		}
	}
}

func shutdown(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Log.Warn("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
