package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/auth"
	"github.com/upb/threatprofile-gateway/cognito"
	"github.com/upb/threatprofile-gateway/config"
	"github.com/upb/threatprofile-gateway/guard"
	"github.com/upb/threatprofile-gateway/handlers"
	"github.com/upb/threatprofile-gateway/internal/observability"
	"github.com/upb/threatprofile-gateway/middleware"
	"github.com/upb/threatprofile-gateway/profile"
	"github.com/upb/threatprofile-gateway/services"
	"github.com/upb/threatprofile-gateway/tokens"
)

// cacheCleanupInterval is how often expired profiles are swept from the cache
const cacheCleanupInterval = time.Minute

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Redis   *redis.Client // nil unless TOKEN_STORE=redis

	// Session
	TokenProvider tokens.Provider
	ProfileCache  *profile.Cache
	Profiles      *profile.CachedService

	// Guard
	Guard           *guard.Guard
	Routes          *guard.Table
	GuardMiddleware *middleware.GuardMiddleware

	// HTTP
	AuthHandler    *auth.Handler
	SessionHandler *handlers.SessionHandler
	HealthHandler  *handlers.HealthHandler
	PageProxy      http.Handler

	stopCleanup chan struct{}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     observability.NewMetrics(),
		Routes:      guard.DashboardRoutes(),
		stopCleanup: make(chan struct{}),
	}

	if err := deps.initTokenStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}

	deps.initProfiles(cfg)
	deps.initGuard(cfg)
	deps.initAuth(cfg)

	if err := deps.initHandlers(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("token_store", cfg.Session.TokenStore),
		zap.String("profile_service", cfg.ProfileService.URL),
	)
	return deps, nil
}

// initTokenStore selects where the token pair lives between requests
func (d *Dependencies) initTokenStore(ctx context.Context, cfg *config.Config) error {
	opts := tokens.CookieOptions{
		Secure: cfg.Session.CookieSecure,
		Domain: cfg.Session.CookieDomain,
		MaxAge: cfg.Session.TTL,
	}

	if cfg.Session.TokenStore != config.TokenStoreRedis {
		d.TokenProvider = tokens.NewCookieProvider(opts)
		return nil
	}

	client, err := tokens.Connect(ctx, cfg.Session.RedisURL)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.TokenProvider = tokens.NewRedisProvider(client, opts)
	d.Logger.Info("redis token store connected")
	return nil
}

// initProfiles builds the cached profile service and starts the cache sweeper
func (d *Dependencies) initProfiles(cfg *config.Config) {
	var cache *profile.Cache
	if cfg.ProfileService.CacheTTL > 0 && cfg.ProfileService.CacheSize > 0 {
		cache = profile.NewCache(cfg.ProfileService.CacheSize, cfg.ProfileService.CacheTTL)
		go cache.StartCleanupWorker(cacheCleanupInterval, d.stopCleanup)
	} else {
		d.Logger.Warn("profile cache disabled")
	}

	client := profile.NewHTTPClient(cfg.ProfileService.URL, cfg.ProfileService.Timeout)
	d.ProfileCache = cache
	d.Profiles = profile.NewCachedService(client, cache, d.Logger.Named("profile"), d.Metrics)
}

func (d *Dependencies) initGuard(cfg *config.Config) {
	d.Guard = guard.New(guard.Config{
		Targets: guard.Targets{
			Login:              cfg.Guard.LoginPath,
			CreateOrganization: cfg.Guard.CreateOrgPath,
			Inactive:           cfg.Guard.DashboardPath,
			Forbidden:          cfg.Guard.DashboardPath,
		},
		RevalidateInterval: cfg.Guard.RevalidateInterval,
		ValidatorOptions: []tokens.Option{
			tokens.WithClockSkew(cfg.Guard.ClockSkew),
			tokens.WithMetrics(d.Metrics),
		},
	}, d.Logger.Named("guard"), d.Metrics)

	d.GuardMiddleware = middleware.NewGuardMiddleware(d.Guard, d.TokenProvider, d.Profiles, cfg.Session.CookieSecure, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	var (
		exchanger services.TokenExchanger
		verifier  auth.PairVerifier
	)
	if cfg.Cognito.Domain != "" && cfg.Cognito.ClientID != "" {
		exchanger = services.NewCognitoTokenExchanger(cfg.Cognito)
	}
	if cfg.Cognito.UserPoolID != "" && cfg.Cognito.ClientID != "" {
		verifier = cognito.NewVerifier(cognito.Config{
			Region:      cfg.Cognito.Region,
			UserPoolID:  cfg.Cognito.UserPoolID,
			ClientID:    cfg.Cognito.ClientID,
			CacheTTL:    time.Hour,
			HTTPTimeout: 10 * time.Second,
		})
	}
	if exchanger == nil || verifier == nil {
		d.Logger.Warn("cognito not configured, login disabled")
	}

	d.AuthHandler = auth.NewHandler(cfg, exchanger, verifier, d.TokenProvider, d.Profiles, d.Logger.Named("auth"))
}

func (d *Dependencies) initHandlers(cfg *config.Config) error {
	checks := map[string]handlers.CheckFunc{}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}
	}
	d.HealthHandler = handlers.NewHealthHandler(checks, d.Logger)

	d.SessionHandler = handlers.NewSessionHandler(
		d.Guard,
		d.GuardMiddleware,
		d.Routes,
		d.TokenProvider,
		d.Profiles,
		cfg.Guard.DashboardPath,
		d.Logger.Named("session"),
	)

	proxy, err := handlers.NewPageProxy(cfg.Cognito.FrontEndURL, d.Logger)
	if err != nil {
		return err
	}
	d.PageProxy = proxy
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCleanup != nil {
		close(d.stopCleanup)
		d.stopCleanup = nil
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
