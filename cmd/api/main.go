package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"influencer-gifting-api/internal/cache"
	"influencer-gifting-api/internal/commerce"
	"influencer-gifting-api/internal/config"
	"influencer-gifting-api/internal/database"
	"influencer-gifting-api/internal/events"
	"influencer-gifting-api/internal/features"
	"influencer-gifting-api/internal/handler"
	"influencer-gifting-api/internal/logging"
	"influencer-gifting-api/internal/middleware"
	"influencer-gifting-api/internal/service"
	tlsconfig "influencer-gifting-api/internal/tls"
	"influencer-gifting-api/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configFile := flag.String("config", "", "Optional JSON or YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: tracing.DefaultServiceName,
		Environment: cfg.Tracing.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	}); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Initialize database
	dsn := cfg.Database.Path
	if cfg.Database.Driver == database.DriverPostgres {
		dsn = cfg.Database.DSN
	}
	db, err := database.NewDB(cfg.Database.Driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	campaignCache, closeCache, err := newCampaignCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	eventManager := events.NewManager(cfg.Features.EventHooks, logger)
	defer eventManager.Shutdown()
	eventManager.Subscribe(events.EventClaimDuplicate, func(ctx context.Context, e events.Event) error {
		data := e.Data.(events.ClaimDuplicateData)
		logger.Info("claim awaiting duplicate review",
			zap.String("campaign", data.Campaign.Slug),
			zap.String("attempt_id", data.Attempt.ID))
		return nil
	})

	flags := features.Defaults(
		cfg.Features.Cache,
		cfg.Features.EventHooks,
		cfg.Features.CommerceSync,
		cfg.Features.ForceDraft,
	)

	svc := service.NewService(db, service.Options{
		Platform:  newPlatform(cfg, logger),
		Campaigns: campaignCache,
		Events:    eventManager,
		Features:  flags,
		Logger:    logger,
		OrderMode: commerce.OrderMode(cfg.Shopify.OrderMode),
	})

	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Logger:      logger,
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware(tracing.DefaultServiceName))

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h.Register(r)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Configure TLS if enabled
	var tlsConfig *tls.Config
	if cfg.Server.EnableTLS {
		tlsConfig, err = tlsconfig.LoadTLSConfig(tlsconfig.Config{
			CertFile: cfg.Server.CertFile,
			KeyFile:  cfg.Server.KeyFile,
		})
		if err != nil {
			return fmt.Errorf("failed to load TLS configuration: %w", err)
		}
		if cfg.Server.CertFile == "" {
			logger.Warn("no certificate files provided, using self-signed certificate for development")
		}
	}

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	logger.Info("starting server",
		zap.String("addr", addr),
		zap.Bool("tls", tlsConfig != nil),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Int("rate_limit_requests", cfg.RateLimit.Rate),
		zap.Int("rate_limit_window_seconds", cfg.RateLimit.Window),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	// Graceful shutdown
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sigint:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error closing server", zap.Error(err))
	}
	if err := tracing.Shutdown(ctx); err != nil {
		logger.Error("error shutting down tracer", zap.Error(err))
	}
	return nil
}

// newCampaignCache picks Redis when an address is configured and the
// in-process cache otherwise.
func newCampaignCache(cfg *config.Config, logger *zap.Logger) (*cache.Campaigns, func(), error) {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second

	if cfg.Cache.RedisAddr == "" {
		return cache.NewCampaigns(cache.NewInMemoryCache(), ttl), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisCache, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, "gifting:")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("campaign cache backed by redis", zap.String("addr", cfg.Cache.RedisAddr))

	return cache.NewCampaigns(redisCache, ttl), func() { redisCache.Close() }, nil
}

// newPlatform returns the Shopify client, or the in-memory platform when no
// shop is configured.
func newPlatform(cfg *config.Config, logger *zap.Logger) commerce.Platform {
	if cfg.Shopify.ShopDomain == "" && cfg.Shopify.AccessToken == "" {
		logger.Warn("no shopify credentials configured, using in-memory commerce platform")
		return commerce.NewFake()
	}
	return commerce.NewShopifyClient(commerce.ShopifyConfig{
		APIVersion:  cfg.Shopify.APIVersion,
		ShopDomain:  cfg.Shopify.ShopDomain,
		AccessToken: cfg.Shopify.AccessToken,
		OrderMode:   commerce.OrderMode(cfg.Shopify.OrderMode),
		AppURL:      cfg.Shopify.AppURL,
	}, logger)
}
