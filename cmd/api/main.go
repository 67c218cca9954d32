package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/locolive/socialgraph/internal/api"
	"github.com/locolive/socialgraph/internal/auth"
	"github.com/locolive/socialgraph/internal/config"
	"github.com/locolive/socialgraph/internal/domain"
	"github.com/locolive/socialgraph/internal/events"
	"github.com/locolive/socialgraph/internal/fcm"
	"github.com/locolive/socialgraph/internal/idp"
	"github.com/locolive/socialgraph/internal/repository"
	"github.com/locolive/socialgraph/internal/resilience"
	"github.com/locolive/socialgraph/internal/storage"
)

const version = "1.0.0"

// store is everything the services need from persistence
type store interface {
	domain.ProfileRepository
	domain.FollowRepository
	domain.ConnectionRepository
	domain.NotificationRepository
	Ping(ctx context.Context) error
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting social graph API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize persistence
	var repo store
	if cfg.UseMemoryStore() {
		logger.Warn("Using in-memory store - data is lost on restart")
		repo = repository.NewMemoryRepository()
	} else {
		db, err := initDatabase(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		pg := repository.NewPostgresRepository(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		pg.StartCleanupWorker(ctx, cfg.Database.CleanupEvery, cfg.Database.DeliveryMaxAge)
		repo = pg
		logger.Info("Connected to database")
	}

	// Session token verifiers
	var verifiers []auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifiers = append(verifiers, auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Expiry, cfg.Auth.Issuer, cfg.Auth.Audience))
	}
	googleAuth := auth.NewGoogleAuthVerifier(cfg.Google.ClientIDs)
	if googleAuth.IsConfigured() {
		verifiers = append(verifiers, googleAuth)
		logger.Info("Google ID tokens accepted")
	}

	// Identity provider
	var provider domain.ClaimsProvider
	if cfg.Identity.BaseURL != "" {
		provider = idp.NewClient(ctx, idp.Config{
			BaseURL:      cfg.Identity.BaseURL,
			APIKey:       cfg.Identity.APIKey,
			TokenURL:     cfg.Identity.TokenURL,
			ClientID:     cfg.Identity.ClientID,
			ClientSecret: cfg.Identity.ClientSecret,
			Timeout:      cfg.Identity.Timeout,
		}, logger)
	} else {
		logger.Warn("Identity provider is NOT configured - set IDP_BASE_URL to enable, session claims only")
	}

	// Media storage
	media, uploadsDir, err := initMedia(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}

	// Events
	wmLogger := events.NewLoggerAdapter(logger)
	transport, err := initTransport(ctx, cfg.Events, wmLogger)
	if err != nil {
		logger.Fatal("Failed to initialize event transport", zap.Error(err))
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Error("Event transport close error", zap.Error(err))
		}
	}()
	publisher := events.NewPublisher(transport.Publisher, resilience.NewBreaker("event-publisher", logger, resilience.BreakerSettings{}))

	// Push notifications
	var push domain.PushSender
	if cfg.Firebase.Enabled {
		fcmClient, err := fcm.NewClient(ctx, logger, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Warn("Failed to initialize Firebase client - push notifications will be disabled", zap.Error(err))
		} else {
			push = fcmClient
			logger.Info("Firebase client initialized")
		}
	}

	// Initialize services
	identityService := domain.NewIdentityService(repo, provider, logger)
	followService := domain.NewFollowService(repo, logger)
	connectionService := domain.NewConnectionService(repo, publisher, logger,
		domain.WithRequestLimit(cfg.Social.RequestLimit, cfg.Social.RequestWindow))
	profileService := domain.NewProfileService(repo, media, logger)
	notificationService := domain.NewNotificationService(repo, push, logger)

	// Event consumer
	eventRouter, err := events.NewRouter(events.DefaultRouterConfig(), transport.Subscriber, notificationService, wmLogger)
	if err != nil {
		logger.Fatal("Failed to create event router", zap.Error(err))
	}
	go func() {
		if err := eventRouter.Run(ctx); err != nil {
			logger.Error("Event router stopped", zap.Error(err))
		}
	}()
	<-eventRouter.Running()
	connectionService.StartEventRelay(ctx, cfg.Events.RelayInterval, cfg.Events.RelayGrace)

	// Initialize handlers
	router := api.NewRouter(
		api.NewUserHandler(profileService, logger),
		api.NewGraphHandler(followService, logger),
		api.NewConnectionHandler(connectionService, logger),
		api.NewHealthHandler(repo, version),
		identityService,
		verifiers,
		api.RouterConfig{
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			UploadsDir:        uploadsDir,
		},
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	if err := eventRouter.Close(); err != nil {
		logger.Error("Event router close error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 1 * time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// initMedia returns the media uploader and, for local storage, the directory
// to serve under /uploads.
func initMedia(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*storage.MediaService, string, error) {
	if cfg.Type == "s3" {
		s3Storage, err := storage.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		logger.Info("Using S3 media storage", zap.String("bucket", cfg.Bucket))
		return storage.NewMediaService(s3Storage, logger), "", nil
	}

	local, err := storage.NewLocalFileStorage(cfg.LocalPath, cfg.LocalURL)
	if err != nil {
		return nil, "", err
	}
	return storage.NewMediaService(local, logger), local.BasePath(), nil
}

func initTransport(ctx context.Context, cfg config.EventsConfig, logger watermill.LoggerAdapter) (*events.Transport, error) {
	if cfg.NATSURL == "" {
		return events.NewInMemoryTransport(logger), nil
	}
	return events.NewNATSTransport(ctx, events.NATSConfig{
		URL:             cfg.NATSURL,
		StreamName:      cfg.StreamName,
		Subjects:        []string{"connection.>"},
		DurableName:     cfg.DurableName,
		QueueGroup:      cfg.QueueGroup,
		MaxDeliver:      cfg.MaxDeliver,
		AckWait:         cfg.AckWait,
		DuplicateWindow: 2 * time.Minute,
	}, logger)
}
