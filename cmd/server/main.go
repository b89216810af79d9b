package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/disasterwatch/disasterwatch/internal/api"
	"github.com/disasterwatch/disasterwatch/internal/auth"
	"github.com/disasterwatch/disasterwatch/internal/classifier"
	"github.com/disasterwatch/disasterwatch/internal/config"
	"github.com/disasterwatch/disasterwatch/internal/database"
	"github.com/disasterwatch/disasterwatch/internal/eventbus"
	"github.com/disasterwatch/disasterwatch/internal/geocode"
	"github.com/disasterwatch/disasterwatch/internal/inference"
	"github.com/disasterwatch/disasterwatch/internal/lifecycle"
	"github.com/disasterwatch/disasterwatch/internal/logging"
	"github.com/disasterwatch/disasterwatch/internal/metrics"
	"github.com/disasterwatch/disasterwatch/internal/retry"
	"github.com/disasterwatch/disasterwatch/internal/server"
	"github.com/disasterwatch/disasterwatch/internal/storage"
	"github.com/disasterwatch/disasterwatch/internal/tracking"
	"github.com/disasterwatch/disasterwatch/internal/users"
	"github.com/disasterwatch/disasterwatch/internal/validation"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting disasterwatch", "port", cfg.Server.Port)

	if cfg.Auth.JWTSecret == "change-this-secret" {
		logger.Warn("JWT_SECRET is using the default value; set it before going to production")
	}

	collector, err := metrics.NewHTTPCollector()
	if err != nil {
		return err
	}
	pipelineMetrics, err := metrics.NewPipeline(collector.Registry())
	if err != nil {
		return err
	}

	// Storage: PostgreSQL when configured, otherwise in-memory.
	var (
		reportRepo      lifecycle.Repository
		userRepo        users.Repository
		inferenceLogs   api.InferenceLogReader
		inferenceLogger *inference.Logger
		ready           func(context.Context) error
		db              *sql.DB
	)
	if cfg.Database.URL != "" {
		logger.Info("connecting to database")
		db, err = database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("database connected")
		if err := collector.RegisterDB(db, "postgres"); err != nil {
			return err
		}

		// Non-fatal so the service still starts when a migration is broken.
		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsDir, logger); err != nil {
			logger.Warn("failed to run migrations, continuing anyway", "error", err)
		}

		reportRepo = database.NewPostgresReportRepository(db)
		userRepo = database.NewPostgresUserRepository(db)
		inferenceRepo := database.NewInferenceLogRepository(db)
		inferenceLogs = inferenceRepo
		inferenceLogger = inference.NewLogger(inferenceRepo, logger)
		ready = func(ctx context.Context) error { return database.HealthCheck(ctx, db) }
	} else {
		logger.Warn("no database configured, reports and users are kept in memory")
		reportRepo = lifecycle.NewMemoryRepository()
		userRepo = users.NewMemoryRepository()
	}
	defer inferenceLogger.Wait()

	// Vision model
	var vision classifier.VisionModel = classifier.Unconfigured{}
	if cfg.AI.APIKey != "" {
		vision = classifier.NewOpenAIVision(classifier.OpenAIConfig{
			APIKey:    cfg.AI.APIKey,
			BaseURL:   cfg.AI.BaseURL,
			Model:     cfg.AI.Model,
			MaxTokens: cfg.AI.MaxTokens,
			Timeout:   cfg.AI.Timeout,
		}, inferenceLogger, logger)
		logger.Info("image analysis enabled", "model", cfg.AI.Model)
	} else {
		logger.Warn("OPENAI_API_KEY not set, image analysis is disabled")
	}
	imageClassifier := classifier.New(vision, classifier.Options{
		MaxImageDimension: cfg.AI.MaxImageDimension,
		Metrics:           pipelineMetrics,
		Logger:            logger,
	})

	// Geocoding
	var geocoder geocode.Geocoder
	if cfg.Geocoding.Token != "" {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = cfg.Geocoding.MaxRetries
		geocoder = geocode.NewMapboxClient(geocode.MapboxConfig{
			Token:   cfg.Geocoding.Token,
			BaseURL: cfg.Geocoding.BaseURL,
			Timeout: cfg.Geocoding.Timeout,
			Retry:   policy,
		}, inferenceLogger)
	} else {
		logger.Warn("MAPBOX_TOKEN not set, only literal coordinates will resolve")
	}
	resolver := geocode.NewResolver(geocoder, pipelineMetrics, logger)

	// Images
	var images storage.ImageStore = storage.InlineStore{}
	if cfg.Storage.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Prefix:          cfg.Storage.Prefix,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		images = s3Store
		logger.Info("storing report images in S3", "bucket", cfg.Storage.Bucket)
	}

	// Report events
	var publisher eventbus.Publisher = eventbus.Noop{}
	if cfg.Events.RedisAddr != "" {
		redisPublisher, err := eventbus.NewRedisPublisher(ctx, eventbus.RedisConfig{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
			Stream:   cfg.Events.Stream,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, report events are disabled", "error", err)
		} else {
			defer redisPublisher.Close()
			publisher = redisPublisher
		}
	}

	v := validation.New()
	reportService := lifecycle.NewService(reportRepo, lifecycle.Options{
		Resolver:  resolver,
		Images:    images,
		Publisher: publisher,
		Validator: v,
		Metrics:   pipelineMetrics,
		Logger:    logger,
	})
	tracker := tracking.NewService(reportRepo, resolver, logger)
	userService := users.NewService(userRepo, reportRepo, v, logger)

	handler := api.NewRouter(api.Dependencies{
		Reports:       reportService,
		Creator:       reportService,
		Tracker:       tracker,
		Users:         userService,
		Classifier:    imageClassifier,
		Resolver:      resolver,
		InferenceLogs: inferenceLogs,
		Ready:         ready,
		Auth: auth.Config{
			JWTSecret:     cfg.Auth.JWTSecret,
			TokenDuration: cfg.Auth.TokenDuration,
			Principals:    userService,
		},
		MaxImageBytes: cfg.Storage.MaxImageBytes,
		Metrics:       collector,
		Logger:        logger,
	})

	if cfg.Server.StaticDir != "" {
		handler = server.SPAHandler(handler, cfg.Server.StaticDir)
		logger.Info("serving frontend", "dir", cfg.Server.StaticDir)
	}

	srv := server.New(cfg.Server, logger, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("server stopped unexpectedly")
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
