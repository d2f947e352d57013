package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/events"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/logging"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/session"
	"github.com/noah-isme/gema-assessment-api/pkg/ai"
	cloud "github.com/noah-isme/gema-assessment-api/pkg/cloudinary"
	dockerexec "github.com/noah-isme/gema-assessment-api/pkg/docker"
	"github.com/noah-isme/gema-assessment-api/pkg/piston"
	"github.com/noah-isme/gema-assessment-api/pkg/sqlengine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: cfg.AppName,
		Env:     cfg.AppEnv,
	}, os.Stdout)
	defer logCloser.Close()

	observability.RegisterMetrics()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelConnect()

	db, err := database.ConnectPostgres(connectCtx, cfg.DatabaseURL, database.DefaultPoolOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(connectCtx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer func() { _ = natsConn.Drain() }()
	}

	engine, closeEngine, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure code execution")
	}
	defer closeEngine()

	var uploader service.DocumentUploader
	if cfg.CloudinaryEnabled() {
		cloudService, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		uploader = cloudService
	} else {
		logger.Warn().Msg("cloudinary not configured; review export disabled")
	}

	var reviewer ai.Reviewer
	if cfg.OpenAIAPIKey != "" {
		openAI, err := ai.NewOpenAIReviewer(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create openai reviewer")
		}
		reviewer = openAI
	}

	bus := events.NewBus(natsConn, cfg.EventSubjectBase, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	courseRepo := repository.NewCourseRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	proctoringRepo := repository.NewProctoringRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	userRepo := repository.NewUserRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	catalog := service.NewCatalogCache(redisClient, logger)
	service.SubscribeCatalogInvalidation(bus, catalog, logger)
	reviewService := service.NewReviewService(assessmentRepo, completionRepo, bus, uploader, cfg.ReviewPurgeBatchSize, logger)

	registry := session.NewRegistry(nil)
	attemptService := service.NewAttemptService(service.AttemptServiceDeps{
		Assessments: assessmentRepo,
		Questions:   questionRepo,
		Courses:     courseRepo,
		Submissions: submissionRepo,
		Completions: completionRepo,
		Store:       session.NewRedisStore(redisClient, cfg.SessionTTL),
		Registry:    registry,
		Runner:      engine,
		Reviews:     reviewService,
		Publisher:   bus,
		Catalog:     catalog,
		Validator:   validate,
		Config: service.AttemptConfig{
			SessionTTL:    cfg.SessionTTL,
			AutosaveTicks: cfg.AutosaveTicks,
		},
	}, logger)
	assessmentService := service.NewAssessmentService(service.AssessmentServiceDeps{
		Assessments: assessmentRepo,
		Questions:   questionRepo,
		Courses:     courseRepo,
		Submissions: submissionRepo,
		Completions: completionRepo,
		Cache:       redisClient,
		CacheTTL:    cfg.DashboardCacheTTL,
		Validator:   validate,
		Activity:    activityService,
		Progress:    attemptService,
	}, logger)
	courseService := service.NewCourseService(courseRepo, validate, activityService, assessmentService, logger)
	questionService := service.NewQuestionService(questionRepo, validate, activityService, logger)
	proctoringService := service.NewProctoringService(proctoringRepo, assessmentRepo, courseRepo, validate, bus, logger)
	submissionService := service.NewSubmissionService(submissionRepo, questionRepo, feedbackRepo, reviewer, logger)
	seedService := service.NewSeedService(userRepo, courseRepo, catalog, cfg.SeedEnabled, cfg.SeedToken, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    12 << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		CourseHandler:     handler.NewCourseHandler(courseService, logger),
		QuestionHandler:   handler.NewQuestionHandler(questionService, logger),
		AssessmentHandler: handler.NewAssessmentHandler(assessmentService, logger),
		AttemptHandler:    handler.NewAttemptHandler(attemptService, middleware.RateLimit("attempt-run", cfg.RunRateLimit, cfg.RunRateWindow), logger),
		ReviewHandler:     handler.NewReviewHandler(reviewService, logger),
		ProctoringHandler: handler.NewProctoringHandler(proctoringService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		ActivityHandler:   handler.NewAdminActivityHandler(activityService, logger),
		TimerHandler:      handler.NewTimerHandler(attemptService, logger),
		SeedHandler:       handler.NewSeedHandler(seedService, logger),
		HealthProbes:      healthProbes(db, redisClient, natsConn),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	go func() {
		if err := bus.Start(busCtx); err != nil {
			logger.Error().Err(err).Msg("event bus stopped")
		}
	}()

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("execution_backend", cfg.ExecutionBackend).Msg("server starting")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, attemptService, logger)
}

// buildEngine wires the SQL engine and the configured Java/Python backend.
func buildEngine(cfg config.Config, logger zerolog.Logger) (*grading.Engine, func(), error) {
	backends := map[string]grading.Backend{
		grading.LanguageSQL: grading.NewSQLBackend(sqlengine.New(logger)),
	}
	closeFn := func() {}

	switch cfg.ExecutionBackend {
	case config.ExecutionDocker:
		executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
			Host:          cfg.DockerHost,
			Timeout:       cfg.ExecutionTimeout,
			MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
			CPUShares:     int64(cfg.CodeRunCPUShares),
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		container := grading.NewContainerBackend(executor, nil, grading.ContainerConfig{
			Timeout:       cfg.ExecutionTimeout,
			MemoryLimitMB: cfg.CodeRunMemoryMB,
			CPUShares:     cfg.CodeRunCPUShares,
		})
		backends[grading.LanguageJava] = container
		backends[grading.LanguagePython] = container
		closeFn = func() {
			if err := executor.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close docker client")
			}
		}
	default:
		client := piston.New(piston.Config{
			Endpoint:      cfg.ExecutionEndpoint,
			Timeout:       cfg.ExecutionTimeout * 3,
			RatePerSecond: cfg.ExecutionRatePerSecond,
			Logger:        logger,
		})
		remote := grading.NewRemoteBackend(client, nil)
		backends[grading.LanguageJava] = remote
		backends[grading.LanguagePython] = remote
	}

	engine := grading.NewEngine(grading.EngineConfig{
		Concurrency: cfg.ExecutionConcurrency,
		CaseTimeout: cfg.ExecutionTimeout * 3,
		Logger:      logger,
	}, backends)
	return engine, closeFn, nil
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, conn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	if conn != nil {
		probes["nats"] = func(context.Context) error {
			if !conn.IsConnected() {
				return fmt.Errorf("nats status %s", conn.Status())
			}
			return nil
		}
	}
	return probes
}

func waitForShutdown(app *fiber.App, attempts service.AttemptService, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	attempts.Shutdown(ctx)
	logger.Info().Msg("server stopped")
}
