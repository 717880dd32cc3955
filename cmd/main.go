/**
 * @description
 * Entry point for the staff portal backend. It wires configuration, Postgres,
 * Redis and RabbitMQ into the app services, then runs the HTTP server, the
 * outbox dispatcher, the approval consumer and the cron scheduler until a
 * shutdown signal arrives.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vishwadoshi-19/zense-staff/internal/api"
	"github.com/vishwadoshi-19/zense-staff/internal/app"
	"github.com/vishwadoshi-19/zense-staff/internal/config"
	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
	"github.com/vishwadoshi-19/zense-staff/pkg/rabbitmq"
	"github.com/vishwadoshi-19/zense-staff/pkg/smsclient"
)

// housekeeping groups the repository methods the scheduled jobs call.
type housekeeping struct {
	*store.PostgresUserRepository
	*store.PostgresDailyTaskRepository
	*store.PostgresOutboxRepository
}

func parseLogLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadLocation(name string, logger *slog.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown timezone; falling back to UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	dbConfig.MaxConns = cfg.DBMaxConns
	dbConfig.MinConns = cfg.DBMinConns
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed ensuring schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("unable to parse redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("unable to reach redis", "error", err)
		os.Exit(1)
	}
	logger.Info("redis connection established")

	location := loadLocation(cfg.Timezone, logger)

	userRepo := store.NewPostgresUserRepository(dbpool)
	dailyRepo := store.NewPostgresDailyTaskRepository(dbpool)
	jobRepo := store.NewPostgresJobRepository(dbpool)
	outboxRepo := store.NewPostgresOutboxRepository(dbpool)
	sessionStore := store.NewRedisSessionStore(redisClient, cfg.RedisPrefix+":")

	var sender app.OTPSender = smsclient.NewClient(cfg.SMSGatewayURL, cfg.SMSGatewayAPIKey, cfg.SMSSenderID)
	if strings.TrimSpace(cfg.SMSGatewayURL) == "" {
		logger.Warn("SMS_GATEWAY_URL not set; codes are logged instead of sent")
		sender = smsclient.LogSender{}
	}
	if cfg.OTPDevCode != "" {
		logger.Warn("OTP_DEV_CODE is set; every phone accepts the fixed code")
	}

	tokens := app.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	sessions := app.NewSessionProvider(userRepo, sessionStore, cfg.SessionLoadTimeout, logger)
	limiter := app.NewRedisRateLimiter(redisClient, cfg.RedisPrefix)
	auth := app.NewAuthService(
		sessionStore,
		limiter,
		sender,
		userRepo,
		tokens,
		sessions,
		app.AuthConfig{
			OTPTTL:      cfg.OTPTTL,
			MaxAttempts: cfg.OTPMaxAttempts,
			RateLimit:   cfg.OTPRateLimit,
			RateWindow:  cfg.OTPRateWindow,
			DevCode:     cfg.OTPDevCode,
			Exchange:    cfg.EventsExchange,
		},
		logger,
	)

	handler := api.NewHandler(api.Services{
		Auth:        auth,
		Sessions:    sessions,
		Onboarding:  app.NewOnboardingService(userRepo, sessions, cfg.EventsExchange, logger),
		DailyLog:    app.NewDailyLogService(dailyRepo, location, cfg.RangeMaxDays, logger),
		Jobs:        app.NewJobService(jobRepo, userRepo, logger),
		Tokens:      tokens,
		Revocations: sessionStore,
	}, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		EnableSampleRoutes: cfg.EnableSampleRoutes,
		AuthLimiter:        limiter,
		AuthIPLimit:        cfg.AuthIPRateLimit,
		AuthIPWindow:       cfg.AuthIPRateWindow,
	})

	logger.Info("rabbitmq configured", "url", rabbitmq.MaskURL(cfg.RabbitMQURL))
	connect := func() (rabbitmq.Publisher, error) {
		if strings.TrimSpace(cfg.RabbitMQURL) == "" {
			return rabbitmq.NoopPublisher{}, nil
		}
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		return producer, nil
	}
	dispatcher := app.NewOutboxDispatcher(outboxRepo, connect, logger)
	approvals := app.NewApprovalHandler(userRepo, sessions, logger)

	jobs := app.NewJobs(housekeeping{userRepo, dailyRepo, outboxRepo}, logger, cfg, location)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	logger.Info("scheduler started", "jobs", scheduler.Start())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(handler.CloseStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		runApprovalConsumer(gctx, cfg, approvals, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		<-scheduler.Stop().Done()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// runApprovalConsumer keeps a consumer bound to staff.approved, reconnecting
// after broker failures until ctx is cancelled.
func runApprovalConsumer(ctx context.Context, cfg config.Config, approvals *app.ApprovalHandler, logger *slog.Logger) {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn("RABBITMQ_URL not set; approval events will not be consumed")
		return
	}

	bindings := map[string]rabbitmq.Handler{
		domain.RoutingKeyStaffApproved: approvals.HandleStaffApproved,
	}
	backoff := 2 * time.Second
	for {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err == nil {
			logger.Info("approval consumer connected", "queue", cfg.ApprovalQueue)
			err = consumer.ConsumeWithBindings(ctx, cfg.EventsExchange, cfg.ApprovalQueue, bindings)
			consumer.Close()
			backoff = 2 * time.Second
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("approval consumer stopped; reconnecting", "error", err, "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Minute)
	}
}
