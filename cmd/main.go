/**
 * @description
 * This is the main entry point for the ledger-service. It loads configuration, connects
 * the optional infrastructure (PostgreSQL, Redis, RabbitMQ), builds the risk model
 * registry and the application services, and starts the HTTP server, the broker
 * consumers and the job scheduler. Each optional dependency degrades to an in-process
 * fallback so the service can boot on a laptop with nothing else running.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: rate limiting and shared model artifacts.
 * - github.com/joho/godotenv: .env loading for local development.
 * - internal/api, internal/app, internal/config, internal/jobs, internal/risk, internal/store.
 * - pkg/paystack, pkg/fxclient, pkg/rabbitmq: external clients.
 */

package main

import (
	"context"
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
	"github.com/wirebuddy/ledger-service/internal/api"
	"github.com/wirebuddy/ledger-service/internal/app"
	"github.com/wirebuddy/ledger-service/internal/config"
	"github.com/wirebuddy/ledger-service/internal/jobs"
	"github.com/wirebuddy/ledger-service/internal/metrics"
	"github.com/wirebuddy/ledger-service/internal/risk"
	"github.com/wirebuddy/ledger-service/internal/store"
	"github.com/wirebuddy/ledger-service/pkg/fxclient"
	"github.com/wirebuddy/ledger-service/pkg/paystack"
	rmrabbit "github.com/wirebuddy/ledger-service/pkg/rabbitmq"
)

const consumerPrefetch = 10

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	log.Printf("level=info component=bootstrap msg=\"starting ledger-service\" port=%s instance=%s", cfg.ServerPort, cfg.InstanceID)

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
	}

	repository, closeRepository := openRepository(cfg)
	defer closeRepository()

	redisClient := connectRedis(cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Model artifacts are shared through Redis only when asked to; the file store is the default.
	var artifacts risk.ArtifactStore = risk.NewFileArtifactStore(cfg.ModelDir)
	if cfg.ModelStore == "redis" && redisClient != nil {
		artifacts = risk.NewRedisArtifactStore(redisClient, cfg.RedisKeyPrefix)
		log.Println("level=info component=bootstrap msg=\"model artifacts stored in redis\"")
	} else {
		log.Printf("level=info component=bootstrap msg=\"model artifacts stored on disk\" dir=%s", cfg.ModelDir)
	}

	registry := risk.NewRegistry(logger)
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	registry.Bootstrap(bootCtx, artifacts, time.Now())
	cancelBoot()

	var publisher rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	events := app.NewEventBus(publisher, cfg.EventsExchange, collector)
	retrier := store.NewRetrier(cfg.StoreRetryAttempts, cfg.StoreRetryBackoff())
	pipeline := app.NewRiskPipeline(repository, registry, events, collector)
	pipeline.SetScoringLocation(cfg.ScoringLocation())

	var limiter app.RateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
	} else if cfg.LoginRateLimitPerMinute > 0 {
		log.Println("level=warn component=bootstrap msg=\"redis unavailable; login rate limiting disabled\"")
	}

	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.PaystackCurrency, cfg.GatewayTimeout())
	trainer := risk.NewTrainer(repository, artifacts, registry, cfg.RetrainWindow(), logger)

	authService := app.NewAuthService(repository, limiter, cfg.JWTSecret, cfg.SessionTTL(), cfg.LoginRateLimitPerMinute)
	ledgerService := app.NewLedgerService(repository, retrier, pipeline, events, collector)
	reviewService := app.NewReviewService(repository, pipeline)
	paymentService := app.NewPaymentService(repository, retrier, gateway, pipeline, events, collector, cfg.PaystackCurrency, cfg.PaystackMomoBankCode)
	adminService := app.NewAdminService(repository, cfg.DefaultResetPIN)
	modelService := app.NewModelService(repository, registry, artifacts, trainer, events, collector)
	currencyService := app.NewCurrencyService(fxclient.NewClient(cfg.FXAPIURL, cfg.FXTimeout()))

	var signer *paystack.Signer
	if cfg.PaystackSecretKey != "" {
		signer = paystack.NewSigner(cfg.PaystackSecretKey)
	} else {
		log.Println("level=warn component=bootstrap msg=\"paystack secret key missing; webhooks disabled\" env=PAYSTACK_SECRET_KEY")
	}

	// Verified webhooks go through the broker when it is up so any instance can settle them.
	var gatewayEvents app.GatewayEventHandler = paymentService
	consumer := app.NewEventConsumer(paymentService, modelService)
	if rabbitProducer != nil {
		rabbitConsumer, consumeErr := startConsumers(cfg, consumer)
		if consumeErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumers unavailable; processing webhooks inline\" err=%v", consumeErr)
		} else {
			defer rabbitConsumer.Close()
			gatewayEvents = app.NewGatewayEventForwarder(rabbitProducer, cfg.EventsExchange)
		}
	}

	handlers := api.NewHandlers(api.Services{
		Auth:             authService,
		Ledger:           ledgerService,
		Review:           reviewService,
		Payments:         paymentService,
		Admin:            adminService,
		Models:           modelService,
		Advice:           app.NewAdviceService(),
		Currency:         currencyService,
		GatewayEvents:    gatewayEvents,
		Signer:           signer,
		DefaultScanLimit: cfg.FraudScanLimit,
	})

	var metricsHandler http.Handler
	if collector != nil {
		metricsHandler = collector.Handler()
	}
	router := api.NewRouter(handlers, metricsHandler, cfg.AllowedOrigins())

	scheduler := jobs.NewScheduler(
		jobs.NewJobs(modelService, reviewService, cfg.FraudScanLimit, collector, logger),
		logger,
		jobs.Schedules{Retrain: cfg.ModelRetrainSchedule, FraudScan: cfg.FraudScanSchedule},
	)
	scheduled := scheduler.Start()
	logger.Info("scheduler started", "jobs", scheduled)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		log.Println("level=warn component=scheduler msg=\"running jobs did not finish before shutdown\"")
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// openRepository connects to PostgreSQL when DATABASE_URL is set and falls back to the
// in-memory repository otherwise.
func openRepository(cfg config.Config) (store.Repository, func()) {
	if cfg.DatabaseURL == "" {
		log.Println("level=warn component=bootstrap msg=\"DATABASE_URL not set; using in-memory repository\"")
		return store.NewMemoryRepository(), func() {}
	}

	if cfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		applied, err := store.RunMigrations(migrateCtx, cfg.DatabaseURL, cfg.MigrationsDir)
		cancel()
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database migration failed\" err=%v", err)
		}
		log.Printf("level=info component=bootstrap msg=\"migrations applied\" count=%d", len(applied))
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")
	return store.NewPostgresRepository(dbpool), dbpool.Close
}

// connectRedis returns nil when Redis is not configured or not reachable.
func connectRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; redis disabled\" err=%v", err)
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; redis disabled\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}

// startConsumers binds the shared gateway queue and this instance's model queue.
func startConsumers(cfg config.Config, consumer *app.EventConsumer) (*rmrabbit.Consumer, error) {
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL, consumerPrefetch)
	if err != nil {
		return nil, err
	}

	gatewayBindings := map[string]rmrabbit.Handler{
		app.RoutingGatewayCharge:   consumer.HandleGatewayMessage,
		app.RoutingGatewayTransfer: consumer.HandleGatewayMessage,
	}
	if err := rabbitConsumer.ConsumeWithBindings(cfg.EventsExchange, cfg.GatewayEventQueue, gatewayBindings); err != nil {
		rabbitConsumer.Close()
		return nil, fmt.Errorf("gateway consumer: %w", err)
	}

	modelBindings := map[string]rmrabbit.Handler{
		app.RoutingModelUpdated: consumer.HandleModelMessage,
	}
	if err := rabbitConsumer.ConsumeWithBindings(cfg.EventsExchange, cfg.InstanceModelQueue(), modelBindings); err != nil {
		rabbitConsumer.Close()
		return nil, fmt.Errorf("model consumer: %w", err)
	}

	log.Printf("level=info component=bootstrap msg=\"rabbitmq consumers started\" gateway_queue=%s model_queue=%s", cfg.GatewayEventQueue, cfg.InstanceModelQueue())
	return rabbitConsumer, nil
}
