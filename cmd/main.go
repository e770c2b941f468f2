/**
 * @description
 * This is the main entry point for the payout-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the core
 * application services, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Daily reconciliation scheduling.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/gatewayclient, pkg/notifier, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/swiftpay/payout-service/internal/api"
	"github.com/swiftpay/payout-service/internal/app"
	"github.com/swiftpay/payout-service/internal/config"
	"github.com/swiftpay/payout-service/internal/store"
	"github.com/swiftpay/payout-service/pkg/gatewayclient"
	"github.com/swiftpay/payout-service/pkg/notifier"
	"github.com/swiftpay/payout-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.GatewayBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway base url must be configured\" env=GATEWAY_BASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payout-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer. A missing broker degrades to a no-op
	// publisher rather than preventing payouts.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the payout gateway client.
	gatewayClient := gatewayclient.NewClient(cfg.GatewayBaseURL, time.Duration(cfg.GatewayTimeoutSeconds)*time.Second)

	// Initialize the notification client for OTP delivery.
	notifierClient := notifier.NewClient(cfg.NotifierBaseURL, cfg.NotifierAPIKey)

	// Redis backs the challenge-generation rate limit. Optional; without it
	// the limit is simply not enforced.
	var redisClient *redis.Client
	if cfg.ChallengeRateLimitPerMin > 0 && strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; challenge rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; challenge rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Assemble the application services.
	challengeService := app.NewChallengeService(
		repository,
		notifierClient,
		time.Duration(cfg.ChallengeTTLSeconds)*time.Second,
		cfg.ChallengeMaxAttempts,
	)
	if redisClient != nil {
		challengeService.SetRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.ChallengeRateLimitPerMin,
		)
	}

	rules := app.NewTransferRules(app.TransferLimits{
		IMPSCeiling: cfg.IMPSCeiling,
		UPICeiling:  cfg.UPICeiling,
		RTGSFloor:   cfg.RTGSFloor,
	})

	payoutService := app.NewService(
		repository,
		gatewayClient,
		app.NewPermissionGate(repository),
		challengeService,
		rules,
		producer,
		cfg.PayoutEventExchange,
		time.Duration(cfg.GatewayTimeoutSeconds)*time.Second,
	)

	reconciler := app.NewReconciliationEngine(repository, gatewayClient, cfg.ReconciliationPageSize)

	// Schedule the daily incremental sync across all enabled accounts.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.DailySyncCronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		reconciler.SyncDaily(ctx)
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"daily sync schedule invalid\" spec=%q err=%v", cfg.DailySyncCronSpec, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Wire the broker consumer for payout status events.
	statusConsumer := app.NewPayoutStatusConsumer(payoutService)
	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; relying on webhooks and polling\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		statusBindings := map[string]func([]byte) bool{
			"payout.status.queued":     statusConsumer.HandleMessage,
			"payout.status.pending":    statusConsumer.HandleMessage,
			"payout.status.scheduled":  statusConsumer.HandleMessage,
			"payout.status.processing": statusConsumer.HandleMessage,
			"payout.status.processed":  statusConsumer.HandleMessage,
			"payout.status.failed":     statusConsumer.HandleMessage,
			"payout.status.rejected":   statusConsumer.HandleMessage,
			"payout.status.reversed":   statusConsumer.HandleMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(cfg.PayoutEventExchange, cfg.PayoutEventQueue, statusBindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"status consumer start failed\" err=%v", err)
		}
	}

	// Initialize the API handlers and router.
	payoutHandlers := api.NewPayoutHandlers(payoutService, challengeService, reconciler)
	webhookHandlers := api.NewWebhookHandlers(payoutService, repository)

	router := chi.NewRouter()
	router.Mount("/", api.PayoutRoutes(payoutHandlers, webhookHandlers, cfg.JWKSURL))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
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

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
