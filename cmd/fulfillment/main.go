package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-fulfillment/internal/cart"
	"github.com/sakashimaa/go-fulfillment/internal/metrics"
	"github.com/sakashimaa/go-fulfillment/internal/notification"
	"github.com/sakashimaa/go-fulfillment/internal/notification/email"
	"github.com/sakashimaa/go-fulfillment/internal/provider"
	"github.com/sakashimaa/go-fulfillment/internal/repository"
	"github.com/sakashimaa/go-fulfillment/internal/security"
	"github.com/sakashimaa/go-fulfillment/internal/service"
	transportHTTP "github.com/sakashimaa/go-fulfillment/internal/transport/http"
	"github.com/sakashimaa/go-fulfillment/internal/transport/http/handler"
	transportKafka "github.com/sakashimaa/go-fulfillment/internal/transport/kafka"
	"github.com/sakashimaa/go-fulfillment/pkg/config"
	"github.com/sakashimaa/go-fulfillment/pkg/db"
	pkgKafka "github.com/sakashimaa/go-fulfillment/pkg/kafka"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/go-fulfillment/pkg/outbox/repository"
	"github.com/sakashimaa/go-fulfillment/pkg/outbox/worker"
	"github.com/sakashimaa/go-fulfillment/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, "fulfillment-service")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	loggerCfg := config.LoggerConfig{
		Level: "Info",
		Env:   cfg.Env,
	}
	logger, err := config.NewLogger(loggerCfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	verifier, err := security.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.CIDRList(), logger)
	if err != nil {
		log.Fatalf("invalid webhook allowlist: %v", err)
	}

	cartStore := cart.NewRedisStore(redisClient, cfg.Redis.CartTTL, logger)
	gateway := provider.NewHTTPGateway(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout, logger)

	idemRepo := repository.NewIdempotencyRepository(logger)
	inventoryRepo := repository.NewInventoryRepository(pool, logger)
	checkoutRepo := repository.NewCheckoutRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	paymentRepo := repository.NewPaymentRepository(pool, logger)
	shipmentRepo := repository.NewShipmentRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	inventoryService := service.NewInventoryService(pool, inventoryRepo, logger)
	checkoutService := service.NewCheckoutService(pool, cartStore, idemRepo, checkoutRepo, orderRepo, inventoryService, logger)
	orderService := service.NewOrderService(pool, orderRepo, logger)
	reconcileService := service.NewReconcileService(pool, gateway, paymentRepo, orderRepo, outboxRepo, cfg.Kafka.NotificationTopic, logger)
	shipmentService := service.NewShipmentService(pool, shipmentRepo, orderRepo, logger)

	kafkaProducer, err := pkgKafka.NewProducer(cfg.Kafka.BrokerList())
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	emailSender := email.NewSMTPSender(logger)
	notificationService := notification.NewService(emailSender, logger, pool)
	consumer := transportKafka.NewConsumer(notificationService, cfg.Kafka.NotificationTopic, logger)
	go consumer.Start(ctx, cfg.Kafka.BrokerList())

	reg := metrics.NewRegistry()

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry: reg,
		}))
		log.Printf("Metrics server is listening on %s 📈", cfg.HTTP.MetricsPort)

		if err := http.ListenAndServe(cfg.HTTP.MetricsPort, nil); err != nil {
			log.Printf("Metrics serving failed: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{
		ReadTimeout: cfg.HTTP.Timeout,
	})

	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 5 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	handlers := &transportHTTP.Handlers{
		Inventory: handler.NewInventoryHandler(inventoryService, logger),
		Order:     handler.NewOrderHandler(checkoutService, orderService, logger),
		Webhook:   handler.NewWebhookHandler(verifier, reconcileService, logger),
		Shipment:  handler.NewShipmentHandler(shipmentService, logger),
	}
	transportHTTP.RegisterRoutes(app, handlers, cfg.Auth.AdminSecret)

	go func() {
		log.Printf("HTTP server listening on %s 🔥", cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("error serving http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, exit := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
	defer exit()

	mylogger.Info(
		shutdownCtx,
		logger,
		"Shutting down fulfillment server",
	)

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to shut down http server",
			zap.Error(err),
		)
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to close kafka producer",
			zap.Error(err),
		)
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to shut down telemetry",
			zap.Error(err),
		)
	}

	if err := redisClient.Close(); err != nil {
		mylogger.Warn(
			shutdownCtx,
			logger,
			"Failed to close redis client",
			zap.Error(err),
		)
	}

	pool.Close()
}
