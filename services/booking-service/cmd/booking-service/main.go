package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bochiedev/tulia-booking/libs/config"
	"github.com/bochiedev/tulia-booking/libs/db"
	"github.com/bochiedev/tulia-booking/libs/httpx"
	"github.com/bochiedev/tulia-booking/libs/kafkax"
	otelx "github.com/bochiedev/tulia-booking/libs/otel"
	"github.com/bochiedev/tulia-booking/libs/runtime"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/booking"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/handlers"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/outbox"
	"github.com/bochiedev/tulia-booking/services/booking-service/internal/storage"
)

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	poolCfg := db.DefaultPoolConfig()
	poolCfg.MaxConns = int32(config.Int("DB_MAX_CONNS", 10))
	pool, err := db.OpenWithConfig(ctx, dbURL, poolCfg)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	catalogRepo := storage.NewCatalogRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	events := outbox.NewEvents(outboxRepo)

	engine := booking.NewEngine(catalogRepo, apptRepo, events, logger,
		booking.WithTxTimeout(config.DurationSeconds("BOOKING_TX_TIMEOUT_SECONDS", 5*time.Second)),
		booking.WithMaxRetries(config.Int("BOOKING_MAX_RETRIES", 3)),
	)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(engine, logger, config.String("JWT_SECRET", ""))

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: pool.ReadyCheck()},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	bookingHandler.Register(mux)

	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMiddleware httpx.Middleware
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service)
		rateLimitMiddleware = limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		rateLimitMiddleware = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRecovery(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.TenantIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.DurationSeconds("HTTP_TIMEOUT_SECONDS", 30*time.Second)),
		rateLimitMiddleware,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
