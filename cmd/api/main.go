package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mowaa/booking-payments/db"
	"github.com/mowaa/booking-payments/internal/common"
	"github.com/mowaa/booking-payments/internal/config"
	"github.com/mowaa/booking-payments/internal/gateway"
	"github.com/mowaa/booking-payments/internal/health"
	"github.com/mowaa/booking-payments/internal/notify"
	"github.com/mowaa/booking-payments/internal/obs"
	"github.com/mowaa/booking-payments/internal/payment"
	"github.com/mowaa/booking-payments/internal/rates"
	"github.com/mowaa/booking-payments/internal/resilience"
	"github.com/mowaa/booking-payments/internal/uploads"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "booking")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "booking-payments",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "booking-payments"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	var attachmentStore payment.AttachmentStore
	if cfg.MinioEndpoint != "" {
		store, err := uploads.New(ctx, uploads.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("connect object storage")
		}
		attachmentStore = store
	} else {
		logger.Warn().Msg("object storage not configured, attachments disabled")
	}

	var mailer common.EmailSender = common.NopEmailSender{}
	if cfg.SMTPHost != "" {
		mailer = notify.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
	} else {
		logger.Warn().Msg("smtp not configured, notifications are no-ops")
	}
	dispatcher := &notify.Dispatcher{
		Mail:        mailer,
		AdminEmail:  cfg.AdminEmail,
		MaxAttempts: cfg.NotifyMaxAttempts,
		Backoff:     cfg.NotifyBackoff,
		Logger:      logger,
	}

	gatewayClient := &gateway.Client{
		SecretKey: cfg.GatewaySecretKey,
		BaseURL:   cfg.GatewayBaseURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("payment-gateway").WithLogger(logger),
			MaxAttempts: 1,
			Timeout:     cfg.GatewayTimeout,
		},
		Logger: logger,
	}

	paymentStore := &payment.PGStore{Pool: pool}
	reconciler := &payment.Reconciler{
		Store:    paymentStore,
		Gateway:  gatewayClient,
		Notifier: dispatcher,
		Logger:   logger,
	}

	initiator := &payment.Initiator{
		Store:       paymentStore,
		Gateway:     gatewayClient,
		Uploads:     attachmentStore,
		CallbackURL: cfg.CallbackURL(),
		Currency:    "NGN",
		Validate:    validator.New(),
		Logger:      logger,
	}
	triggerHandler := &payment.Handler{
		Reconciler:  reconciler,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	}
	webhookHandler := &payment.WebhookHandler{
		Verifier:   gateway.SignatureVerifier{Secret: cfg.GatewaySecretKey},
		Reconciler: reconciler,
		Replay:     redisClient,
		ReplayTTL:  cfg.WebhookReplayTTL,
		Logger:     logger,
	}
	rateHandler := rates.Handler{Rate: cfg.ExchangeRate}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	verifyRate, err := limiter.NewRateFromFormatted(cfg.VerifyRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse verify rate limit")
	}
	limiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "ratelimit:verify"})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	verifyLimiter := limiterstdlib.NewMiddleware(limiter.New(limiterStore, verifyRate))

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Probes:  health.Probes{DB: pool, Redis: redisClient},
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api", func(api chi.Router) {
		api.With(idem.Middleware).Post("/initiate-payment", initiator.ServeHTTP)
		api.Get("/payment/callback", triggerHandler.Callback)
		api.Post("/payment/webhook", webhookHandler.ServeHTTP)
		api.With(verifyLimiter.Handler).Get("/verify-payment", triggerHandler.Verify)
		api.Get("/exchange-rate", rateHandler.Get)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) > 0 {
		return cfg.CORSAllowedOrigins
	}
	if cfg.FrontendURL != "" {
		return []string{cfg.FrontendURL}
	}
	return []string{"*"}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
