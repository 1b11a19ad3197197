package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/analytics"
	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/notify"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/resilience"
	"github.com/noah-isme/backend-billing/internal/scheduler"
	"github.com/noah-isme/backend-billing/internal/stock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "billing"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "billing-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	sender := buildSender(cfg, logger)

	redisConn := asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}
	srv := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.NotifyConcurrency,
		Queues:      map[string]int{"notify": 1},
		Logger:      asynqLogger{logger},
	})
	mux := asynq.NewServeMux()
	taskHandler := &notify.Handler{
		Sender:        sender,
		Log:           logger,
		Notifications: obs.NotificationsTotal,
		Currency:      cfg.CurrencyCode,
	}
	taskHandler.Register(mux)

	tasks := asynq.NewClient(redisConn)
	defer func() {
		if err := tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	sched := scheduler.New(scheduler.Config{
		StockRepo:     &stock.Repo{Pool: pool},
		Analytics:     &analytics.Service{Pool: pool, Cache: cache.New(redisClient, cfg.AnalyticsCacheTTL), DefaultRangeDays: cfg.AnalyticsDefaultRange},
		Tasks:         tasks,
		LowStockSpec:  cfg.LowStockCronSpec,
		ReportSpec:    cfg.ReportCronSpec,
		LowStockGauge: obs.LowStockRecords,
		Log:           logger,
	})
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer sched.Stop()

	logger.Info().Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// buildSender returns the WhatsApp gateway when configured, otherwise a
// no-op sender so tasks drain cleanly in environments without credentials.
func buildSender(cfg *config.Config, logger zerolog.Logger) notify.Sender {
	if !cfg.GatewayEnabled {
		logger.Info().Msg("notification gateway disabled, using nop sender")
		return notify.NopSender{}
	}
	breaker := resilience.NewBreaker(10, 0.5, 30*time.Second).
		WithTarget("notify-gateway").
		WithLogger(logger)
	return notify.NewGateway(notify.GatewayConfig{
		BaseURL: cfg.GatewayBaseURL,
		Token:   cfg.GatewayToken,
		Sender:  cfg.GatewaySender,
		Timeout: cfg.WebhookRequestTime,
	}, breaker)
}

// asynqLogger adapts zerolog to asynq's logger interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
