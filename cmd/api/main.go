package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-billing/internal/analytics"
	"github.com/noah-isme/backend-billing/internal/auth"
	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/catalog"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/customer"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/driver"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/health"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/notify"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/purchase"
	"github.com/noah-isme/backend-billing/internal/ratelimit"
	"github.com/noah-isme/backend-billing/internal/returns"
	"github.com/noah-isme/backend-billing/internal/security"
	"github.com/noah-isme/backend-billing/internal/stock"
	"github.com/noah-isme/backend-billing/internal/tenant"
	"github.com/noah-isme/backend-billing/internal/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "billing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "billing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: 1.0,
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "billing-api")
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

	tasks := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := tasks.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	bus := &events.Bus{
		Store: &events.PGStore{Pool: pool},
		Notifiers: []events.Notifier{
			&notify.QueueNotifier{Client: tasks, Queue: "notify"},
		},
	}

	stockRepo := &stock.Repo{Pool: pool}
	customerStore := &customer.Store{Pool: pool}
	warehouseStore := &warehouse.Store{Pool: pool}
	driverStore := &driver.Store{Pool: pool}

	authService, err := auth.NewService(auth.Config{
		Store:           &auth.PGStore{Pool: pool},
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMw := auth.Middleware{Service: authService}

	catalogService := &catalog.Service{
		Store: &catalog.Store{Pool: pool},
		Cache: cache.New(redisClient, cfg.CatalogCacheTTL),
	}
	catalogHandler := &catalog.Handler{
		Service:        catalogService,
		DefaultPerPage: cfg.ListDefaultLimit,
		MaxPerPage:     cfg.ListMaxLimit,
	}

	customerHandler := &customer.Handler{
		Store:          customerStore,
		DefaultPerPage: cfg.ListDefaultLimit,
		MaxPerPage:     cfg.ListMaxLimit,
	}
	warehouseHandler := &warehouse.Handler{
		Store:          warehouseStore,
		Stock:          stockRepo,
		DefaultPerPage: cfg.ListDefaultLimit,
		MaxPerPage:     cfg.ListMaxLimit,
	}
	driverHandler := &driver.Handler{Store: driverStore}

	billingService := &billing.Service{
		Store: &billing.PGStore{
			Pool:          pool,
			Customers:     customerStore,
			Stock:         stockRepo,
			InvoicePrefix: cfg.InvoiceNumPrefix,
		},
		Locker:        lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		Bus:           bus,
		Log:           logger,
		LockTTL:       cfg.LockTTL,
		CreateTimeout: cfg.CreateBillTimeout,
		BillsCreated:  obs.BillsCreatedTotal,
		Reservations:  obs.StockReservationTotal,
		TopUps:        obs.PaymentTopUpTotal,
		Collected:     obs.BillAmountCollected,
	}
	billingHandler := &billing.Handler{
		Service:        billingService,
		DefaultPerPage: cfg.ListDefaultLimit,
		MaxPerPage:     cfg.ListMaxLimit,
	}

	purchaseHandler := &purchase.Handler{
		Service:        &purchase.Service{Pool: pool, Stock: stockRepo, Bus: bus},
		DefaultPerPage: cfg.ListDefaultLimit,
		MaxPerPage:     cfg.ListMaxLimit,
	}
	returnsHandler := &returns.Handler{
		Service: &returns.Service{Pool: pool, Stock: stockRepo, Bus: bus},
	}
	analyticsHandler := &analytics.Handler{
		Service: &analytics.Service{Pool: pool, Cache: cache.New(redisClient, cfg.AnalyticsCacheTTL), DefaultRangeDays: cfg.AnalyticsDefaultRange},
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiter, err := ratelimit.NewRedisLimiter(redisClient, "rl", cfg.RateLimitWindow, int(cfg.RateLimitMax))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{Key: func(r *http.Request) string {
			tenantID, _ := tenant.From(r.Context())
			return tenantID + ":" + clientIP(r)
		}},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	resolver := tenant.NewResolver(cfg.TenantHeader, cfg.TenantRootDomain, cfg.DefaultTenant)

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
	r.Use(security.Headers{}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", cfg.TenantHeader},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Probes{Pool: pool, Redis: redisClient},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(resolver.Middleware)
		v.Use(rateLimit.Middleware)
		v.Use(authMw.Authenticate)

		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/refresh", authHandler.Refresh)
			a.Post("/logout", authHandler.Logout)
			a.With(authMw.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(g chi.Router) {
			g.Use(authMw.RequireAuth)

			g.Get("/categories", catalogHandler.Categories)
			g.Get("/products", catalogHandler.Products)
			g.Get("/products/{productID}", catalogHandler.Product)

			g.Get("/customers", customerHandler.List)
			g.Get("/customers/{customerID}", customerHandler.Get)
			g.Post("/customers", customerHandler.Upsert)

			g.Get("/warehouses", warehouseHandler.List)
			g.Get("/warehouses/{warehouseID}/stock", warehouseHandler.ListStock)
			g.Get("/stock/low", warehouseHandler.LowStock)

			g.Get("/bills", billingHandler.List)
			g.Get("/bills/{billID}", billingHandler.Get)
			g.With(idem.Middleware).Post("/bills", billingHandler.Create)
			g.Post("/bills/{billID}/payments", billingHandler.TopUp)
			g.Post("/bills/{billID}/delivery", billingHandler.Delivery)

			g.Get("/bills/{billID}/returns", returnsHandler.List)
			g.With(idem.Middleware).Post("/bills/{billID}/returns", returnsHandler.Create)

			g.Get("/purchase-orders", purchaseHandler.List)
			g.Get("/purchase-orders/{orderID}", purchaseHandler.Get)
			g.Post("/purchase-orders", purchaseHandler.Create)
			g.Post("/purchase-orders/{orderID}/order", purchaseHandler.MarkOrdered)
			g.Post("/purchase-orders/{orderID}/receive", purchaseHandler.Receive)

			g.Get("/drivers", driverHandler.List)
			g.Get("/drivers/{driverID}/workload", driverHandler.Workload)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMw.RequireAuth)
			admin.Use(authMw.RequireRole(auth.RoleAdmin))

			admin.Post("/categories", catalogHandler.CreateCategory)
			admin.Post("/products", catalogHandler.CreateProduct)
			admin.Put("/products/{productID}", catalogHandler.UpdateProduct)

			admin.Post("/warehouses", warehouseHandler.Create)
			admin.Put("/warehouses/{warehouseID}/stock", warehouseHandler.UpsertStock)

			admin.Post("/drivers", driverHandler.Create)
			admin.Put("/drivers/{driverID}/active", driverHandler.SetActive)

			admin.Route("/analytics", func(an chi.Router) {
				an.Get("/sales", analyticsHandler.Sales)
				an.Get("/top-products", analyticsHandler.TopProducts)
				an.Get("/payment-modes", analyticsHandler.PaymentModes)
				an.Get("/stock", analyticsHandler.Stock)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func clientIP(r *http.Request) string {
	// middleware.RealIP has already rewritten RemoteAddr when the request
	// came through a trusted proxy.
	return r.RemoteAddr
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

