package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/cashflow-pos/internal/analytics"
	"github.com/xenking/cashflow-pos/internal/catalog"
	"github.com/xenking/cashflow-pos/internal/domain/auth"
	"github.com/xenking/cashflow-pos/internal/domain/customer"
	"github.com/xenking/cashflow-pos/internal/handler"
	"github.com/xenking/cashflow-pos/internal/registry"
	"github.com/xenking/cashflow-pos/internal/storage/postgres"
	"github.com/xenking/cashflow-pos/pkg/health"
	"github.com/xenking/cashflow-pos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.Bool("database", cfg.DatabaseURL != ""),
		zap.Bool("cache", cfg.Cache.RedisAddr != ""),
	)
	if cfg.APIKeyPepper == "" {
		lg.Warn("API key pepper is empty, admin keys are hashed without a secret")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Customer registry, optionally behind the Redis cache.
	regOpts := registry.Options{
		Timeout:        cfg.Registry.Timeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}
	customerClient, err := registry.NewCustomerClient(cfg.Registry.CustomerURL, regOpts)
	if err != nil {
		return errors.Wrap(err, "create customer registry client")
	}
	healthSvc.Add(health.Readiness, "customer-registry", 5*time.Second, health.PingCheck(customerClient))

	var customers customer.Registry = customerClient
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer func() { _ = rdb.Close() }()

		healthSvc.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		customers = registry.NewCachedRegistry(customerClient, rdb, cfg.Cache.TTL)
	}

	// Product source, sales journal and API keys: PostgreSQL when
	// configured, otherwise the product registry and static keys.
	var (
		source  catalog.Source
		store   catalog.Store
		journal *postgres.SaleJournal
		apikeys auth.Repository = auth.NewStaticRepository(cfg.AdminKeyHashes)
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))

		products := postgres.NewProductRepository(pool)
		source, store = products, products
		journal = postgres.NewSaleJournal(pool)
		apikeys = postgres.NewAPIKeyRepository(pool)
	} else {
		catalogClient, err := registry.NewCatalogClient(cfg.Registry.CatalogURL, regOpts)
		if err != nil {
			return errors.Wrap(err, "create product registry client")
		}
		healthSvc.Add(health.Readiness, "product-registry", 5*time.Second, health.PingCheck(catalogClient))
		source = catalogClient
	}

	// Domain services.
	products := catalog.New(store, lg.Named("catalog"))
	n, err := products.Load(ctx, source)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	lg.Info("Catalog loaded", zap.Int("products", n))

	opts := analytics.Options{
		Logger:         lg.Named("analytics"),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	}
	if journal != nil {
		opts.Journal = journal
	}
	sales, err := analytics.New(customers, opts)
	if err != nil {
		return errors.Wrap(err, "create analytics")
	}
	if journal != nil {
		txs, err := journal.List(ctx)
		if err != nil {
			return errors.Wrap(err, "replay sales journal")
		}
		sales.Load(txs)
		lg.Info("Sales journal replayed", zap.Int("sales", len(txs)))
	}

	// HTTP handlers.
	h := handler.New(
		handler.Config{APIKeyPepper: []byte(cfg.APIKeyPepper)},
		sales,
		products,
		customers,
		apikeys,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("pos-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
