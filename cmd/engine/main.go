package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/dexrouter/engine/internal/broadcaster"
	"github.com/dexrouter/engine/internal/config"
	"github.com/dexrouter/engine/internal/gateway"
	"github.com/dexrouter/engine/internal/hub"
	"github.com/dexrouter/engine/internal/quotestore"
	"github.com/dexrouter/engine/internal/repository"
	"github.com/dexrouter/engine/internal/scheduler"
	"github.com/dexrouter/engine/internal/stats"
	"github.com/dexrouter/engine/internal/venue"
	"github.com/dexrouter/engine/pkg/database"
	"github.com/dexrouter/engine/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability)
	ctx := context.Background()

	tracingProvider, err := observability.NewTracingProvider(cfg.Observability)
	if err != nil {
		logger.Error(ctx, "failed to initialize tracing", err)
		os.Exit(1)
	}
	defer tracingProvider.Shutdown(ctx)

	metricsProvider, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: "0.1.0",
		Namespace:      "dexrouter",
		Port:           cfg.Observability.MetricsPort,
		Enabled:        true,
	})
	if err != nil {
		logger.Error(ctx, "failed to initialize metrics", err)
		os.Exit(1)
	}
	defer metricsProvider.Shutdown(ctx)
	if err := metricsProvider.StartMetricsServer(cfg.Observability.MetricsPort); err != nil {
		logger.Error(ctx, "failed to start metrics server", err)
	}

	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		logger.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Error(ctx, "failed to connect to redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	orderRepo := repository.NewPostgresOrderRepository(db)
	if err := orderRepo.EnsureSchema(ctx); err != nil {
		logger.Error(ctx, "failed to ensure orders schema", err)
		os.Exit(1)
	}
	activeOrderCache := repository.NewRedisActiveOrderCache(redisClient)

	quoteStore := quotestore.New()
	routingHub := hub.New(cfg.Engine)
	statsRegistry := stats.New()
	eventBus := broadcaster.New()

	simulator := venue.NewDemoSimulator(venue.DemoSimulatorConfig{
		BasePrices: map[string]decimal.Decimal{
			"WETH/USDC": decimal.NewFromInt(3000),
			"USDC/WETH": decimal.NewFromFloat(1.0 / 3000),
		},
		VenueSpread: map[string]float64{
			"uniswap":   0.001,
			"sushiswap": -0.0015,
			"curve":     0.0005,
			"balancer":  -0.0008,
		},
		QuoteFailRate: 0.05,
		SwapFailRate:  0.1,
		QuoteLatency:  50 * time.Millisecond,
		SwapLatency:   200 * time.Millisecond,
	})

	// The pool needs a Sink at construction and the scheduler needs the pool
	// at construction, so a proxy breaks the cycle: build the pool against
	// it, build the scheduler against the pool, then point the proxy at the
	// scheduler.
	proxy := &sinkProxy{}
	pool := venue.NewPool(cfg.Engine, simulator, proxy, orderRepo, activeOrderCache, logger)
	sched := scheduler.New(cfg.Engine, quoteStore, routingHub, pool, eventBus, statsRegistry,
		orderRepo, activeOrderCache, logger, metricsProvider)
	proxy.target = sched

	pool.Start()
	defer pool.Stop()

	healthChecker := observability.NewHealthChecker(logger)
	healthChecker.RegisterCheck("postgres", observability.DatabaseHealthCheck(db.Health))
	healthChecker.RegisterCheck("redis", observability.RedisHealthCheck(redisClient.Health))
	healthChecker.RegisterCheck("venues", pool.HealthCheck())
	healthServer := observability.NewHealthServer(healthChecker, observability.ServiceInfo{
		Name:      cfg.Observability.ServiceName,
		Version:   "0.1.0",
		StartTime: time.Now(),
	}, logger)

	router := mux.NewRouter()
	healthServer.RegisterRoutes(router)

	gw := gateway.New(sched, eventBus, logger)
	gw.RegisterRoutes(router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "starting order execution engine", map[string]interface{}{
			"addr": server.Addr, "venues": cfg.Engine.Venues,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down order execution engine")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server forced to shutdown", err)
	}

	logger.Info(ctx, "order execution engine stopped")
}
