package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	storefrontgrpc "github.com/fjod/go_cart/storefront/internal/grpc"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/lock"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type ledger interface {
	repository.OrderRepository
	Close() error
}

func main() {
	cfg, warning, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if warning != "" {
		zl.Debug(warning)
	}

	if err := run(cfg, zl); err != nil {
		zl.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx := context.Background()
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Carts
	var carts repository.CartRepository
	switch cfg.CartBackend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		mongoDB, err := repository.ConnectMongoDB(connectCtx, cfg.MongoURI, cfg.MongoDBName)
		cancel()
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = mongoDB.Client().Disconnect(context.Background()) })

		mongoCarts := repository.NewMongoCartRepository(mongoDB, cfg.CartTTL)
		if err := mongoCarts.CreateIndexes(ctx); err != nil {
			return err
		}
		carts = mongoCarts
		zl.Info("cart store: mongodb", zap.String("db", cfg.MongoDBName))
	default:
		memCarts := repository.NewMemoryCartRepository(cfg.CartTTL)
		closers = append(closers, func() { _ = memCarts.Close() })
		carts = memCarts
		zl.Info("cart store: memory")
	}

	// Orders
	var orders ledger
	switch cfg.OrderBackend {
	case config.BackendPostgres:
		pg, err := repository.NewPostgresOrderRepository(&repository.Credentials{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
		})
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = pg.Close() })
		if err := pg.RunMigrations(); err != nil {
			return fmt.Errorf("order migrations: %w", err)
		}
		orders = pg
		zl.Info("order ledger: postgres", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	default:
		orders = memoryLedger{repository.NewMemoryOrderRepository()}
		zl.Info("order ledger: memory")
	}

	// Catalog
	var catalog repository.ProductRepository
	if cfg.CatalogDBPath != "" {
		sqlite, err := repository.NewSQLiteProductRepository(cfg.CatalogDBPath)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = sqlite.Close() })
		if err := sqlite.RunMigrations(); err != nil {
			return fmt.Errorf("catalog migrations: %w", err)
		}
		catalog = sqlite
		zl.Info("catalog: sqlite", zap.String("path", cfg.CatalogDBPath))
	} else {
		catalog = repository.NewMemoryProductRepository(repository.DefaultProducts()...)
		zl.Info("catalog: memory")
	}
	catalog = repository.NewGuardedProductRepository(catalog, circuitbreaker.DefaultConfig("catalog"), zl.Named("catalog"))

	// Cache
	var cartCache cache.CartCache = cache.NopCache{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		cartCache = cache.NewRedisCache(redisClient)
		zl.Info("cart cache: redis", zap.String("addr", cfg.RedisAddr))
	}

	policy, err := domain.PolicyByName(cfg.OrderStatusPolicy)
	if err != nil {
		return err
	}

	// Checkout and cart mutations share one per-user lock.
	locks := lock.NewKeyedMutex()
	cartSvc := service.NewCartService(carts, cartCache, catalog, locks, zl.Named("cart"))
	checkoutSvc := service.NewCheckoutService(cartSvc, orders, zl.Named("checkout"))
	orderSvc := service.NewOrderService(orders, policy, zl.Named("orders"))
	zl.Info("order status policy", zap.String("policy", policy.Name()))

	// Events
	var pub publisher.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		pub = publisher.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		zl.Info("order events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		pub = publisher.NewLogPublisher(zl.Named("events"))
		zl.Info("order events: log")
	}

	var wg sync.WaitGroup
	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.NewOutboxPoller(orders, pub, zl.Named("outbox")).Run(pollerCtx)
	}()

	// HTTP
	otel.SetTextMapPropagator(propagation.TraceContext{})
	httpLog := zl.Named("http")
	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodyBytes,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
	}, h.Handlers{
		Cart:     h.NewCartHandler(cartSvc, cfg.RequestTimeout, httpLog),
		Orders:   h.NewOrdersHandler(checkoutSvc, orderSvc, cfg.RequestTimeout, httpLog),
		Products: h.NewProductHandler(catalog, cfg.RequestTimeout, httpLog),
	}, auth.NewJWTVerifier(cfg.JWTSecret), httpLog)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "storefront"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcSrv := storefrontgrpc.NewServer(zl.Named("grpc"))

	serveErr := make(chan error, 2)
	go func() {
		zl.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	grpcSrv.SetServing(true)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-quit:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-serveErr:
		zl.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	grpcSrv.SetServing(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	grpcSrv.Stop(shutdownCtx)

	stopPoller()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		zl.Info("outbox poller stopped")
	case <-shutdownCtx.Done():
		zl.Warn("outbox poller didn't stop in time")
	}
	if err := pub.Close(); err != nil {
		zl.Warn("failed to close publisher", zap.Error(err))
	}

	zl.Info("storefront stopped")
	return runErr
}

// memoryLedger gives the in-memory ledger the same lifecycle as Postgres.
type memoryLedger struct {
	*repository.MemoryOrderRepository
}

func (memoryLedger) Close() error { return nil }
