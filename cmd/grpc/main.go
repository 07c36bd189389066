package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/database"
	"github.com/fekuna/omnipos-stock-service/internal/middleware"
	"github.com/fekuna/omnipos-stock-service/internal/observability"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/storage/postgres"
	"github.com/fekuna/omnipos-stock-service/internal/tenant"
	tenantRepoPkg "github.com/fekuna/omnipos-stock-service/internal/tenant/repository"
	"github.com/fekuna/omnipos-stock-service/internal/tenant/router"

	invH "github.com/fekuna/omnipos-stock-service/internal/inventory/handler"
	invUCPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"

	saleH "github.com/fekuna/omnipos-stock-service/internal/sale/handler"
	saleListenerPkg "github.com/fekuna/omnipos-stock-service/internal/sale/listener"
	saleUCPkg "github.com/fekuna/omnipos-stock-service/internal/sale/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		appLogger.Warn("Tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	// 4. Connect to the tenant catalog
	catalogDB, err := database.NewPostgres(ctx, &database.Config{
		DSN:             cfg.Catalog.DSN(),
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Catalog.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Catalog.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to tenant catalog", zap.Error(err))
	}
	defer catalogDB.Close()
	appLogger.Info("Connected to tenant catalog", zap.String("db_name", cfg.Catalog.DBName))

	// 5. Tenant directory and provisioning progress, Redis-backed when enabled
	var directory tenant.Directory = tenantRepoPkg.NewPGDirectory(catalogDB)
	var progress router.ProvisionStore = router.NewMemoryProvisionStore(time.Duration(cfg.TenantPool.ProvisionTTL) * time.Second)

	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, &cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

		directory = tenantRepoPkg.NewCachedDirectory(directory, redisClient, time.Duration(cfg.Redis.TenantTTL)*time.Second, appLogger)
		progress = router.NewRedisProvisionStore(redisClient, time.Duration(cfg.TenantPool.ProvisionTTL)*time.Second)
	}

	// 6. Tenant router
	tenantRouter := router.NewRouter(directory, router.PostgresOpener{
		MaxOpenConns:    cfg.TenantPool.MaxOpenConns,
		MaxIdleConns:    cfg.TenantPool.MaxIdleConns,
		ConnMaxLifetime: cfg.TenantPool.ConnLifetime(),
		ConnMaxIdleTime: cfg.TenantPool.ConnIdleTime(),
	}, progress, router.Options{
		OpenAttempts: cfg.TenantPool.OpenAttempts,
		OpenBackoff:  time.Duration(cfg.TenantPool.OpenBackoffMS) * time.Millisecond,
		OpenTimeout:  time.Duration(cfg.TenantPool.OpenTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.TenantPool.IdleTimeout) * time.Second,
	}, appLogger)
	defer tenantRouter.Close()
	go tenantRouter.Run(ctx)

	// 7. Initialize UseCases
	stores := postgres.NewProvider(tenantRouter, cfg.Stock.TxTimeout())
	ledger := invUCPkg.NewLedger(stores, appLogger)
	coordinator := saleUCPkg.NewCoordinator(stores, ledger, appLogger)

	// 8. Sale listener
	if cfg.Kafka.Enabled {
		reader := saleListenerPkg.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
		defer reader.Close()
		saleListener := saleListenerPkg.NewSaleListener(reader, coordinator, appLogger)
		go saleListener.Start(ctx)
		appLogger.Info("Started sale listener", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// 9. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.ContextInterceptor(),
			middleware.ErrorInterceptor(appLogger),
		),
	)

	// Register Services
	saleH.NewSaleHandler(coordinator, appLogger).Register(grpcServer)
	invH.NewInventoryHandler(ledger, appLogger).Register(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Register Reflection
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()
	grpcServer.GracefulStop()
	stats := tenantRouter.Stats()
	appLogger.Info("Server stopped", zap.Int("open_tenant_pools", stats.OpenPools), zap.Int("connections_in_use", stats.InUse))
}
