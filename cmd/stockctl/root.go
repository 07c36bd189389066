package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/database"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	tenantRepoPkg "github.com/fekuna/omnipos-stock-service/internal/tenant/repository"
	"github.com/fekuna/omnipos-stock-service/internal/tenant/router"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "stockctl",
		Short: "Operate the stock service's tenant databases",
		Long: `stockctl runs maintenance against tenant stock databases.

Commands resolve tenants through the same catalog and router the service
uses, configured from the environment (or a .env file).`,
		SilenceUsage: true,
	}
	root.AddCommand(newSyncCommand())
	root.AddCommand(newHealthCommand())
	root.AddCommand(newMigrateCommand())
	return root
}

// runtime is the subset of the service wiring a command needs.
type runtime struct {
	cfg     *config.Config
	logger  logger.ZapLogger
	catalog *sqlx.DB
	router  *router.Router
}

func openRuntime(ctx context.Context) (*runtime, error) {
	_ = godotenv.Load()
	cfg := config.LoadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewZapLogger(&logger.ZapLoggerConfig{
		Encoding:          "console",
		Level:             cfg.Logger.Level,
		DisableCaller:     true,
		DisableStacktrace: true,
	})

	catalog, err := database.NewPostgres(ctx, &database.Config{
		DSN:          cfg.Catalog.DSN(),
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("connect tenant catalog: %w", err)
	}

	r := router.NewRouter(tenantRepoPkg.NewPGDirectory(catalog), router.PostgresOpener{
		MaxOpenConns:    cfg.TenantPool.MaxOpenConns,
		MaxIdleConns:    cfg.TenantPool.MaxIdleConns,
		ConnMaxLifetime: cfg.TenantPool.ConnLifetime(),
		ConnMaxIdleTime: cfg.TenantPool.ConnIdleTime(),
	}, router.NewMemoryProvisionStore(time.Duration(cfg.TenantPool.ProvisionTTL)*time.Second), router.Options{
		OpenAttempts: cfg.TenantPool.OpenAttempts,
		OpenBackoff:  time.Duration(cfg.TenantPool.OpenBackoffMS) * time.Millisecond,
		OpenTimeout:  time.Duration(cfg.TenantPool.OpenTimeout) * time.Second,
	}, log)

	return &runtime{cfg: cfg, logger: log, catalog: catalog, router: r}, nil
}

func (rt *runtime) Close() {
	rt.router.Close()
	rt.catalog.Close()
	_ = rt.logger.Sync()
}

// dialService connects to a running stock service at addr.
func dialService(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

func tenantContext(ctx context.Context, tenantID, storeID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "x-tenant-id", tenantID, "x-store-id", storeID)
}
