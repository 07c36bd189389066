package router

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/database"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
)

// Opener creates the connection pool for one tenant database.
type Opener interface {
	Open(ctx context.Context, t *model.Tenant) (*sqlx.DB, error)
}

type OpenerFunc func(ctx context.Context, t *model.Tenant) (*sqlx.DB, error)

func (f OpenerFunc) Open(ctx context.Context, t *model.Tenant) (*sqlx.DB, error) {
	return f(ctx, t)
}

// PostgresOpener opens a bounded pgx pool against the tenant's endpoint.
type PostgresOpener struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (o PostgresOpener) Open(ctx context.Context, t *model.Tenant) (*sqlx.DB, error) {
	return database.NewPostgres(ctx, &database.Config{
		DSN:             t.Endpoint,
		MaxOpenConns:    o.MaxOpenConns,
		MaxIdleConns:    o.MaxIdleConns,
		ConnMaxLifetime: o.ConnMaxLifetime,
		ConnMaxIdleTime: o.ConnMaxIdleTime,
	})
}
