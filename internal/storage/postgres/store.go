package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/database"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	invrepo "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	salerepo "github.com/fekuna/omnipos-stock-service/internal/sale/repository"
	"github.com/fekuna/omnipos-stock-service/internal/storage"
	"github.com/fekuna/omnipos-stock-service/internal/unit"
	unitrepo "github.com/fekuna/omnipos-stock-service/internal/unit/repository"
	"github.com/jmoiron/sqlx"
)

// Resolver is satisfied by the tenant connection router.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (*sqlx.DB, error)
}

type Provider struct {
	resolver  Resolver
	txTimeout time.Duration
}

func NewProvider(resolver Resolver, txTimeout time.Duration) *Provider {
	return &Provider{resolver: resolver, txTimeout: txTimeout}
}

func (p *Provider) Store(ctx context.Context, tenantID string) (storage.Store, error) {
	db, err := p.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return NewStore(db, p.txTimeout), nil
}

// Store runs transactions on one tenant pool, read committed unless the
// caller asks otherwise.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error, opts ...storage.TxOption) error {
	o := storage.ApplyTxOptions(opts)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sqlIsolation(o.Isolation)})
	if err != nil {
		return fmt.Errorf("%w: begin: %w", apperror.ErrTenantConnection, err)
	}
	defer tx.Rollback()

	if err := fn(ctx, repos{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func sqlIsolation(level storage.Isolation) sql.IsolationLevel {
	if level == storage.RepeatableRead {
		return sql.LevelRepeatableRead
	}
	return sql.LevelReadCommitted
}

// classify turns lock and serialization aborts, and lost insert races, into
// ErrConcurrencyConflict. A tripped quantity check is insufficient stock.
func classify(err error) error {
	switch {
	case database.IsConflict(err), database.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", apperror.ErrConcurrencyConflict, err)
	case database.IsCheckViolation(err):
		return fmt.Errorf("%w: %w", apperror.ErrInsufficientStock, err)
	}
	return err
}

type repos struct {
	tx *sqlx.Tx
}

func (r repos) Ledger() inventory.Repository { return invrepo.NewPGRepository(r.tx) }
func (r repos) Sales() sale.Repository       { return salerepo.NewPGRepository(r.tx) }
func (r repos) Units() unit.Repository       { return unitrepo.NewPGRepository(r.tx) }
