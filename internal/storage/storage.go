// Package storage binds the per-tenant repositories to one transaction.
package storage

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"github.com/fekuna/omnipos-stock-service/internal/unit"
)

// Tx exposes the repositories of one tenant transaction. Everything written
// through it commits or rolls back together.
type Tx interface {
	Ledger() inventory.Repository
	Sales() sale.Repository
	Units() unit.Repository
}

type Store interface {
	// InTx runs fn in a new transaction. A non-nil error from fn rolls back
	// every effect and is returned unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error, opts ...TxOption) error
}

// Provider resolves a tenant id to that tenant's store.
type Provider interface {
	Store(ctx context.Context, tenantID string) (Store, error)
}

type Isolation int

const (
	// ReadCommitted sees every commit made before each statement. Guarded
	// writes serialise on row locks.
	ReadCommitted Isolation = iota
	// RepeatableRead reads one snapshot taken when the transaction starts.
	// Writing a row that another transaction changed after that snapshot
	// fails with apperror.ErrConcurrencyConflict.
	RepeatableRead
)

func (i Isolation) String() string {
	if i == RepeatableRead {
		return "repeatable read"
	}
	return "read committed"
}

type TxOptions struct {
	Isolation Isolation
}

type TxOption func(*TxOptions)

// WithIsolation sets the isolation level of the transaction.
func WithIsolation(level Isolation) TxOption {
	return func(o *TxOptions) { o.Isolation = level }
}

// ApplyTxOptions folds opts over the read-committed default.
func ApplyTxOptions(opts []TxOption) TxOptions {
	o := TxOptions{Isolation: ReadCommitted}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
