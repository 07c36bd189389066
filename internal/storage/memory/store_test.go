package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/storage"
	tenantrepo "github.com/fekuna/omnipos-stock-service/internal/tenant/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = model.LedgerKey{ProductID: "p1", StoreID: "s1", UnitID: "pcs"}

func TestInTx_RollbackRestoresEverything(t *testing.T) {
	s := New()
	s.PutProduct(model.Product{BaseModel: model.BaseModel{ID: "p1"}, BaseUnitID: "pcs"})
	s.Seed(key, decimal.NewFromInt(10))
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Ledger().Increment(ctx, key, decimal.NewFromInt(5)); err != nil {
			return err
		}
		if err := tx.Ledger().AdjustCounter(ctx, "p1", "s1", decimal.NewFromInt(5)); err != nil {
			return err
		}
		if _, err := tx.Sales().InsertHeader(ctx, &model.Sale{BaseModel: model.BaseModel{ID: "x"}, InvoiceNumber: "INV-1"}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, s.Quantity(key).Equal(decimal.NewFromInt(10)))
	assert.True(t, s.Counter("p1", "s1").Equal(decimal.NewFromInt(10)))
	assert.Zero(t, s.SaleCount())
}

func TestDecrementIfAvailable(t *testing.T) {
	s := New()
	s.Seed(key, decimal.NewFromInt(3))

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, ok, err := tx.Ledger().DecrementIfAvailable(ctx, key, decimal.NewFromInt(4))
		require.NoError(t, err)
		assert.False(t, ok)

		after, ok, err := tx.Ledger().DecrementIfAvailable(ctx, key, decimal.NewFromInt(3))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, after.IsZero())
		return nil
	})
	require.NoError(t, err)
}

// holdRow runs a transaction that writes fn's row and then waits for the
// returned commit func before it finishes.
func holdRow(t *testing.T, s *Store, fn func(ctx context.Context, tx storage.Tx) error) (commit func() error) {
	t.Helper()
	locked := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
			err := fn(ctx, tx)
			close(locked)
			if err != nil {
				return err
			}
			<-proceed
			return nil
		})
	}()
	<-locked
	var once sync.Once
	return func() error {
		once.Do(func() { close(proceed) })
		return <-done
	}
}

func TestInTx_DisjointRowsDoNotBlock(t *testing.T) {
	s := New()
	s.Seed(key, decimal.NewFromInt(10))
	other := model.LedgerKey{ProductID: "p2", StoreID: "s1", UnitID: "pcs"}

	commit := holdRow(t, s, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.Ledger().Increment(ctx, key, decimal.NewFromInt(1))
		return err
	})

	done := make(chan error, 1)
	go func() {
		done <- s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
			_, err := tx.Ledger().Increment(ctx, other, decimal.NewFromInt(1))
			return err
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("transaction on another row waited for the held row")
	}
	require.NoError(t, commit())
	assert.True(t, s.Quantity(key).Equal(decimal.NewFromInt(11)))
	assert.True(t, s.Quantity(other).Equal(decimal.NewFromInt(1)))
}

func TestDecrementIfAvailable_WaitsForHolderAndRechecks(t *testing.T) {
	s := New()
	s.Seed(key, decimal.NewFromInt(100))

	commit := holdRow(t, s, func(ctx context.Context, tx storage.Tx) error {
		_, ok, err := tx.Ledger().DecrementIfAvailable(ctx, key, decimal.NewFromInt(30))
		assert.True(t, ok)
		return err
	})

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		r.err = s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
			_, ok, err := tx.Ledger().DecrementIfAvailable(ctx, key, decimal.NewFromInt(80))
			r.ok = ok
			return err
		})
		done <- r
	}()

	select {
	case <-done:
		t.Fatal("second decrement did not wait for the row lock")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, commit())

	r := <-done
	require.NoError(t, r.err)
	assert.False(t, r.ok, "70 left after the first commit cannot cover 80")
	assert.True(t, s.Quantity(key).Equal(decimal.NewFromInt(70)))
}

func TestInTx_UncommittedWritesAreInvisible(t *testing.T) {
	s := New()
	s.Seed(key, decimal.NewFromInt(10))

	commit := holdRow(t, s, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.Ledger().Increment(ctx, key, decimal.NewFromInt(5))
		return err
	})

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		e, err := tx.Ledger().Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, e.Quantity.Equal(decimal.NewFromInt(10)))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, commit())
	assert.True(t, s.Quantity(key).Equal(decimal.NewFromInt(15)))
}

func TestInTx_LockTimeoutIsConflict(t *testing.T) {
	s := New()
	s.SetLockTimeout(20 * time.Millisecond)
	s.Seed(key, decimal.NewFromInt(10))

	commit := holdRow(t, s, func(ctx context.Context, tx storage.Tx) error {
		return tx.Ledger().AdjustCounter(ctx, "p1", "s1", decimal.NewFromInt(1))
	})
	defer func() { require.NoError(t, commit()) }()

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.Ledger().AdjustCounter(ctx, "p1", "s1", decimal.NewFromInt(1))
	})
	assert.ErrorIs(t, err, apperror.ErrConcurrencyConflict)
}

func TestRepeatableRead_ReadsOneSnapshot(t *testing.T) {
	s := New()
	s.Seed(key, decimal.NewFromInt(10))

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		s.Seed(key, decimal.NewFromInt(4))

		e, err := tx.Ledger().Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, e.Quantity.Equal(decimal.NewFromInt(10)))
		counters, err := tx.Ledger().Counters(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, counters, 1)
		assert.True(t, counters[0].Quantity.Equal(decimal.NewFromInt(10)))
		return nil
	}, storage.WithIsolation(storage.RepeatableRead))
	require.NoError(t, err)
}

func TestRepeatableRead_WriteToChangedRowConflicts(t *testing.T) {
	s := New()
	s.Seed(key, decimal.NewFromInt(10))

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, s.InTx(ctx, func(ctx context.Context, other storage.Tx) error {
			_, _, err := other.Ledger().DecrementIfAvailable(ctx, key, decimal.NewFromInt(3))
			return err
		}))
		_, err := tx.Ledger().Increment(ctx, key, decimal.NewFromInt(1))
		return err
	}, storage.WithIsolation(storage.RepeatableRead))

	assert.ErrorIs(t, err, apperror.ErrConcurrencyConflict)
	assert.True(t, s.Quantity(key).Equal(decimal.NewFromInt(7)))
}

func TestIncrement_RejectsNegativeRow(t *testing.T) {
	s := New()
	s.Seed(key, decimal.NewFromInt(2))

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.Ledger().Increment(ctx, key, decimal.NewFromInt(-3))
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.True(t, s.Quantity(key).Equal(decimal.NewFromInt(2)))
}

func TestInTx_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().InTx(ctx, func(context.Context, storage.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvider_ChecksDirectory(t *testing.T) {
	dir := tenantrepo.NewMemoryDirectory(
		model.Tenant{ID: "t1", Status: model.TenantActive},
		model.Tenant{ID: "t2", Status: model.TenantSuspended},
	)
	p := NewProvider(dir)
	ctx := context.Background()

	s1, err := p.Store(ctx, "t1")
	require.NoError(t, err)
	again, err := p.Store(ctx, "t1")
	require.NoError(t, err)
	assert.Same(t, s1, again)

	_, err = p.Store(ctx, "t2")
	assert.ErrorIs(t, err, apperror.ErrTenantUnavailable)

	_, err = p.Store(ctx, "nope")
	assert.ErrorIs(t, err, apperror.ErrTenantNotFound)
}
