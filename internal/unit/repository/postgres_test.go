package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productColumns = []string{
	"id", "store_id", "sku", "name", "base_unit_id", "packaging_unit_id",
	"conversion_factor", "track_inventory", "is_active", "created_at", "updated_at",
}

func setupMockDB(t *testing.T) (*PGRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetProduct_Success(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, store_id, sku, name, base_unit_id`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow("p1", "s1", "SKU-1", "Teh Botol", "pcs", "box", "12", true, true, now, now))

	p, err := repo.GetProduct(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, "pcs", p.BaseUnitID)
	require.NotNil(t, p.PackagingUnitID)
	assert.Equal(t, "box", *p.PackagingUnitID)
	assert.True(t, p.ConversionFactor.Equal(decimal.NewFromInt(12)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProduct_NotFound(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT id, store_id`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(productColumns))

	_, err := repo.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrProductNotFound)
}

func TestHasStockHistory(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM ledger_entries WHERE product_id = \$1\)`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	got, err := repo.HasStockHistory(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestUpdateConversionFactor(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec(`UPDATE products SET conversion_factor`).
		WithArgs("6", "p2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateConversionFactor(context.Background(), "p2", decimal.NewFromInt(6)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateConversionFactor_LockedByHistory(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectExec(`UPDATE products SET conversion_factor`).
		WithArgs("6", "p1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, store_id`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(productColumns).
			AddRow("p1", "s1", "SKU-1", "Teh Botol", "pcs", nil, "1", true, true, now, now))

	err := repo.UpdateConversionFactor(context.Background(), "p1", decimal.NewFromInt(6))
	assert.ErrorIs(t, err, apperror.ErrFactorLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
