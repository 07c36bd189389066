package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	saleCols = []string{"id", "store_id", "invoice_number", "status", "subtotal", "discount", "tax", "total", "cashier_id", "created_at", "updated_at"}
	itemCols = []string{"id", "sale_id", "line_no", "product_id", "unit_id", "quantity", "price", "refunded_quantity", "created_at"}
)

func setupMockDB(t *testing.T) (*PGRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestNextInvoiceSequence(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(`INSERT INTO invoice_sequences .* ON CONFLICT \(store_id\) DO UPDATE SET last_value = invoice_sequences.last_value \+ 1 RETURNING last_value`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(int64(42)))

	seq, err := repo.NextInvoiceSequence(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}

func TestInsertHeader_DuplicateReportsFalse(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO sales .* ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertHeader(context.Background(), &model.Sale{
		BaseModel:     model.BaseModel{ID: "sale-1", CreatedAt: now, UpdatedAt: now},
		StoreID:       "s1",
		InvoiceNumber: "INV-1",
		Status:        model.SaleStatusPending,
	})
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestGetByID_LoadsItems(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, store_id, invoice_number.* FROM sales WHERE id = \$1$`).
		WithArgs("sale-1").
		WillReturnRows(sqlmock.NewRows(saleCols).
			AddRow("sale-1", "s1", "INV-s1-20261014-000001", "unprinted", "60", "0", "0", "60", nil, now, now))
	mock.ExpectQuery(`FROM sale_items WHERE sale_id = \$1 ORDER BY line_no`).
		WithArgs("sale-1").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("i1", "sale-1", 1, "p1", "pcs", "30", "1", "0", now).
			AddRow("i2", "sale-1", 2, "p1", "pcs", "30", "1", "5", now))

	s, err := repo.GetByID(context.Background(), "sale-1")

	require.NoError(t, err)
	assert.Equal(t, model.SaleStatusUnprinted, s.Status)
	require.Len(t, s.Items, 2)
	assert.True(t, s.Items[1].Refundable().Equal(decimal.NewFromInt(25)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockForUpdate_NotFound(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(`FROM sales WHERE id = \$1 FOR UPDATE`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(saleCols))

	_, err := repo.LockForUpdate(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrSaleNotFound)
}

func TestUpdateItemRefunded_Guarded(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec(`UPDATE sale_items SET refunded_quantity = \$1 WHERE id = \$2 AND \$1 <= quantity`).
		WithArgs("40", "i1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateItemRefunded(context.Background(), "i1", decimal.NewFromInt(40))
	assert.ErrorIs(t, err, apperror.ErrInvalidRefund)
}

func TestUpdateStatus(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectExec(`UPDATE sales SET status = \$1`).
		WithArgs(model.SaleStatusPrinted, "sale-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "sale-1", model.SaleStatusPrinted))
}
