package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*PGDirectory, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGDirectory(sqlx.NewDb(db, "sqlmock")), mock
}

func TestPGDirectory_Lookup_Success(t *testing.T) {
	dir, mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "name", "database_endpoint", "status"}).
		AddRow("t1", "Toko Satu", "postgres://t1", "active")
	mock.ExpectQuery(`SELECT id, name, database_endpoint, status FROM tenants`).
		WithArgs("t1").
		WillReturnRows(rows)

	got, err := dir.Lookup(context.Background(), "t1")

	require.NoError(t, err)
	assert.Equal(t, "postgres://t1", got.Endpoint)
	assert.Equal(t, model.TenantActive, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDirectory_Lookup_NotFound(t *testing.T) {
	dir, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT id, name, database_endpoint, status FROM tenants`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "database_endpoint", "status"}))

	_, err := dir.Lookup(context.Background(), "missing")

	assert.ErrorIs(t, err, apperror.ErrTenantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDirectory_Lookup_DBError(t *testing.T) {
	dir, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT id`).WithArgs("t1").WillReturnError(errors.New("conn reset"))

	_, err := dir.Lookup(context.Background(), "t1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrTenantNotFound)
}

func TestPGDirectory_Lookup_EmptyID(t *testing.T) {
	dir, _ := setupMockDB(t)
	_, err := dir.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrTenantNotFound)
}

func TestMemoryDirectory(t *testing.T) {
	dir := NewMemoryDirectory(model.Tenant{ID: "t1", Endpoint: "mem://t1", Status: model.TenantActive})

	got, err := dir.Lookup(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, got.IsActive())

	dir.SetStatus("t1", model.TenantSuspended)
	got, err = dir.Lookup(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, got.IsActive())

	_, err = dir.Lookup(context.Background(), "t2")
	assert.ErrorIs(t, err, apperror.ErrTenantNotFound)
}
