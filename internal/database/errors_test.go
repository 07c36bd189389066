package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert sale: %w", &pgconn.PgError{Code: "23505"})
	deadlock := &pgconn.PgError{Code: "40P01"}
	check := &pgconn.PgError{Code: "23514"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(deadlock))
	assert.True(t, IsConflict(deadlock))
	assert.True(t, IsCheckViolation(check))
	assert.False(t, IsConflict(errors.New("plain")))
}
