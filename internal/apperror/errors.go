package apperror

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Tenant routing
	ErrTenantNotFound    = errors.New("stock: tenant not found")
	ErrTenantUnavailable = errors.New("stock: tenant unavailable")
	ErrTenantConnection  = errors.New("stock: tenant connection failed")

	// Ledger
	ErrInsufficientStock   = errors.New("stock: insufficient stock")
	ErrUnitMismatch        = errors.New("stock: unit mismatch")
	ErrIncompatibleUnit    = errors.New("stock: incompatible unit")
	ErrConcurrencyConflict = errors.New("stock: concurrency conflict")
	ErrFactorLocked        = errors.New("stock: conversion factor locked by stock history")
	ErrProductNotFound     = errors.New("stock: product not found")

	// Sales
	ErrSaleNotFound            = errors.New("stock: sale not found")
	ErrSaleAlreadyRefunded     = errors.New("stock: sale already refunded")
	ErrInvalidRefund           = errors.New("stock: invalid refund")
	ErrInvalidStatusTransition = errors.New("stock: invalid sale status transition")
)

// InsufficientStockError carries the quantities the caller needs to build a
// conflict response. It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID string
	StoreID   string
	UnitID    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for product %s unit %s: available %s, requested %s",
		e.ProductID, e.UnitID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ValidationError represents a rejected command or input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("stock: validation failed for %s: %s", e.Field, e.Message)
}

func Invalid(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

// AsInsufficientStock unwraps err to an InsufficientStockError if it holds one.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsRetryable reports whether a failed call may be retried by its owner.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTenantConnection) || errors.Is(err, ErrConcurrencyConflict)
}
