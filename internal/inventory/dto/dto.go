package dto

import (
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type MovementFilters struct {
	StoreID      string
	ProductID    string
	MovementType model.MovementType
	ReferenceID  string
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	PageSize     int
}

type ConversionFilters struct {
	StoreID   string
	ProductID string
	Kind      model.ConversionKind
	Page      int
	PageSize  int
}
