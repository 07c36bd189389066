package sale

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
)

type UseCase interface {
	CreateSale(ctx context.Context, tenantID string, input *dto.CreateSaleInput) (*dto.SaleResult, error)
	ReverseSale(ctx context.Context, tenantID string, input *dto.ReverseSaleInput) (*model.Sale, error)
	GetSale(ctx context.Context, tenantID, saleID string) (*model.Sale, error)
	UpdateStatus(ctx context.Context, tenantID, saleID string, status model.SaleStatus) (*model.Sale, error)
	MarkPrinted(ctx context.Context, tenantID, saleID string) (*model.Sale, error)
}
