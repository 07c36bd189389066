package handler

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/structrpc"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "omnipos.stock.v1.SaleService"

type saleServer interface {
	CreateSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReverseSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	MarkPrinted(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*saleServer)(nil),
	Methods: []grpc.MethodDesc{
		structrpc.Method(ServiceName, "CreateSale", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(saleServer).CreateSale(ctx, req)
		}),
		structrpc.Method(ServiceName, "ReverseSale", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(saleServer).ReverseSale(ctx, req)
		}),
		structrpc.Method(ServiceName, "GetSale", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(saleServer).GetSale(ctx, req)
		}),
		structrpc.Method(ServiceName, "MarkPrinted", func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(saleServer).MarkPrinted(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/stock/v1/sale.proto",
}

type SaleHandler struct {
	uc     sale.UseCase
	logger logger.ZapLogger
}

func NewSaleHandler(uc sale.UseCase, log logger.ZapLogger) *SaleHandler {
	return &SaleHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *SaleHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, h)
}

func (h *SaleHandler) CreateSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)

	input, err := createSaleFromStruct(req)
	if err != nil {
		return nil, err
	}
	if input.StoreID == "" {
		input.StoreID = rc.StoreID
	}
	if input.CashierID == "" {
		input.CashierID = rc.UserID
	}

	res, err := h.uc.CreateSale(ctx, rc.TenantID, input)
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		h.logger.Info("sale replayed", zap.String("tenant_id", rc.TenantID), zap.String("sale_id", res.SaleID))
	}
	return resultToStruct(res)
}

func (h *SaleHandler) ReverseSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)

	input, err := reverseSaleFromStruct(req)
	if err != nil {
		return nil, err
	}
	if input.UserID == "" {
		input.UserID = rc.UserID
	}

	s, err := h.uc.ReverseSale(ctx, rc.TenantID, input)
	if err != nil {
		return nil, err
	}
	return saleToStruct(s)
}

func (h *SaleHandler) GetSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s, err := h.uc.GetSale(ctx, auth.GetTenantID(ctx), structrpc.String(req, "sale_id"))
	if err != nil {
		return nil, err
	}
	return saleToStruct(s)
}

func (h *SaleHandler) MarkPrinted(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s, err := h.uc.MarkPrinted(ctx, auth.GetTenantID(ctx), structrpc.String(req, "sale_id"))
	if err != nil {
		return nil, err
	}
	return saleToStruct(s)
}
