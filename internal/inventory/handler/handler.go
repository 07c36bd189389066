package handler

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/structrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "omnipos.stock.v1.InventoryService"

type inventoryServer interface {
	GetAvailable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AdjustStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TransferStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReceiveStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	BreakPackaging(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SyncStore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListMovements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConvertQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateConversionFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func method(name string, call func(s inventoryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return structrpc.Method(ServiceName, name, func(srv interface{}, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
		return call(srv.(inventoryServer), ctx, req)
	})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*inventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		method("GetAvailable", inventoryServer.GetAvailable),
		method("AdjustStock", inventoryServer.AdjustStock),
		method("TransferStock", inventoryServer.TransferStock),
		method("ReceiveStock", inventoryServer.ReceiveStock),
		method("BreakPackaging", inventoryServer.BreakPackaging),
		method("SyncStore", inventoryServer.SyncStore),
		method("ListMovements", inventoryServer.ListMovements),
		method("ConvertQuantity", inventoryServer.ConvertQuantity),
		method("UpdateConversionFactor", inventoryServer.UpdateConversionFactor),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omnipos/stock/v1/inventory.proto",
}

type InventoryHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *InventoryHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, h)
}

func (h *InventoryHandler) GetAvailable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)
	key := keyFromStruct(req, rc.StoreID)

	qty, err := h.uc.Available(ctx, rc.TenantID, key)
	if err != nil {
		return nil, err
	}
	return balancesToStruct([]inventory.Balance{{Key: key, Quantity: qty}})
}

func (h *InventoryHandler) AdjustStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)

	delta, err := structrpc.Decimal(req, "delta")
	if err != nil {
		return nil, err
	}
	return h.execute(ctx, rc.TenantID, inventory.AdjustStock{
		Key:    keyFromStruct(req, rc.StoreID),
		Delta:  delta,
		Reason: structrpc.String(req, "reason"),
		UserID: rc.UserID,
	})
}

func (h *InventoryHandler) TransferStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)

	qty, err := structrpc.Decimal(req, "quantity")
	if err != nil {
		return nil, err
	}
	from := structrpc.String(req, "from_store_id")
	if from == "" {
		from = rc.StoreID
	}
	return h.execute(ctx, rc.TenantID, inventory.TransferStock{
		ProductID:   structrpc.String(req, "product_id"),
		UnitID:      structrpc.String(req, "unit_id"),
		FromStoreID: from,
		ToStoreID:   structrpc.String(req, "to_store_id"),
		Quantity:    qty,
		Reason:      structrpc.String(req, "reason"),
		UserID:      rc.UserID,
	})
}

func (h *InventoryHandler) ReceiveStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)

	qty, err := structrpc.Decimal(req, "quantity")
	if err != nil {
		return nil, err
	}
	return h.execute(ctx, rc.TenantID, inventory.ReceiveStock{
		Key:         keyFromStruct(req, rc.StoreID),
		Quantity:    qty,
		ReferenceID: structrpc.String(req, "reference_id"),
		UserID:      rc.UserID,
	})
}

func (h *InventoryHandler) BreakPackaging(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)

	packages, err := structrpc.Decimal(req, "packages")
	if err != nil {
		return nil, err
	}
	storeID := structrpc.String(req, "store_id")
	if storeID == "" {
		storeID = rc.StoreID
	}
	return h.execute(ctx, rc.TenantID, inventory.BreakPackaging{
		ProductID: structrpc.String(req, "product_id"),
		StoreID:   storeID,
		Packages:  packages,
		UserID:    rc.UserID,
	})
}

func (h *InventoryHandler) SyncStore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)
	storeID := structrpc.String(req, "store_id")
	if storeID == "" {
		storeID = rc.StoreID
	}

	report, err := h.uc.Sync(ctx, rc.TenantID, storeID)
	if err != nil {
		return nil, err
	}
	h.logger.Info("store synced",
		zap.String("tenant_id", rc.TenantID),
		zap.String("store_id", storeID),
		zap.Int("adjusted", len(report.Adjusted)),
	)
	return syncReportToStruct(report)
}

func (h *InventoryHandler) ListMovements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rc := auth.FromContext(ctx)

	filters, err := movementFiltersFromStruct(req, rc.StoreID)
	if err != nil {
		return nil, err
	}
	mvs, err := h.uc.ListMovements(ctx, rc.TenantID, filters)
	if err != nil {
		return nil, err
	}
	return movementsToStruct(mvs)
}

func (h *InventoryHandler) ConvertQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	qty, err := structrpc.Decimal(req, "quantity")
	if err != nil {
		return nil, err
	}
	out, err := h.uc.Convert(ctx, auth.GetTenantID(ctx), structrpc.String(req, "product_id"), qty,
		structrpc.String(req, "from_unit_id"), structrpc.String(req, "to_unit_id"))
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"convertible": out != nil}
	if out != nil {
		fields["quantity"] = out.String()
	}
	return structpb.NewStruct(fields)
}

func (h *InventoryHandler) UpdateConversionFactor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	productID := structrpc.String(req, "product_id")
	factor, err := structrpc.Decimal(req, "conversion_factor")
	if err != nil {
		return nil, err
	}
	if err := h.uc.UpdateFactor(ctx, auth.GetTenantID(ctx), productID, factor); err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]interface{}{
		"product_id":        productID,
		"conversion_factor": factor.String(),
	})
}

func (h *InventoryHandler) execute(ctx context.Context, tenantID string, cmd inventory.Command) (*structpb.Struct, error) {
	balances, err := h.uc.Execute(ctx, tenantID, cmd)
	if err != nil {
		return nil, err
	}
	return balancesToStruct(balances)
}
