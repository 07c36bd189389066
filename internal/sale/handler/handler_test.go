package handler

import (
	"context"
	"net"
	"testing"

	invusecase "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/middleware"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/structrpc"
	"github.com/fekuna/omnipos-stock-service/internal/sale/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/storage/memory"
	tenantrepo "github.com/fekuna/omnipos-stock-service/internal/tenant/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*grpc.ClientConn, *memory.Store) {
	t.Helper()
	dir := tenantrepo.NewMemoryDirectory(model.Tenant{ID: "t1", Status: model.TenantActive})
	provider := memory.NewProvider(dir)
	store := provider.Tenant("t1")

	box := "box"
	store.PutProduct(model.Product{
		BaseModel:        model.BaseModel{ID: "P"},
		StoreID:          "s1",
		BaseUnitID:       "pcs",
		PackagingUnitID:  &box,
		ConversionFactor: decimal.NewFromInt(12),
	})

	log := logger.NewNop()
	coord := usecase.NewCoordinator(provider, invusecase.NewLedger(provider, log), log)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.ContextInterceptor(),
		middleware.ErrorInterceptor(log),
	))
	NewSaleHandler(coord, log).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, store
}

func tenantCtx() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(),
		"x-tenant-id", "t1",
		"x-store-id", "s1",
		"x-user-id", "cashier-7",
	)
}

func TestSaleService_CreateGetPrint(t *testing.T) {
	conn, store := startServer(t)
	store.Seed(model.LedgerKey{ProductID: "P", StoreID: "s1", UnitID: "pcs"}, decimal.NewFromInt(100))

	req := map[string]interface{}{
		"sale_id": "3f1c6a62-4d5e-4a0f-9e55-8d2f1a7b9c10",
		"items": []interface{}{
			map[string]interface{}{"product_id": "P", "unit_id": "pcs", "quantity": "30", "price": "1500"},
		},
	}

	res, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "CreateSale", req)
	require.NoError(t, err)
	assert.Equal(t, "unprinted", structrpc.String(res, "status"))
	assert.Equal(t, "45000", structrpc.String(res, "total"))
	assert.False(t, structrpc.Bool(res, "replayed"))

	again, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "CreateSale", req)
	require.NoError(t, err)
	assert.True(t, structrpc.Bool(again, "replayed"))
	assert.Equal(t, structrpc.String(res, "invoice_number"), structrpc.String(again, "invoice_number"))
	assert.True(t, store.Quantity(model.LedgerKey{ProductID: "P", StoreID: "s1", UnitID: "pcs"}).Equal(decimal.NewFromInt(70)))

	got, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "GetSale", map[string]interface{}{"sale_id": req["sale_id"]})
	require.NoError(t, err)
	assert.Equal(t, "s1", structrpc.String(got, "store_id"))
	assert.Equal(t, "cashier-7", structrpc.String(got, "cashier_id"))
	items, err := structrpc.Structs(got, "items")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "30", structrpc.String(items[0], "quantity"))

	sale, err := SaleFromStruct(got)
	require.NoError(t, err)
	assert.Equal(t, structrpc.String(res, "invoice_number"), sale.InvoiceNumber)
	require.NotNil(t, sale.CashierID)
	assert.True(t, sale.Total.Equal(decimal.NewFromInt(45000)))
	assert.False(t, sale.CreatedAt.IsZero())

	printed, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "MarkPrinted", map[string]interface{}{"sale_id": req["sale_id"]})
	require.NoError(t, err)
	assert.Equal(t, "printed", structrpc.String(printed, "status"))
}

func TestSaleService_InsufficientStock(t *testing.T) {
	conn, store := startServer(t)
	store.Seed(model.LedgerKey{ProductID: "P", StoreID: "s1", UnitID: "pcs"}, decimal.NewFromInt(40))

	_, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "CreateSale", map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"product_id": "P", "unit_id": "pcs", "quantity": "50", "price": "1"},
		},
	})

	st := status.Convert(err)
	require.Equal(t, codes.Aborted, st.Code())
	require.Len(t, st.Details(), 1)
	info := st.Details()[0].(*errdetails.ErrorInfo)
	assert.Equal(t, "40", info.Metadata["available"])
	assert.Equal(t, "50", info.Metadata["requested"])
	assert.Zero(t, store.SaleCount())
}

func TestSaleService_ReverseSale(t *testing.T) {
	conn, store := startServer(t)
	pcs := model.LedgerKey{ProductID: "P", StoreID: "s1", UnitID: "pcs"}
	store.Seed(pcs, decimal.NewFromInt(10))

	res, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "CreateSale", map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"product_id": "P", "unit_id": "pcs", "quantity": 4, "price": 100},
		},
	})
	require.NoError(t, err)

	rev, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "ReverseSale", map[string]interface{}{
		"sale_id": structrpc.String(res, "sale_id"),
		"lines":   []interface{}{map[string]interface{}{"line_no": 1, "quantity": "1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "partially_refunded", structrpc.String(rev, "status"))
	assert.True(t, store.Quantity(pcs).Equal(decimal.NewFromInt(7)))
}

func TestSaleService_RequiresTenant(t *testing.T) {
	conn, _ := startServer(t)

	_, err := structrpc.Invoke(context.Background(), conn, ServiceName, "GetSale", map[string]interface{}{"sale_id": "x"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSaleService_UnknownSale(t *testing.T) {
	conn, _ := startServer(t)

	_, err := structrpc.Invoke(tenantCtx(), conn, ServiceName, "GetSale", map[string]interface{}{"sale_id": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
