package middleware

import (
	"context"
	"testing"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestContextInterceptor(t *testing.T) {
	icpt := ContextInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/omnipos.stock.v1.SaleService/CreateSale"}

	t.Run("stores identity", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-tenant-id", "t1", "x-store-id", "s1"))
		var seen auth.RequestContext
		_, err := icpt(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			seen = auth.FromContext(ctx)
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "t1", seen.TenantID)
		assert.Equal(t, "s1", seen.StoreID)
	})

	t.Run("missing tenant", func(t *testing.T) {
		_, err := icpt(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("health needs no tenant", func(t *testing.T) {
		health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
		resp, err := icpt(context.Background(), nil, health, func(ctx context.Context, req interface{}) (interface{}, error) {
			return "serving", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "serving", resp)
	})
}

func TestErrorInterceptor(t *testing.T) {
	icpt := ErrorInterceptor(logger.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/omnipos.stock.v1.InventoryService/AdjustStock"}

	resp, err := icpt(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp)

	_, err = icpt(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, apperror.ErrUnitMismatch
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
