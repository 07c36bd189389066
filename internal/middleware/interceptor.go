package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Services that answer without a tenant.
var tenantFree = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

func needsTenant(method string) bool {
	for _, prefix := range tenantFree {
		if strings.HasPrefix(method, prefix) {
			return false
		}
	}
	return true
}

// ContextInterceptor copies the caller identity from metadata into the
// context and rejects tenant-scoped calls that carry none.
func ContextInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		rc := auth.FromMetadata(ctx)
		if rc.TenantID == "" && needsTenant(info.FullMethod) {
			return nil, status.Error(codes.Unauthenticated, "missing "+auth.MetadataTenantID)
		}
		return handler(auth.WithRequest(ctx, rc), req)
	}
}

// ErrorInterceptor logs each call and converts returned errors with ToStatus.
func ErrorInterceptor(log logger.ZapLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		st := ToStatus(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("tenant_id", auth.GetTenantID(ctx)),
			zap.String("code", st.Code().String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch st.Code() {
		case codes.OK:
			log.Debug("grpc call", fields...)
			return resp, nil
		case codes.Internal, codes.Unknown:
			log.Error("grpc call failed", append(fields, zap.Error(err))...)
		default:
			log.Info("grpc call rejected", append(fields, zap.String("reason", st.Message()))...)
		}
		return nil, st.Err()
	}
}
