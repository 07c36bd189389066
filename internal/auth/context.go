package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// Metadata keys set by the upstream gateway after it authorised the caller.
const (
	MetadataTenantID = "x-tenant-id"
	MetadataStoreID  = "x-store-id"
	MetadataUserID   = "x-user-id"
)

type contextKey struct{ name string }

var requestKey = contextKey{"request"}

type RequestContext struct {
	TenantID string
	StoreID  string
	UserID   string
}

func WithRequest(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestKey, rc)
}

// FromMetadata reads the request identity from incoming gRPC metadata.
func FromMetadata(ctx context.Context) RequestContext {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return RequestContext{}
	}
	first := func(key string) string {
		if val := md.Get(key); len(val) > 0 {
			return val[0]
		}
		return ""
	}
	return RequestContext{
		TenantID: first(MetadataTenantID),
		StoreID:  first(MetadataStoreID),
		UserID:   first(MetadataUserID),
	}
}

// FromContext prefers what an interceptor stored and falls back to metadata.
func FromContext(ctx context.Context) RequestContext {
	if rc, ok := ctx.Value(requestKey).(RequestContext); ok {
		return rc
	}
	return FromMetadata(ctx)
}

func GetTenantID(ctx context.Context) string { return FromContext(ctx).TenantID }

func GetStoreID(ctx context.Context) string { return FromContext(ctx).StoreID }

func GetUserID(ctx context.Context) string { return FromContext(ctx).UserID }
