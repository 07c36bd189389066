package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/tenant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedDirectory is a read-through Redis cache in front of the catalog.
// The TTL bounds how long a status change can go unnoticed by the router.
//
// Database endpoints carry credentials and never reach Redis. The cache
// holds the status and a fingerprint of the endpoint; the endpoint itself is
// kept in process memory as last read from the catalog, and is read again
// whenever the fingerprint no longer matches.
type CachedDirectory struct {
	next   tenant.Directory
	client *redis.Client
	ttl    time.Duration
	logger logger.ZapLogger

	mu        sync.RWMutex
	endpoints map[string]string // tenant id -> endpoint from the catalog
}

// cachedTenant is the Redis record.
type cachedTenant struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Status      model.TenantStatus `json:"status"`
	EndpointRef string             `json:"endpoint_ref"`
}

func NewCachedDirectory(next tenant.Directory, client *redis.Client, ttl time.Duration, log logger.ZapLogger) *CachedDirectory {
	return &CachedDirectory{next: next, client: client, ttl: ttl, logger: log, endpoints: map[string]string{}}
}

func cacheKey(tenantID string) string {
	return fmt.Sprintf("tenants:directory:%s", tenantID)
}

func endpointRef(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:12])
}

func (d *CachedDirectory) Lookup(ctx context.Context, tenantID string) (*model.Tenant, error) {
	key := cacheKey(tenantID)

	val, err := d.client.Get(ctx, key).Result()
	if err == nil {
		var c cachedTenant
		if err := json.Unmarshal([]byte(val), &c); err == nil {
			if t, ok := d.fromCache(&c); ok {
				return t, nil
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		// Cache outage falls through to the catalog.
		d.logger.Warn("tenant cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	t, err := d.next.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.endpoints[t.ID] = t.Endpoint
	d.mu.Unlock()

	record := cachedTenant{ID: t.ID, Name: t.Name, Status: t.Status, EndpointRef: endpointRef(t.Endpoint)}
	if data, err := json.Marshal(record); err == nil {
		if err := d.client.Set(ctx, key, data, d.ttl).Err(); err != nil {
			d.logger.Warn("tenant cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return t, nil
}

// fromCache rebuilds the tenant from a Redis record. An active tenant needs
// the endpoint whose fingerprint the record carries; an inactive one is
// returned without an endpoint since nothing connects to it.
func (d *CachedDirectory) fromCache(c *cachedTenant) (*model.Tenant, bool) {
	t := &model.Tenant{ID: c.ID, Name: c.Name, Status: c.Status}
	if !t.IsActive() {
		return t, true
	}
	d.mu.RLock()
	endpoint, ok := d.endpoints[c.ID]
	d.mu.RUnlock()
	if !ok || endpointRef(endpoint) != c.EndpointRef {
		return nil, false
	}
	t.Endpoint = endpoint
	return t, true
}

// Forget drops a cached entry so the next lookup hits the catalog.
func (d *CachedDirectory) Forget(ctx context.Context, tenantID string) error {
	d.mu.Lock()
	delete(d.endpoints, tenantID)
	d.mu.Unlock()
	return d.client.Del(ctx, cacheKey(tenantID)).Err()
}
