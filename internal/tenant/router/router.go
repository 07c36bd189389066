package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/tenant"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	OpenAttempts int
	OpenBackoff  time.Duration // doubled after every failed attempt
	OpenTimeout  time.Duration
	IdleTimeout  time.Duration // zero disables idle eviction
}

func (o Options) withDefaults() Options {
	if o.OpenAttempts <= 0 {
		o.OpenAttempts = 3
	}
	if o.OpenBackoff <= 0 {
		o.OpenBackoff = 100 * time.Millisecond
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 10 * time.Second
	}
	return o
}

type pool struct {
	db       *sqlx.DB
	endpoint string
	lastUsed atomic.Int64
}

func (p *pool) touch(now time.Time) { p.lastUsed.Store(now.UnixNano()) }

// Router maps tenant ids to their connection pools. It holds at most one
// pool per tenant and never hands one tenant's pool to another.
type Router struct {
	dir      tenant.Directory
	opener   Opener
	progress ProvisionStore
	opts     Options
	logger   logger.ZapLogger
	tracer   trace.Tracer
	now      func() time.Time

	mu      sync.RWMutex
	pools   map[string]*pool
	retired map[string]uint64 // bumped whenever a tenant is seen gone or inactive
	group   singleflight.Group
}

func NewRouter(dir tenant.Directory, opener Opener, progress ProvisionStore, opts Options, log logger.ZapLogger) *Router {
	return &Router{
		dir:      dir,
		opener:   opener,
		progress: progress,
		opts:     opts.withDefaults(),
		logger:   log,
		tracer:   otel.Tracer("omnipos-stock-service/router"),
		now:      time.Now,
		pools:    make(map[string]*pool),
		retired:  make(map[string]uint64),
	}
}

// Resolve returns the live pool for tenantID, opening it on first use.
func (r *Router) Resolve(ctx context.Context, tenantID string) (*sqlx.DB, error) {
	ctx, span := r.tracer.Start(ctx, "tenant.resolve", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	db, err := r.resolve(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return db, nil
}

func (r *Router) resolve(ctx context.Context, tenantID string) (*sqlx.DB, error) {
	t, err := r.dir.Lookup(ctx, tenantID)
	if err != nil {
		if errors.Is(err, apperror.ErrTenantNotFound) {
			r.retire(tenantID)
			return nil, err
		}
		return nil, fmt.Errorf("%w: lookup tenant %s: %w", apperror.ErrTenantConnection, tenantID, err)
	}
	if !t.IsActive() {
		r.retire(tenantID)
		return nil, fmt.Errorf("tenant %s is %s: %w", tenantID, t.Status, apperror.ErrTenantUnavailable)
	}

	if p := r.cached(tenantID); p != nil && p.endpoint == t.Endpoint {
		p.touch(r.now())
		return p.db, nil
	}

	v, err, shared := r.group.Do(tenantID, func() (interface{}, error) {
		return r.provision(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("shared tenant pool provisioning", zap.String("tenant_id", tenantID))
	}
	return v.(*sqlx.DB), nil
}

func (r *Router) provision(ctx context.Context, t *model.Tenant) (*sqlx.DB, error) {
	if p := r.cached(t.ID); p != nil {
		if p.endpoint == t.Endpoint {
			p.touch(r.now())
			return p.db, nil
		}
		r.logger.Info("tenant endpoint changed, replacing pool", zap.String("tenant_id", t.ID))
		r.evict(t.ID, p)
	}

	r.mu.RLock()
	gen := r.retired[t.ID]
	r.mu.RUnlock()

	// Opening outlives the first caller so that callers sharing the result
	// are not failed by one cancellation.
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.OpenTimeout)
	defer cancel()

	db, err := r.openWithRetry(openCtx, t)
	if err != nil {
		return nil, err
	}
	p := &pool{db: db, endpoint: t.Endpoint}
	p.touch(r.now())

	// The tenant may have been suspended while the pool was opening.
	cur, err := r.dir.Lookup(openCtx, t.ID)
	switch {
	case errors.Is(err, apperror.ErrTenantNotFound):
		r.closePool(t.ID, p)
		return nil, err
	case err != nil:
		r.closePool(t.ID, p)
		return nil, fmt.Errorf("%w: lookup tenant %s: %w", apperror.ErrTenantConnection, t.ID, err)
	case !cur.IsActive():
		r.closePool(t.ID, p)
		return nil, fmt.Errorf("tenant %s is %s: %w", t.ID, cur.Status, apperror.ErrTenantUnavailable)
	}

	r.mu.Lock()
	if r.retired[t.ID] != gen {
		r.mu.Unlock()
		r.closePool(t.ID, p)
		return nil, fmt.Errorf("tenant %s became unavailable while opening: %w", t.ID, apperror.ErrTenantUnavailable)
	}
	r.pools[t.ID] = p
	r.mu.Unlock()

	return db, nil
}

func (r *Router) openWithRetry(ctx context.Context, t *model.Tenant) (*sqlx.DB, error) {
	var lastErr error
	attempts := 0

retry:
	for attempt := 1; attempt <= r.opts.OpenAttempts; attempt++ {
		attempts = attempt
		r.record(ctx, ProvisionState{TenantID: t.ID, Phase: PhaseProvisioning, Attempts: attempt})

		db, err := r.opener.Open(ctx, t)
		if err == nil && db != nil {
			r.record(ctx, ProvisionState{TenantID: t.ID, Phase: PhaseReady, Attempts: attempt})
			r.logger.Info("opened tenant pool", zap.String("tenant_id", t.ID), zap.Int("attempt", attempt))
			return db, nil
		}
		if err == nil {
			err = errors.New("opener returned no pool")
		}
		lastErr = err
		r.logger.Warn("failed to open tenant pool",
			zap.String("tenant_id", t.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt == r.opts.OpenAttempts {
			break retry
		}
		backoff := r.opts.OpenBackoff << (attempt - 1)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = errors.Join(lastErr, ctx.Err())
			break retry
		case <-timer.C:
		}
	}

	r.record(ctx, ProvisionState{TenantID: t.ID, Phase: PhaseFailed, Attempts: attempts, Error: lastErr.Error()})
	return nil, fmt.Errorf("%w: tenant %s after %d attempts: %w", apperror.ErrTenantConnection, t.ID, attempts, lastErr)
}

func (r *Router) record(ctx context.Context, st ProvisionState) {
	if r.progress == nil {
		return
	}
	st.UpdatedAt = r.now()
	if err := r.progress.Put(ctx, st); err != nil {
		r.logger.Warn("failed to record provisioning state", zap.String("tenant_id", st.TenantID), zap.Error(err))
	}
}

// Progress reports the last recorded provisioning state for tenantID.
func (r *Router) Progress(ctx context.Context, tenantID string) (*ProvisionState, bool, error) {
	if r.progress == nil {
		return nil, false, nil
	}
	return r.progress.Get(ctx, tenantID)
}

func (r *Router) cached(tenantID string) *pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools[tenantID]
}

// Invalidate closes and evicts the cached pool. The next Resolve re-provisions.
func (r *Router) Invalidate(tenantID string) {
	r.mu.Lock()
	p, ok := r.pools[tenantID]
	delete(r.pools, tenantID)
	r.mu.Unlock()

	if ok {
		r.closePool(tenantID, p)
	}
}

// retire invalidates the tenant's pool and fails provisioning that started
// before this call.
func (r *Router) retire(tenantID string) {
	r.mu.Lock()
	r.retired[tenantID]++
	r.mu.Unlock()
	r.Invalidate(tenantID)
}

// evict removes p only if it is still the cached pool for tenantID.
func (r *Router) evict(tenantID string, p *pool) bool {
	r.mu.Lock()
	cur, ok := r.pools[tenantID]
	if ok && cur == p {
		delete(r.pools, tenantID)
	}
	r.mu.Unlock()

	if ok && cur == p {
		r.closePool(tenantID, p)
		return true
	}
	return false
}

func (r *Router) closePool(tenantID string, p *pool) {
	if err := p.db.Close(); err != nil {
		r.logger.Warn("failed to close tenant pool", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	if r.progress != nil {
		_ = r.progress.Delete(context.Background(), tenantID)
	}
	r.logger.Info("closed tenant pool", zap.String("tenant_id", tenantID))
}

// HealthCheck pings the tenant pool, recreating it once on failure.
func (r *Router) HealthCheck(ctx context.Context, tenantID string) (bool, error) {
	db, err := r.Resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	err = db.PingContext(ctx)
	if err == nil {
		return true, nil
	}
	r.logger.Warn("tenant pool failed health check, recreating", zap.String("tenant_id", tenantID), zap.Error(err))

	if p := r.cached(tenantID); p != nil && p.db == db {
		r.evict(tenantID, p)
	}

	db, err = r.Resolve(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if err := db.PingContext(ctx); err != nil {
		return false, fmt.Errorf("%w: tenant %s health check: %w", apperror.ErrTenantConnection, tenantID, err)
	}
	return true, nil
}

// EvictIdle closes pools unused since before now-IdleTimeout and returns how
// many were closed.
func (r *Router) EvictIdle(now time.Time) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.opts.IdleTimeout).UnixNano()

	r.mu.RLock()
	var idle []string
	for id, p := range r.pools {
		if p.lastUsed.Load() < cutoff {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		p := r.cached(id)
		if p != nil && p.lastUsed.Load() < cutoff && r.evict(id, p) {
			closed++
		}
	}
	return closed
}

// Run evicts idle pools until ctx is done.
func (r *Router) Run(ctx context.Context) {
	if r.opts.IdleTimeout <= 0 {
		return
	}
	interval := r.opts.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(r.now()); n > 0 {
				r.logger.Info("evicted idle tenant pools", zap.Int("count", n))
			}
		}
	}
}

// OpenPools reports how many tenant pools are currently cached.
func (r *Router) OpenPools() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

type Stats struct {
	OpenPools int
	InUse     int // connections checked out across every pool
	Idle      int
}

func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{OpenPools: len(r.pools)}
	for _, p := range r.pools {
		dbStats := p.db.Stats()
		st.InUse += dbStats.InUse
		st.Idle += dbStats.Idle
	}
	return st
}

// Close closes every cached pool.
func (r *Router) Close() {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*pool)
	r.mu.Unlock()

	for id, p := range pools {
		r.closePool(id, p)
	}
}
