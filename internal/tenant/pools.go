package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PoolArena hands out tenant-scoped connection pools built from the shared
// connection template plus the tenant's resolved credentials. Pools are
// keyed by tenant id and evicted after their TTL so rotated credentials are
// picked up without a restart.
type PoolArena struct {
	resolver     *Resolver
	connTemplate string
	ttl          time.Duration
	activePools  prometheus.Gauge
	logger       *zap.Logger

	mu      sync.Mutex
	pools   map[string]*poolEntry
	retired []retiredPool
	done    chan struct{}
}

type poolEntry struct {
	pool      *pgxpool.Pool
	expiresAt time.Time
}

// retiredPool is a pool removed from the arena but not yet closed. A pool can
// be handed out right up to its expiry instant, so closing waits out a grace
// period long enough for any request holding it to finish.
type retiredPool struct {
	pool    *pgxpool.Pool
	closeAt time.Time
}

// evictionGrace must exceed the server's request timeout.
const evictionGrace = 1 * time.Minute

// NewPoolArena creates a pool arena and starts its eviction loop.
func NewPoolArena(resolver *Resolver, connTemplate string, ttl time.Duration, activePools prometheus.Gauge, logger *zap.Logger) *PoolArena {
	a := &PoolArena{
		resolver:     resolver,
		connTemplate: connTemplate,
		ttl:          ttl,
		activePools:  activePools,
		logger:       logger,
		pools:        make(map[string]*poolEntry),
		done:         make(chan struct{}),
	}

	go a.evict()

	return a
}

// Pool returns a live connection pool for the tenant, constructing one from
// resolved credentials on first use or after eviction.
func (a *PoolArena) Pool(ctx context.Context, tenantID string) (*pgxpool.Pool, error) {
	a.mu.Lock()
	if entry, ok := a.pools[tenantID]; ok && time.Now().Before(entry.expiresAt) {
		pool := entry.pool
		a.mu.Unlock()
		return pool, nil
	}
	a.mu.Unlock()

	tc, err := a.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	connString := fmt.Sprintf("%s user=%s password=%s",
		a.connTemplate, tc.DatabaseUsername, tc.DatabasePassword)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		// Stale cached credentials are the likely cause; force a refetch
		// for the next caller.
		a.resolver.Invalidate(ctx, tenantID)
		return nil, fmt.Errorf("failed to ping tenant database: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.pools[tenantID]; ok && time.Now().Before(entry.expiresAt) {
		// Another caller won the construction race.
		pool.Close()
		return entry.pool, nil
	}
	if entry, ok := a.pools[tenantID]; ok {
		// The expired pool may still be held by an in-flight request.
		a.retired = append(a.retired, retiredPool{pool: entry.pool, closeAt: time.Now().Add(evictionGrace)})
	}
	a.pools[tenantID] = &poolEntry{
		pool:      pool,
		expiresAt: time.Now().Add(a.ttl),
	}
	a.reportPoolCount()

	a.logger.Info("Created tenant connection pool",
		zap.String("tenant_id", tenantID))

	return pool, nil
}

// Close stops eviction and closes every pool, retired ones included.
func (a *PoolArena) Close() {
	close(a.done)

	a.mu.Lock()
	defer a.mu.Unlock()
	for tenantID, entry := range a.pools {
		entry.pool.Close()
		delete(a.pools, tenantID)
	}
	for _, rp := range a.retired {
		rp.pool.Close()
	}
	a.retired = nil
	a.reportPoolCount()
}

// reportPoolCount must be called with the mutex held.
func (a *PoolArena) reportPoolCount() {
	if a.activePools != nil {
		a.activePools.Set(float64(len(a.pools)))
	}
}

// evict periodically retires pools past their TTL and closes retired pools
// past their grace period.
func (a *PoolArena) evict() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.sweep(time.Now())
		}
	}
}

// sweep is one eviction pass. Expired entries leave the arena immediately,
// so new requests build a fresh pool, but the pool itself stays open until
// its grace period elapses.
func (a *PoolArena) sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for tenantID, entry := range a.pools {
		if now.After(entry.expiresAt) {
			a.retired = append(a.retired, retiredPool{pool: entry.pool, closeAt: now.Add(evictionGrace)})
			delete(a.pools, tenantID)
			a.logger.Debug("Retired expired tenant connection pool",
				zap.String("tenant_id", tenantID))
		}
	}

	remaining := a.retired[:0]
	for _, rp := range a.retired {
		if now.After(rp.closeAt) {
			rp.pool.Close()
		} else {
			remaining = append(remaining, rp)
		}
	}
	a.retired = remaining
	a.reportPoolCount()
}
