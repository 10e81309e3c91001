// Package cache implements the relay's two-tier cache: an exact
// key-value cache (this file) and a semantic nearest-neighbor cache
// (semantic.go). Grounded on the teacher's state/valkey.go Lua/command
// idiom and on original_source/relay/app/utils/cache_keys.py +
// app/api/routes.py's exact-cache read/write sequence.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

// ExactKey builds the exact-cache key. Privacy invariant: a cache entry is
// only ever returned when tenant, plan signature, and request hash all
// match, so the key embeds all three.
func ExactKey(tenantID string, planSig string, requestHash string) string {
	return fmt.Sprintf("exact:%s:%s:%s", tenantID, planSig, requestHash)
}

// ExactCache is the exact-match tier, backed by Valkey GET/SETEX, with
// per-tenant hit/miss counters maintained via INCR.
type ExactCache struct {
	client valkey.Client
	logger *zap.SugaredLogger
}

func NewExactCache(client valkey.Client, logger *zap.SugaredLogger) *ExactCache {
	return &ExactCache{client: client, logger: logger}
}

// Lookup returns the cached response bytes, or nil if there is no entry
// (or the lookup failed, which is treated as a miss rather than an error —
// cache failures degrade gracefully per the error taxonomy).
func (c *ExactCache) Lookup(ctx context.Context, tenantID string, planSig string, requestHash string) []byte {
	key := ExactKey(tenantID, planSig, requestHash)

	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			c.incrMetric(ctx, "cache_exact_miss", tenantID)
			return nil
		}
		c.logger.Warnw("exact cache lookup failed", "tenant", tenantID, "error", err)
		return nil
	}

	value, err := resp.AsBytes()
	if err != nil {
		c.logger.Warnw("exact cache decode failed", "tenant", tenantID, "error", err)
		return nil
	}

	c.incrMetric(ctx, "cache_exact_hit", tenantID)
	return value
}

// Store writes a response into the exact cache with the given TTL. Store
// failures are logged and returned to the caller; Layer.Store only uses the
// error to decide what to record in the provenance, so a cache-store failure
// does not fail the request that already succeeded.
func (c *ExactCache) Store(ctx context.Context, tenantID string, planSig string, requestHash string, value []byte, ttl time.Duration) error {
	key := ExactKey(tenantID, planSig, requestHash)

	err := c.client.Do(ctx, c.client.B().Set().
		Key(key).
		Value(valkey.BinaryString(value)).
		Ex(ttl).
		Build(),
	).Error()

	if err != nil {
		c.logger.Warnw("exact cache store failed", "tenant", tenantID, "error", err)
	}
	return err
}

func (c *ExactCache) incrMetric(ctx context.Context, metric string, tenantID string) {
	key := fmt.Sprintf("metrics:%s:%s", metric, tenantID)
	if err := c.client.Do(ctx, c.client.B().Incr().Key(key).Build()).Error(); err != nil {
		c.logger.Warnw("cache metric incr failed", "metric", metric, "error", err)
	}
}
