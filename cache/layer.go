package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/llmrelay/config"
	"github.com/relaycore/llmrelay/embedding"
	"github.com/relaycore/llmrelay/metrics"
)

// ExactProvenance records what happened on the exact-cache probe, for the
// decision trace's cache_json field. Enabled reflects the tenant's policy
// gate regardless of whether the tier was actually consulted, so a trace
// can distinguish "tenant disabled this tier" from "tier enabled but missed."
type ExactProvenance struct {
	Enabled bool   `json:"enabled"`
	Hit     bool   `json:"hit"`
	Key     string `json:"key"`
	PlanSig string `json:"plan_sig"`
	Store   bool   `json:"store,omitempty"`
	TtlS    int    `json:"ttl_s,omitempty"`
}

// SemanticProvenance records what happened on the semantic-cache probe.
// BestEntryId and BestSimilarity describe the nearest entry found even when
// it fell short of Threshold.
type SemanticProvenance struct {
	Enabled        bool     `json:"enabled"`
	Hit            bool     `json:"hit"`
	BestEntryId    string   `json:"best_entry_id,omitempty"`
	BestSimilarity *float64 `json:"best_similarity"`
	Threshold      float64  `json:"threshold"`
	Verifier       string   `json:"verifier,omitempty"`
	Store          bool     `json:"store,omitempty"`
}

// SchedulerProvenance records the lane and wait-time estimate the request
// was scheduled under. Populated by the server once admission has assigned
// a lane; left zero-valued on outcomes decided before scheduling (e.g. a
// cache hit that never reaches the scheduler).
type SchedulerProvenance struct {
	Lane            string `json:"lane,omitempty"`
	PredictedWaitMs int    `json:"predicted_wait_ms,omitempty"`
	QueueWaitMs     *int   `json:"queue_wait_ms,omitempty"`
}

// Provenance is the cache_json trace payload: a flat object with three
// sub-sections, present on every outcome regardless of whether that tier
// (or scheduling) was actually consulted.
type Provenance struct {
	Exact     ExactProvenance     `json:"exact"`
	Semantic  SemanticProvenance  `json:"semantic"`
	Scheduler SchedulerProvenance `json:"scheduler"`
}

// Layer orchestrates the exact and semantic tiers behind the single
// Lookup/Store API the request path uses. Grounded on the probe-in-order,
// store-in-parallel sequence of original_source/relay/app/api/routes.py.
type Layer struct {
	Exact    *ExactCache
	Semantic *SemanticCache
	Embedder embedding.Embedder
	Logger   *zap.SugaredLogger
	Metrics  *metrics.Registry
}

// LookupResult is what a cache probe returns: the hit payload (if any) and
// the provenance to merge into the request's trace.
type LookupResult struct {
	ResponseJson []byte
	Hit          bool
	Provenance   Provenance
}

// Lookup probes the exact cache, then the semantic cache, honoring each
// tier's tenant-policy gate. It never returns an error: cache unavailability
// degrades to a miss, logged but not surfaced to the caller.
func (l *Layer) Lookup(ctx context.Context, tenantID string, planSig string, requestHash string, promptText string, caching config.TenantCaching) LookupResult {
	provenance := Provenance{
		Exact: ExactProvenance{
			Enabled: caching.ExactEnabled,
			Key:     ExactKey(tenantID, planSig, requestHash),
			PlanSig: planSig,
		},
		Semantic: SemanticProvenance{
			Enabled:   caching.Semantic.Enabled,
			Threshold: caching.Semantic.Threshold,
			Verifier:  caching.Semantic.Verifier,
		},
	}

	if caching.ExactEnabled && l.Exact != nil {
		if value := l.Exact.Lookup(ctx, tenantID, planSig, requestHash); value != nil {
			provenance.Exact.Hit = true
			l.Metrics.RecordCacheHit(tenantID, "exact")
			return LookupResult{ResponseJson: value, Hit: true, Provenance: provenance}
		}
		provenance.Exact.Hit = false
		l.Metrics.RecordCacheMiss(tenantID, "exact")
	}

	if caching.Semantic.Enabled && l.Semantic != nil && l.Embedder != nil {
		vector, err := l.Embedder.Embed(ctx, promptText)
		if err != nil {
			l.Logger.Warnw("embedding failed during semantic lookup", "tenant", tenantID, "error", err)
			return LookupResult{Hit: false, Provenance: provenance}
		}

		match, err := l.Semantic.Lookup(ctx, tenantID, planSig, vector)
		if err != nil {
			l.Logger.Warnw("semantic cache lookup failed", "tenant", tenantID, "error", err)
			return LookupResult{Hit: false, Provenance: provenance}
		}

		if match != nil {
			similarity := match.Similarity
			provenance.Semantic.BestEntryId = match.Id
			provenance.Semantic.BestSimilarity = &similarity
			if similarity >= caching.Semantic.Threshold {
				provenance.Semantic.Hit = true
				l.Metrics.RecordCacheHit(tenantID, "semantic")
				return LookupResult{ResponseJson: match.ResponseJson, Hit: true, Provenance: provenance}
			}
		}
		l.Metrics.RecordCacheMiss(tenantID, "semantic")
	}

	return LookupResult{Hit: false, Provenance: provenance}
}

// Store writes a successful backend response into every enabled tier and
// records the successful stores in provenance. Store failures are logged
// only and never fail the request. The stores run synchronously in the
// calling goroutine, so the caller's response waits until they finish.
func (l *Layer) Store(ctx context.Context, tenantID string, planSig string, requestHash string, promptText string, responseJson []byte, caching config.TenantCaching, exactTtl time.Duration, semanticTtl time.Duration, provenance *Provenance) {
	if caching.ExactEnabled && l.Exact != nil {
		if err := l.Exact.Store(ctx, tenantID, planSig, requestHash, responseJson, exactTtl); err == nil {
			provenance.Exact.Store = true
			provenance.Exact.TtlS = int(exactTtl.Seconds())
		}
	}

	if caching.Semantic.Enabled && l.Semantic != nil && l.Embedder != nil {
		vector, err := l.Embedder.Embed(ctx, promptText)
		if err != nil {
			l.Logger.Warnw("embedding failed during semantic store", "tenant", tenantID, "error", err)
			return
		}

		if _, err := l.Semantic.Store(ctx, tenantID, planSig, requestHash, promptText, vector, responseJson, semanticTtl); err != nil {
			l.Logger.Warnw("semantic cache store failed", "tenant", tenantID, "error", err)
			return
		}
		provenance.Semantic.Store = true
	}
}
