package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/llmrelay/metrics"
)

func TestRegistry_RecordsCacheAndQueueMetrics(t *testing.T) {
	registry := metrics.New()

	registry.RecordCacheHit("acme", "exact")
	registry.RecordCacheMiss("acme", "semantic")
	registry.SetQueueDepth("short", 3)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	registry.Handler().ServeHTTP(recorder, req)

	require.Equal(t, 200, recorder.Code)
	body := recorder.Body.String()
	assert.Contains(t, body, `llmrelay_cache_hits_total{tenant="acme",tier="exact"} 1`)
	assert.Contains(t, body, `llmrelay_cache_misses_total{tenant="acme",tier="semantic"} 1`)
	assert.Contains(t, body, `llmrelay_scheduler_queue_depth{lane="short"} 3`)
}

func TestRegistry_NilSafe(t *testing.T) {
	var registry *metrics.Registry

	assert.NotPanics(t, func() {
		registry.RecordCacheHit("acme", "exact")
		registry.RecordCacheMiss("acme", "exact")
		registry.SetQueueDepth("short", 1)
	})
}

func TestRegistry_UsesDedicatedRegistry(t *testing.T) {
	registry := metrics.New()
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	registry.Handler().ServeHTTP(recorder, req)

	// A dedicated registry never pulls in the Go-runtime default collectors.
	assert.False(t, strings.Contains(recorder.Body.String(), "go_goroutines"))
}
