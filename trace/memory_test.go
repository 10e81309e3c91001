package trace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/llmrelay/trace"
)

func TestMemoryStore_InsertAndGet(t *testing.T) {
	store := trace.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, trace.Record{
		RequestID:     "req-1",
		TenantID:      "acme",
		StatusCode:    200,
		PolicyVersion: "v1",
	}))

	record, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "acme", record.TenantID)
	assert.Equal(t, 200, record.StatusCode)
}

func TestMemoryStore_GetMissingReturnsNilNoError(t *testing.T) {
	store := trace.NewMemoryStore()
	record, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestMemoryStore_ListRespectsLimit(t *testing.T) {
	store := trace.NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"req-1", "req-2", "req-3"} {
		require.NoError(t, store.Insert(ctx, trace.Record{RequestID: id, TenantID: "acme"}))
	}

	summaries, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}
