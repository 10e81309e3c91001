package backend_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/llmrelay/backend"
)

func TestMockAdapter_GenerateReturnsDeterministicResult(t *testing.T) {
	mockClock := clock.NewMock()
	adapter := &backend.MockAdapter{Clock: mockClock, Latency: 10 * time.Millisecond}

	resultCh := make(chan backend.GenerationResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := adapter.Generate(context.Background(), "llama3.2:1b", "hello", 0.2, 32)
		resultCh <- result
		errCh <- err
	}()

	mockClock.Add(10 * time.Millisecond)

	require.NoError(t, <-errCh)
	result := <-resultCh
	assert.Equal(t, "mock completion for: hello", result.Text)
	assert.Equal(t, "mock", result.BackendName)
	require.NotNil(t, result.CompletionTokens)
	assert.Equal(t, 32, *result.CompletionTokens)
}

func TestMockAdapter_GenerateRespectsContextCancellation(t *testing.T) {
	mockClock := clock.NewMock()
	adapter := &backend.MockAdapter{Clock: mockClock, Latency: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Generate(ctx, "model", "prompt", 0.2, 16)
	assert.ErrorIs(t, err, context.Canceled)
}
