package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// MockAdapter deterministically echoes the prompt back as a canned
// completion. It backs BACKEND_MODE=mock, used in CI and local development
// where no live Ollama instance is available.
type MockAdapter struct {
	Clock   clock.Clock
	Latency time.Duration
}

// NewMockAdapter builds a mock backend with a small, fixed simulated
// latency so scheduler and admission tests exercise non-zero timings.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{Clock: clock.New(), Latency: 5 * time.Millisecond}
}

func (a *MockAdapter) Name() string {
	return "mock"
}

func (a *MockAdapter) Generate(ctx context.Context, model string, prompt string, temperature float64, maxTokens int) (GenerationResult, error) {
	start := a.Clock.Now()

	select {
	case <-ctx.Done():
		return GenerationResult{}, ctx.Err()
	case <-a.Clock.After(a.Latency):
	}

	promptTokens := len(prompt) / 4
	completionTokens := maxTokens
	if completionTokens > 64 {
		completionTokens = 64
	}
	totalTokens := promptTokens + completionTokens

	return GenerationResult{
		Text:             fmt.Sprintf("mock completion for: %s", prompt),
		PromptTokens:     &promptTokens,
		CompletionTokens: &completionTokens,
		TotalTokens:      &totalTokens,
		BackendLatencyMs: int(a.Clock.Now().Sub(start) / time.Millisecond),
		BackendName:      a.Name(),
		BackendMeta:      map[string]any{"model": model},
	}, nil
}
