// Package backend defines the single-capability adapter the scheduler's
// workers invoke to actually produce text, and the result shape they
// return. Grounded on original_source/relay/app/core/backend.py, cut down
// to the one capability this relay needs from the teacher's much larger
// provider.AiEndpoint interface.
package backend

import "context"

// GenerationResult is what a backend call produces. Token counts and
// backend_ttft_ms are optional because not every backend reports them.
type GenerationResult struct {
	Text string

	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int

	BackendLatencyMs int
	BackendTtftMs    *int
	BackendName      string
	BackendMeta      map[string]any
}

// Adapter is implemented by each concrete backend (Ollama, mock, ...).
// Generate must be safe for concurrent use by multiple scheduler workers.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string, temperature float64, maxTokens int) (GenerationResult, error)
}
