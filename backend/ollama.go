package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// OllamaAdapter calls a local Ollama server's /api/generate endpoint with
// stream:false. Grounded on original_source/relay/app/core/ollama_adapter.py.
type OllamaAdapter struct {
	BaseUrl string
	Client  *http.Client
	Clock   clock.Clock
}

// NewOllamaAdapter builds an adapter with a sane request timeout. Ollama
// generations can run long, so the HTTP client timeout is generous; the
// caller's context still governs cancellation.
func NewOllamaAdapter(baseUrl string) *OllamaAdapter {
	return &OllamaAdapter{
		BaseUrl: baseUrl,
		Client:  &http.Client{Timeout: 120 * time.Second},
		Clock:   clock.New(),
	}
}

func (a *OllamaAdapter) Name() string {
	return "ollama"
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount *int   `json:"prompt_eval_count"`
	EvalCount       *int   `json:"eval_count"`
}

func (a *OllamaAdapter) Generate(ctx context.Context, model string, prompt string, temperature float64, maxTokens int) (GenerationResult, error) {
	start := a.Clock.Now()

	payload := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseUrl+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GenerationResult{}, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to read ollama response: %w", err)
	}

	var data ollamaGenerateResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return GenerationResult{}, fmt.Errorf("failed to parse ollama response: %w", err)
	}

	latencyMs := int(a.Clock.Now().Sub(start) / time.Millisecond)
	text := strings.TrimSpace(data.Response)

	var totalTokens *int
	if data.PromptEvalCount != nil && data.EvalCount != nil {
		total := *data.PromptEvalCount + *data.EvalCount
		totalTokens = &total
	}

	return GenerationResult{
		Text:             text,
		PromptTokens:     data.PromptEvalCount,
		CompletionTokens: data.EvalCount,
		TotalTokens:      totalTokens,
		BackendLatencyMs: latencyMs,
		BackendName:      a.Name(),
		BackendMeta:      map[string]any{"endpoint": "/api/generate"},
	}, nil
}
