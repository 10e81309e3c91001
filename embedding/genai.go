package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEmbedder calls Google's GenAI embedding endpoint. It is the
// production embedder; MockEmbedder backs tests and BACKEND_MODE=mock.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGenAIEmbedder builds a GenAI-backed embedder. apiKey may be empty when
// the environment already carries GOOGLE_API_KEY / GOOGLE_GENAI_USE_VERTEXAI.
func NewGenAIEmbedder(ctx context.Context, apiKey string, model string) (*GenAIEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEmbedder{client: client, model: model, dim: 768}, nil
}

func (e *GenAIEmbedder) Dimensions() int {
	return e.dim
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("genai embed request failed: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("genai embed response had no values")
	}

	return resp.Embeddings[0].Values, nil
}
