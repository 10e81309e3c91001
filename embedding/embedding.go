// Package embedding provides the vector-embedding capability the semantic
// cache uses to compute nearest-neighbor similarity. Grounded on
// original_source/relay/app/core/embeddings.py, whose fastembed singleton
// is replaced with google.golang.org/genai's embedding endpoint — fastembed
// is a Python-only local ONNX runtime with no Go equivalent in this pack;
// substitution justified in DESIGN.md.
package embedding

import "context"

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
