package embedding

import (
	"context"
	"encoding/binary"
	"hash/fnv"
)

// MockEmbedder derives a deterministic vector from a text's hash so tests
// and CI runs can exercise nearest-neighbor matching without calling out to
// a real embedding model. Identical text always yields the identical
// vector; no two distinct texts are guaranteed to differ, but in practice
// the hash spread makes collisions negligible for test fixtures.
type MockEmbedder struct {
	Dim int
}

// NewMockEmbedder builds a mock embedder with a small, cache-friendly
// dimensionality.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dim: 16}
}

func (e *MockEmbedder) Dimensions() int {
	return e.Dim
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.Dim)
	seed := fnv.New64a()
	seed.Write([]byte(text))
	state := seed.Sum64()

	for i := range vector {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], state)
		seed.Reset()
		seed.Write(buf[:])
		seed.Write([]byte{byte(i)})
		state = seed.Sum64()
		// Map the hash into [-1, 1] so cosine distance behaves sensibly.
		vector[i] = float32(state%2000)/1000.0 - 1.0
	}

	return vector, nil
}
