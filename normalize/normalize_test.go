package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaycore/llmrelay/normalize"
	"github.com/relaycore/llmrelay/openai"
)

func TestMessages_TrimsWhitespaceWithoutChangingHash(t *testing.T) {
	a := normalize.Messages([]openai.Message{{Role: "user", Content: "hello"}})
	b := normalize.Messages([]openai.Message{{Role: "  user  ", Content: "  hello  "}})

	assert.Equal(t, a.RequestHash, b.RequestHash)
	assert.Equal(t, "user:hello", a.CanonicalText)
}

func TestMessages_ReorderingChangesHash(t *testing.T) {
	a := normalize.Messages([]openai.Message{
		{Role: "system", Content: "be nice"},
		{Role: "user", Content: "hi"},
	})
	b := normalize.Messages([]openai.Message{
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "be nice"},
	})

	assert.NotEqual(t, a.RequestHash, b.RequestHash)
}

func TestMessages_EmptyRoleAndContentAreAllowed(t *testing.T) {
	req := normalize.Messages([]openai.Message{{}})
	assert.Equal(t, ":", req.CanonicalText)
	assert.NotEmpty(t, req.RequestHash)
}

func TestMessages_Idempotent(t *testing.T) {
	first := normalize.Messages([]openai.Message{{Role: " user ", Content: " hi "}})
	second := normalize.Messages(first.Messages)
	assert.Equal(t, first, second)
}

func TestMessages_Deterministic(t *testing.T) {
	messages := []openai.Message{{Role: "user", Content: "same input"}}
	a := normalize.Messages(messages)
	b := normalize.Messages(messages)
	assert.Equal(t, a.RequestHash, b.RequestHash)
}
