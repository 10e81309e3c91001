// Package normalize turns a caller-supplied message list into a canonical,
// hashable request. Grounded on the teacher's flat, pure-function utility
// style (utils/utils.go) and on original_source/relay/app/utils/normalize.py.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/relaycore/llmrelay/openai"
)

// Request is the canonical, immutable form of a chat-completions request.
// Construct it only through Messages; do not mutate its fields afterward.
type Request struct {
	Messages      []openai.Message
	CanonicalText string
	RequestHash   string
}

// Messages normalizes a raw message list into a Request. It never fails:
// empty content and missing roles are permitted and simply normalize to
// empty strings, which still participate in the hash.
func Messages(messages []openai.Message) Request {
	canon := make([]openai.Message, len(messages))
	parts := make([]string, len(messages))

	for i, m := range messages {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		canon[i] = openai.Message{Role: role, Content: content}
		parts[i] = role + ":" + content
	}

	canonicalText := strings.Join(parts, "\n")
	sum := sha256.Sum256([]byte(canonicalText))

	return Request{
		Messages:      canon,
		CanonicalText: canonicalText,
		RequestHash:   hex.EncodeToString(sum[:]),
	}
}
