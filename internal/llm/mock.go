package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// MockClient returns deterministic canned outputs derived from its input.
// It backs the minimal preset and the test suite — no network calls, no
// flakiness, but still input-sensitive enough that tests can assert on
// distinct outputs for distinct inputs.
type MockClient struct {
	model string
}

// NewMockClient builds a MockClient. model is reported by Model() and
// echoed into ChatResponse.Model so callers can't tell it apart from a
// real provider's response shape.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock-1"
	}
	return &MockClient{model: model}
}

func (c *MockClient) Model() string { return c.model }

func (c *MockClient) Chat(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (*ChatResponse, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = messages[i].Content
			break
		}
	}
	text := fmt.Sprintf("[mock reply to %q]", truncateRunes(last, 60))
	return &ChatResponse{
		Model:        c.model,
		Text:         text,
		InputTokens:  estimateTokens(messages),
		OutputTokens: len(strings.Fields(text)),
	}, nil
}

// Extract fabricates a minimal JSON object satisfying the requested
// schema's top-level keys with zero/empty values, seeded by a hash of
// the prompt so repeated calls on the same input are stable.
func (c *MockClient) Extract(ctx context.Context, prompt string, schema Schema) (ExtractResult, error) {
	seed := fnvSeed(prompt)
	out := make(map[string]any, len(schema.JSON))
	for key, spec := range schema.JSON {
		out[key] = zeroValueFor(spec, seed)
	}
	return json.Marshal(out)
}

func (c *MockClient) Ping(ctx context.Context) error { return nil }

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(strings.Fields(m.Content))
	}
	return total
}

func fnvSeed(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint64(sum[:8])
}

func zeroValueFor(spec any, seed uint64) any {
	m, ok := spec.(map[string]any)
	if !ok {
		return nil
	}
	switch m["type"] {
	case "string":
		return ""
	case "number":
		return float64(seed%100) / 100
	case "integer":
		return int(seed % 100)
	case "boolean":
		return seed%2 == 0
	case "array":
		return []any{}
	default:
		return nil
	}
}
