// Package llm provides the unified LLM client contract and its provider
// implementations (openai, zhipu, mock).
package llm

import (
	"encoding/json"
	"time"
)

// Message represents one chat turn passed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the unified response from any LLM provider.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Text      string

	InputTokens  int
	OutputTokens int
}

// Schema describes the JSON shape an Extract call must return. Providers
// that support structured outputs natively (openai) pass JSON straight
// through; providers that don't (zhipu) fall back to prompting for JSON
// and validating on receipt.
type Schema struct {
	Name        string
	Description string
	JSON        map[string]any
}

// ExtractResult is the raw structured payload a provider returned for an
// Extract call. The extractor package unmarshals it into its own
// ExtractionResult type — llm stays agnostic of that shape.
type ExtractResult = json.RawMessage
