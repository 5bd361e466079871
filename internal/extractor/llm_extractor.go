package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nugget/memoraid/internal/llm"
	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

var extractionSchema = llm.Schema{
	Name:        "memory_extraction",
	Description: "summary, keywords, emotion, importance, facts, and profile_delta observed in a conversation",
	JSON: map[string]any{
		"summary":      map[string]any{"type": "string"},
		"keywords":     map[string]any{"type": "array"},
		"emotion":      map[string]any{"type": "string"},
		"importance":   map[string]any{"type": "number"},
		"facts":        map[string]any{"type": "array"},
		"profile_delta": map[string]any{"type": "object"},
	},
}

// llmFact/llmProfileDelta/llmExtraction mirror the JSON shape requested
// from the model; they exist only to decode the wire response before
// converting into the package's own ExtractionResult.
type llmFact struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

type llmProfileDelta struct {
	Name    *string  `json:"name,omitempty"`
	Age     *int     `json:"age,omitempty"`
	Gender  *string  `json:"gender,omitempty"`
	AddTags []string `json:"add_tags,omitempty"`
}

type llmExtraction struct {
	Summary      string          `json:"summary"`
	Keywords     []string        `json:"keywords"`
	Emotion      string          `json:"emotion"`
	Importance   float64         `json:"importance"`
	Facts        []llmFact       `json:"facts"`
	ProfileDelta llmProfileDelta `json:"profile_delta"`
}

// LLMExtractor asks an llm.Client to return the extraction as JSON. It
// never retries a schema violation itself — that's withRetry's job one
// layer down in the llm package for transport errors, and the caller's
// job (FallbackExtractor) for content that parses as JSON but isn't
// usable.
type LLMExtractor struct {
	client llm.Client
}

func NewLLMExtractor(client llm.Client) *LLMExtractor {
	return &LLMExtractor{client: client}
}

func (e *LLMExtractor) Extract(ctx context.Context, messages []store.Message, userID string) (*ExtractionResult, error) {
	prompt := buildPrompt(messages)

	raw, err := e.client.Extract(ctx, prompt, extractionSchema)
	if err != nil {
		return nil, err
	}

	var parsed llmExtraction
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: extractor: %w", memerr.ErrSchema, err)
	}

	emotion := store.Emotion(strings.ToLower(strings.TrimSpace(parsed.Emotion)))
	if !validEmotion(emotion) {
		emotion = store.EmotionNeutral
	}

	facts := make([]store.Fact, 0, len(parsed.Facts))
	for _, f := range parsed.Facts {
		if f.Subject == "" || f.Predicate == "" || f.Object == "" {
			continue
		}
		facts = append(facts, store.Fact{
			UserID:     userID,
			Subject:    f.Subject,
			Predicate:  f.Predicate,
			Object:     f.Object,
			Confidence: clip01(f.Confidence),
		})
	}

	return &ExtractionResult{
		Summary:    parsed.Summary,
		Keywords:   parsed.Keywords,
		Emotion:    emotion,
		Importance: clip01(parsed.Importance),
		Facts:      facts,
		ProfileDelta: ProfileDelta{
			Name:    parsed.ProfileDelta.Name,
			Age:     parsed.ProfileDelta.Age,
			Gender:  parsed.ProfileDelta.Gender,
			AddTags: parsed.ProfileDelta.AddTags,
		},
	}, nil
}

func buildPrompt(messages []store.Message) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
	}
	b.WriteString("\nExtract a summary, up to 8 keywords, the dominant emotion, an importance score in [0,1], any new facts about the user, and any profile changes observed.")
	return b.String()
}

func validEmotion(e store.Emotion) bool {
	switch e {
	case store.EmotionHappy, store.EmotionSad, store.EmotionNeutral, store.EmotionScared, store.EmotionAngry, store.EmotionCurious:
		return true
	default:
		return false
	}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
