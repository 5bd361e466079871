// Package extractor turns a session's dialogue into the durable record
// spec.md §3 calls an episode: a summary, keywords, an emotion tag, an
// importance score, zero or more facts, and an optional profile delta.
// Two independent implementations produce the same ExtractionResult
// shape — an LLM-backed one and a deterministic rule-based one — so the
// rest of the system never has to know which one ran.
package extractor

import "github.com/nugget/memoraid/internal/store"

// ExtractionResult is what one extraction pass produces from a session's
// messages. Facts carry no ID/CreatedAt/LastSeenAt — the caller
// (internal/manager) fills those in before handing them to storage.
type ExtractionResult struct {
	Summary      string
	Keywords     []string
	Emotion      store.Emotion
	Importance   float64
	Facts        []store.Fact
	ProfileDelta ProfileDelta
}

// ProfileDelta is the subset of a user's profile this extraction
// observed changing. Nil pointer fields mean "unchanged" — distinct from
// an empty string, which would overwrite a known value with nothing.
type ProfileDelta struct {
	Name    *string
	Age     *int
	Gender  *string
	AddTags []string
}

// Empty reports whether the delta carries no observations at all.
func (d ProfileDelta) Empty() bool {
	return d.Name == nil && d.Age == nil && d.Gender == nil && len(d.AddTags) == 0
}
