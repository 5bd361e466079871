package extractor

import (
	"context"

	"github.com/nugget/memoraid/internal/store"
)

// Extractor produces an ExtractionResult from one session's messages.
// Implementations must be pure: no storage writes, no side effects
// beyond the LLM/rule computation itself.
type Extractor interface {
	Extract(ctx context.Context, messages []store.Message, userID string) (*ExtractionResult, error)
}
