package extractor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

// FallbackExtractor tries primary first and falls back to secondary when
// primary fails with ErrSchema or ErrTransientLLM — the two failure
// modes that mean "this extraction attempt produced nothing usable",
// as opposed to a cancelled context, which is propagated unchanged.
type FallbackExtractor struct {
	primary   Extractor
	secondary Extractor
	logger    *slog.Logger
}

func NewFallbackExtractor(primary, secondary Extractor, logger *slog.Logger) *FallbackExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackExtractor{primary: primary, secondary: secondary, logger: logger}
}

func (e *FallbackExtractor) Extract(ctx context.Context, messages []store.Message, userID string) (*ExtractionResult, error) {
	result, err := e.primary.Extract(ctx, messages, userID)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, memerr.ErrCancelled) {
		return nil, err
	}
	if !errors.Is(err, memerr.ErrSchema) && !errors.Is(err, memerr.ErrTransientLLM) {
		return nil, err
	}

	e.logger.Warn("primary extractor failed, falling back", "user_id", userID, "error", err)
	return e.secondary.Extract(ctx, messages, userID)
}
