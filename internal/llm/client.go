package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/nugget/memoraid/internal/memerr"
)

// Client is the unified contract every provider (openai, zhipu, mock)
// satisfies. Callers never see provider-specific types.
type Client interface {
	// Chat sends messages to model and returns the assistant's reply.
	Chat(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (*ChatResponse, error)

	// Extract asks the model to return JSON matching schema. Providers
	// that can't guarantee valid JSON still try, then return
	// memerr.ErrSchema when the result doesn't parse — the caller
	// (internal/extractor) falls back to rule-based extraction on that
	// error, never retries it.
	Extract(ctx context.Context, prompt string, schema Schema) (ExtractResult, error)

	// Ping verifies the provider is reachable and configured correctly.
	Ping(ctx context.Context) error

	// Model returns the model name this client was configured with.
	Model() string
}

// RetryConfig governs the exponential backoff used by provider
// implementations around transient failures (timeouts, 429s, 5xx).
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches spec.md §4.2: base 500ms, doubling, capped at
// 8s, jitter up to 50%.
func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// withRetry runs fn up to cfg.MaxRetries+1 times, sleeping with
// exponential backoff and jitter between attempts. fn must wrap any
// transient failure in memerr.ErrTransientLLM to be retried; any other
// error (notably memerr.ErrSchema) returns immediately, since retrying
// the same malformed prompt just fails the same way again.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, memerr.ErrTransientLLM) || attempt == cfg.MaxRetries {
			return lastErr
		}
		jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
		wait := delay + jitter
		if wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", memerr.ErrCancelled, ctx.Err())
		case <-time.After(wait):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
