package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nugget/memoraid/internal/memerr"
)

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	attempts := 0
	err := withRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return memerr.ErrTransientLLM
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryDoesNotRetrySchemaError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	attempts := 0
	err := withRetry(context.Background(), cfg, func() error {
		attempts++
		return memerr.ErrSchema
	})
	if !errors.Is(err, memerr.ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	err := withRetry(context.Background(), cfg, func() error {
		attempts++
		return memerr.ErrTransientLLM
	})
	if !errors.Is(err, memerr.ErrTransientLLM) {
		t.Fatalf("expected ErrTransientLLM, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", attempts)
	}
}

func TestMockClientChatDeterministic(t *testing.T) {
	c := NewMockClient("mock-test")
	ctx := context.Background()
	msgs := []Message{{Role: "user", Content: "hello there"}}

	r1, err := c.Chat(ctx, "", msgs, 100, 0.5)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	r2, err := c.Chat(ctx, "", msgs, 100, 0.5)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if r1.Text != r2.Text {
		t.Errorf("expected deterministic output, got %q and %q", r1.Text, r2.Text)
	}
}

func TestMockClientExtractMatchesSchema(t *testing.T) {
	c := NewMockClient("mock-test")
	schema := Schema{
		Name: "profile_delta",
		JSON: map[string]any{
			"name": map[string]any{"type": "string"},
			"age":  map[string]any{"type": "integer"},
		},
	}
	raw, err := c.Extract(context.Background(), "some dialogue", schema)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected non-empty JSON, got empty")
	}
}
