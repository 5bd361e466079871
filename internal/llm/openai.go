package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/nugget/memoraid/internal/httpkit"
	"github.com/nugget/memoraid/internal/memerr"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	sdk    sdk.Client
	model  string
	retry  RetryConfig
	logger *slog.Logger
}

// NewOpenAIClient builds an OpenAIClient. baseURL may be empty to use
// OpenAI's default endpoint, or point at any OpenAI-compatible server.
func NewOpenAIClient(apiKey, baseURL, model string, maxRetries int, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, option.WithHTTPClient(httpkit.NewClient()))

	return &OpenAIClient{
		sdk:    sdk.NewClient(opts...),
		model:  model,
		retry:  DefaultRetryConfig(maxRetries),
		logger: logger.With("provider", "openai", "model", model),
	}
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (*ChatResponse, error) {
	if model == "" {
		model = c.model
	}

	var resp *ChatResponse
	err := withRetry(ctx, c.retry, func() error {
		params := sdk.ChatCompletionNewParams{
			Model:    sdk.ChatModel(model),
			Messages: toOpenAIMessages(messages),
		}
		if maxTokens > 0 {
			params.MaxTokens = sdk.Int(int64(maxTokens))
		}
		if temperature > 0 {
			params.Temperature = sdk.Float(temperature)
		}

		comp, err := c.sdk.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("%w: openai chat: %w", memerr.ErrTransientLLM, err)
		}
		if len(comp.Choices) == 0 {
			return fmt.Errorf("%w: openai chat: empty choices", memerr.ErrTransientLLM)
		}

		choice := comp.Choices[0]
		resp = &ChatResponse{
			Model:        comp.Model,
			Text:         choice.Message.Content,
			InputTokens:  int(comp.Usage.PromptTokens),
			OutputTokens: int(comp.Usage.CompletionTokens),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("chat complete", "input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens)
	return resp, nil
}

// Extract asks for a JSON object matching schema via the chat completions
// JSON-object response format, then validates the result parses.
func (c *OpenAIClient) Extract(ctx context.Context, prompt string, schema Schema) (ExtractResult, error) {
	var raw json.RawMessage
	err := withRetry(ctx, c.retry, func() error {
		params := sdk.ChatCompletionNewParams{
			Model: sdk.ChatModel(c.model),
			Messages: []sdk.ChatCompletionMessageParamUnion{
				sdk.SystemMessage(fmt.Sprintf("You extract structured data as JSON matching this schema (%s): %s. Respond with JSON only, no prose.", schema.Name, schema.Description)),
				sdk.UserMessage(prompt),
			},
			ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
			},
			Temperature: sdk.Float(0.2),
		}

		comp, err := c.sdk.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("%w: openai extract: %w", memerr.ErrTransientLLM, err)
		}
		if len(comp.Choices) == 0 {
			return fmt.Errorf("%w: openai extract: empty choices", memerr.ErrTransientLLM)
		}

		content := comp.Choices[0].Message.Content
		if !json.Valid([]byte(content)) {
			return fmt.Errorf("%w: openai extract: response is not valid JSON", memerr.ErrSchema)
		}
		raw = json.RawMessage(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *OpenAIClient) Ping(ctx context.Context) error {
	_, err := c.sdk.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: openai ping: %w", memerr.ErrTransientLLM, err)
	}
	return nil
}

func toOpenAIMessages(messages []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}
