package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nugget/memoraid/internal/httpkit"
	"github.com/nugget/memoraid/internal/memerr"
)

// zhipuAPIURL is Zhipu/BigModel's OpenAI-compatible chat completions
// endpoint. No Go SDK for this provider exists in the wider ecosystem, so
// ZhipuClient speaks the wire protocol directly, the same way the rest of
// this package's providers do for APIs without an official client.
const zhipuAPIURL = "https://open.bigmodel.cn/api/paas/v4/chat/completions"

// ZhipuClient is a raw-HTTP client for Zhipu's GLM chat completions API.
type ZhipuClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewZhipuClient builds a ZhipuClient.
func NewZhipuClient(apiKey, model string, maxRetries int, logger *slog.Logger) *ZhipuClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZhipuClient{
		apiKey:     apiKey,
		model:      model,
		httpClient: httpkit.NewClient(),
		retry:      DefaultRetryConfig(maxRetries),
		logger:     logger.With("provider", "zhipu", "model", model),
	}
}

func (c *ZhipuClient) Model() string { return c.model }

type zhipuMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type zhipuRequest struct {
	Model       string         `json:"model"`
	Messages    []zhipuMessage `json:"messages"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
}

type zhipuResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *ZhipuClient) Chat(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (*ChatResponse, error) {
	if model == "" {
		model = c.model
	}

	var resp *ChatResponse
	err := withRetry(ctx, c.retry, func() error {
		req := zhipuRequest{
			Model:       model,
			Messages:    toZhipuMessages(messages),
			MaxTokens:   maxTokens,
			Temperature: temperature,
		}
		body, err := c.do(ctx, req)
		if err != nil {
			return err
		}
		if len(body.Choices) == 0 {
			return fmt.Errorf("%w: zhipu chat: empty choices", memerr.ErrTransientLLM)
		}
		resp = &ChatResponse{
			Model:        body.Model,
			Text:         body.Choices[0].Message.Content,
			InputTokens:  body.Usage.PromptTokens,
			OutputTokens: body.Usage.CompletionTokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *ZhipuClient) Extract(ctx context.Context, prompt string, schema Schema) (ExtractResult, error) {
	var raw json.RawMessage
	err := withRetry(ctx, c.retry, func() error {
		req := zhipuRequest{
			Model: c.model,
			Messages: []zhipuMessage{
				{Role: "system", Content: fmt.Sprintf("You extract structured data as JSON matching this schema (%s): %s. Respond with JSON only, no prose, no markdown fences.", schema.Name, schema.Description)},
				{Role: "user", Content: prompt},
			},
			Temperature: 0.2,
		}
		body, err := c.do(ctx, req)
		if err != nil {
			return err
		}
		if len(body.Choices) == 0 {
			return fmt.Errorf("%w: zhipu extract: empty choices", memerr.ErrTransientLLM)
		}
		content := body.Choices[0].Message.Content
		if !json.Valid([]byte(content)) {
			return fmt.Errorf("%w: zhipu extract: response is not valid JSON", memerr.ErrSchema)
		}
		raw = json.RawMessage(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *ZhipuClient) Ping(ctx context.Context) error {
	_, err := c.Chat(ctx, c.model, []Message{{Role: "user", Content: "ping"}}, 1, 0)
	return err
}

func (c *ZhipuClient) do(ctx context.Context, req zhipuRequest) (*zhipuResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, zhipuAPIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: zhipu request: %w", memerr.ErrTransientLLM, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: zhipu API error %d: %s", memerr.ErrTransientLLM, resp.StatusCode, errBody)
		}
		return nil, fmt.Errorf("zhipu API error %d: %s", resp.StatusCode, errBody)
	}

	var out zhipuResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", memerr.ErrTransientLLM, err)
	}
	return &out, nil
}

func toZhipuMessages(messages []Message) []zhipuMessage {
	out := make([]zhipuMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, zhipuMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
