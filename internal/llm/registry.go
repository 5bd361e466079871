package llm

import (
	"fmt"
	"log/slog"

	"github.com/nugget/memoraid/internal/config"
)

// New builds the Client named by cfg.Provider. "mock" and "" both select
// MockClient so an unconfigured LLM section degrades to the minimal
// preset's behavior instead of failing to start.
func New(cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "mock":
		return NewMockClient(cfg.Model), nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxRetries, logger), nil
	case "zhipu":
		return NewZhipuClient(cfg.APIKey, cfg.Model, cfg.MaxRetries, logger), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
