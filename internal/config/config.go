// Package config handles memoraid configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/memoraid/config.yaml, /config/config.yaml,
// /etc/memoraid/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "memoraid", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/memoraid/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config is the single closed configuration record for the memory service.
// Every field a component needs flows down from here; there are no
// dynamically-added attributes anywhere in the system.
type Config struct {
	Listen ListenConfig `yaml:"listen"`

	DataDir string `yaml:"data_dir"`
	Debug   DebugConfig `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	// Working memory / episode compression.
	WorkingMemorySize        int `yaml:"working_memory_size"`
	EpisodeCompressThreshold int `yaml:"episode_compress_threshold"`
	EpisodeSummaryMaxLength  int `yaml:"episode_summary_max_length"`

	// Per-user resource caps.
	MaxEpisodesPerUser int `yaml:"max_episodes_per_user"`
	MaxFactsPerUser    int `yaml:"max_facts_per_user"`
	MaxProfileTags     int `yaml:"max_profile_tags"`

	// Forgetter / decay.
	MemoryDecayDays       int     `yaml:"memory_decay_days"`
	MinImportanceThreshold float64 `yaml:"min_importance_threshold"`
	TimeDecayWeight       float64 `yaml:"time_decay_weight"`
	AccessCountWeight     float64 `yaml:"access_count_weight"`

	// Retriever.
	MaxRetrievalResults int     `yaml:"max_retrieval_results"`
	EnableVectorSearch  bool    `yaml:"enable_vector_search"`
	VectorDim           int     `yaml:"vector_dim"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	VectorBackend       string  `yaml:"vector_backend"` // "inprocess" or "qdrant"
	Qdrant              QdrantConfig `yaml:"qdrant"`

	// Manager-level cache.
	EnableCache bool          `yaml:"enable_cache"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`

	// LLM.
	LLM LLMConfig `yaml:"llm"`

	// Embeddings.
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Language used by the rule-based extractor's tokenizer/lexicon.
	Language string `yaml:"language"`

	// PersistMessages enables optional debug retention of raw messages
	// (spec.md §4.1's "PersistMessage (optional; only if debug retention
	// enabled)").
	PersistMessages bool `yaml:"persist_messages"`
}

// ListenConfig defines the HTTP API server settings.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// DebugConfig groups settings useful only for local development.
type DebugConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LLMConfig defines the LLM provider and its retry/timeout policy.
type LLMConfig struct {
	Provider   string        `yaml:"provider"` // openai, zhipu, mock
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// QdrantConfig defines the optional Qdrant vector index backend.
type QdrantConfig struct {
	Address    string `yaml:"address"` // host:port, gRPC
	Collection string `yaml:"collection"`
	UseTLS     bool   `yaml:"use_tls"`
}

// Configured reports whether the LLM provider has the credentials it needs
// to make real network calls. The mock provider is always "configured".
func (c LLMConfig) Configured() bool {
	if c.Provider == "mock" || c.Provider == "" {
		return true
	}
	return c.APIKey != ""
}

// Load reads configuration from a YAML file, expands environment
// variables (so LLM_API_KEY and LLM_BASE_URL can be referenced as
// ${LLM_API_KEY}/${LLM_BASE_URL}), applies defaults, and validates the
// result. After Load returns successfully every field is usable without
// further nil/zero checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with the Balanced preset's
// values. Called automatically by Load.
func (c *Config) applyDefaults() {
	d := Balanced()

	if c.Listen.Port == 0 {
		c.Listen.Port = d.Listen.Port
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.WorkingMemorySize == 0 {
		c.WorkingMemorySize = d.WorkingMemorySize
	}
	if c.EpisodeCompressThreshold == 0 {
		c.EpisodeCompressThreshold = d.EpisodeCompressThreshold
	}
	if c.EpisodeSummaryMaxLength == 0 {
		c.EpisodeSummaryMaxLength = d.EpisodeSummaryMaxLength
	}
	if c.MaxEpisodesPerUser == 0 {
		c.MaxEpisodesPerUser = d.MaxEpisodesPerUser
	}
	if c.MaxFactsPerUser == 0 {
		c.MaxFactsPerUser = d.MaxFactsPerUser
	}
	if c.MaxProfileTags == 0 {
		c.MaxProfileTags = d.MaxProfileTags
	}
	if c.MemoryDecayDays == 0 {
		c.MemoryDecayDays = d.MemoryDecayDays
	}
	if c.MinImportanceThreshold == 0 {
		c.MinImportanceThreshold = d.MinImportanceThreshold
	}
	if c.TimeDecayWeight == 0 {
		c.TimeDecayWeight = d.TimeDecayWeight
	}
	if c.AccessCountWeight == 0 {
		c.AccessCountWeight = d.AccessCountWeight
	}
	if c.MaxRetrievalResults == 0 {
		c.MaxRetrievalResults = d.MaxRetrievalResults
	}
	if c.VectorDim == 0 {
		c.VectorDim = d.VectorDim
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.VectorBackend == "" {
		c.VectorBackend = d.VectorBackend
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = d.LLM.MaxRetries
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = d.LLM.Timeout
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = os.Getenv("LLM_BASE_URL")
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = d.Embeddings.Model
	}
	if c.Language == "" {
		c.Language = d.Language
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.WorkingMemorySize < 1 {
		return fmt.Errorf("working_memory_size must be >= 1, got %d", c.WorkingMemorySize)
	}
	if c.MinImportanceThreshold < 0 || c.MinImportanceThreshold > 1 {
		return fmt.Errorf("min_importance_threshold must be in [0,1], got %v", c.MinImportanceThreshold)
	}
	if c.TimeDecayWeight+c.AccessCountWeight <= 0 {
		return fmt.Errorf("time_decay_weight + access_count_weight must be > 0")
	}
	if c.EnableVectorSearch && c.VectorDim < 1 {
		return fmt.Errorf("vector_dim must be >= 1 when enable_vector_search is set")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	switch c.LLM.Provider {
	case "", "openai", "zhipu", "mock":
	default:
		return fmt.Errorf("unknown llm provider %q (valid: openai, zhipu, mock)", c.LLM.Provider)
	}
	return nil
}
