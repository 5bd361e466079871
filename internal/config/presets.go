package config

import "time"

// Minimal returns a configuration tuned for the smallest footprint: no
// vector search, no cache, the deterministic mock LLM provider, tight
// per-user caps. Suitable for embedded-device demos and the test suite.
func Minimal() *Config {
	cfg := &Config{
		Listen:                   ListenConfig{Port: 8080},
		DataDir:                  "./data",
		WorkingMemorySize:        5,
		EpisodeCompressThreshold: 3,
		EpisodeSummaryMaxLength:  200,
		MaxEpisodesPerUser:       20,
		MaxFactsPerUser:          50,
		MaxProfileTags:           10,
		MemoryDecayDays:          14,
		MinImportanceThreshold:   0.25,
		TimeDecayWeight:          0.7,
		AccessCountWeight:        0.3,
		MaxRetrievalResults:      3,
		EnableVectorSearch:       false,
		VectorDim:                0,
		SimilarityThreshold:      0,
		VectorBackend:            "inprocess",
		EnableCache:              false,
		CacheTTL:                 0,
		LLM: LLMConfig{
			Provider:   "mock",
			MaxRetries: 1,
			Timeout:    5 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Enabled: false,
			Model:   "nomic-embed-text",
		},
		Language: "zh",
	}
	return cfg
}

// Balanced returns the default-of-defaults configuration: moderate caps,
// keyword retrieval, the in-process cosine vector backend available but
// not forced on, cache enabled with a short TTL. This is what applyDefaults
// falls back to for any field left unset in a loaded config file.
func Balanced() *Config {
	cfg := &Config{
		Listen:                   ListenConfig{Port: 8080},
		DataDir:                  "./data",
		WorkingMemorySize:        10,
		EpisodeCompressThreshold: 5,
		EpisodeSummaryMaxLength:  400,
		MaxEpisodesPerUser:       200,
		MaxFactsPerUser:          500,
		MaxProfileTags:           30,
		MemoryDecayDays:          30,
		MinImportanceThreshold:   0.2,
		TimeDecayWeight:          0.7,
		AccessCountWeight:        0.3,
		MaxRetrievalResults:      5,
		EnableVectorSearch:       false,
		VectorDim:                768,
		SimilarityThreshold:      0.3,
		VectorBackend:            "inprocess",
		EnableCache:              true,
		CacheTTL:                 2 * time.Minute,
		LLM: LLMConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			MaxRetries: 3,
			Timeout:    20 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Enabled: true,
			Model:   "nomic-embed-text",
		},
		Language: "zh",
	}
	return cfg
}

// FullFeatured returns a configuration that turns on every optional
// subsystem: vector search against a Qdrant backend, the retrieval cache,
// generous caps, and more aggressive LLM retry behavior. Intended for a
// production deployment with a real embedding/vector stack available.
func FullFeatured() *Config {
	cfg := Balanced()
	cfg.MaxEpisodesPerUser = 1000
	cfg.MaxFactsPerUser = 2000
	cfg.MaxProfileTags = 60
	cfg.MaxRetrievalResults = 10
	cfg.EnableVectorSearch = true
	cfg.VectorBackend = "qdrant"
	cfg.Qdrant = QdrantConfig{
		Address:    "localhost:6334",
		Collection: "memoraid_episodes",
	}
	cfg.EnableCache = true
	cfg.CacheTTL = 5 * time.Minute
	cfg.LLM.MaxRetries = 5
	cfg.LLM.Timeout = 30 * time.Second
	return cfg
}
