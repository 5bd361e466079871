package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPresetsValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"minimal", Minimal()},
		{"balanced", Balanced()},
		{"full_featured", FullFeatured()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err != nil {
				t.Fatalf("preset %s failed validation: %v", tc.name, err)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("working_memory_size: 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkingMemorySize != 20 {
		t.Errorf("expected explicit working_memory_size=20, got %d", cfg.WorkingMemorySize)
	}
	if cfg.MaxEpisodesPerUser != Balanced().MaxEpisodesPerUser {
		t.Errorf("expected default max_episodes_per_user to come from Balanced preset")
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Listen.Port)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Minimal()
	cfg.Listen.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}
}

func TestValidateRejectsVectorSearchWithoutDim(t *testing.T) {
	cfg := Minimal()
	cfg.EnableVectorSearch = true
	cfg.VectorDim = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enable_vector_search with vector_dim=0")
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}
