package config_test

import (
	"testing"

	"github.com/williamberman/FlexFlow/config"
)

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader("yaml", []byte(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Epochs != 1 {
		t.Errorf("expected default epochs 1, got %d", cfg.Epochs)
	}
	if cfg.BatchSize != 64 {
		t.Errorf("expected default batchSize 64, got %d", cfg.BatchSize)
	}
	if cfg.SearchAlpha != 1.2 {
		t.Errorf("expected default search_alpha 1.2, got %f", cfg.SearchAlpha)
	}
	if !cfg.EnableControlReplication {
		t.Errorf("expected enable_control_replication to default true")
	}
	if cfg.PerformFusion {
		t.Errorf("expected perform_fusion to default false")
	}
}

func TestLoadFromReaderOverridesDefaults(t *testing.T) {
	yaml := []byte(`
epochs: 5
batchSize: 128
perform_fusion: true
search_budget: 1000
`)
	cfg, err := config.LoadFromReader("yaml", yaml)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Epochs != 5 {
		t.Errorf("expected epochs 5, got %d", cfg.Epochs)
	}
	if cfg.BatchSize != 128 {
		t.Errorf("expected batchSize 128, got %d", cfg.BatchSize)
	}
	if !cfg.PerformFusion {
		t.Errorf("expected perform_fusion true")
	}
	if cfg.SearchBudget != 1000 {
		t.Errorf("expected search_budget 1000, got %d", cfg.SearchBudget)
	}
}

func TestValidateRejectsNonPositiveEpochs(t *testing.T) {
	yaml := []byte("epochs: 0\n")
	if _, err := config.LoadFromReader("yaml", yaml); err == nil {
		t.Fatalf("expected Load to reject epochs: 0")
	}
}

func TestValidateRejectsNegativeSearchBudget(t *testing.T) {
	yaml := []byte("search_budget: -1\n")
	if _, err := config.LoadFromReader("yaml", yaml); err == nil {
		t.Fatalf("expected Load to reject a negative search_budget")
	}
}
