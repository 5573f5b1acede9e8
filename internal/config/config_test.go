package config

import (
	"os"
	"testing"
)

func validBase() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Router: RouterConfig{
			CatchAll: "general",
			Domains: map[string]DomainConfig{
				"general": {},
				"tax": {
					Patterns:  []PatternConfig{{Text: "tax", Weight: 1.5}},
					Fallbacks: []string{"general"},
				},
			},
		},
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validBase()
	cfg.Model.Budget = BudgetConfig{DailyTokenLimit: 1000000, Action: "invalid_action"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `model.budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	validActions := []string{"", "warn", "reject"}

	for _, action := range validActions {
		t.Run("action="+action, func(t *testing.T) {
			cfg := validBase()
			cfg.Model.Budget = BudgetConfig{Action: action}

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validBase()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingDatabaseAddrs(t *testing.T) {
	cfg := validBase()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_UnknownFallbackDomain(t *testing.T) {
	cfg := validBase()
	d := cfg.Router.Domains["tax"]
	d.Fallbacks = []string{"nonexistent"}
	cfg.Router.Domains["tax"] = d

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown fallback domain")
	}
}

func TestValidate_CatchAllMustBeConfigured(t *testing.T) {
	cfg := validBase()
	cfg.Router.CatchAll = "missing"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unconfigured catch_all domain")
	}
}

func TestValidate_OverrideNeedsPatterns(t *testing.T) {
	cfg := validBase()
	cfg.Router.Overrides = []OverrideConfig{{Name: "self", Domain: "general"}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for override without patterns")
	}
}

func TestValidate_PatternWeightMustBePositive(t *testing.T) {
	cfg := validBase()
	d := cfg.Router.Domains["tax"]
	d.Patterns = []PatternConfig{{Text: "tax", Weight: 0}}
	cfg.Router.Domains["tax"] = d

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive pattern weight")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 120 {
		t.Errorf("expected WriteTimeoutSec=120, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Router.MinConfidence != 0.35 {
		t.Errorf("expected MinConfidence=0.35, got %v", cfg.Router.MinConfidence)
	}
	if cfg.Router.CatchAll != "general" {
		t.Errorf("expected CatchAll=general, got %q", cfg.Router.CatchAll)
	}
	if cfg.Retrieval.DenseWeight != 0.7 || cfg.Retrieval.SparseWeight != 0.3 {
		t.Errorf("expected default weights 0.7/0.3, got %v/%v",
			cfg.Retrieval.DenseWeight, cfg.Retrieval.SparseWeight)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("expected TopK=8, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Reasoning.MaxIterations != 5 {
		t.Errorf("expected MaxIterations=5, got %d", cfg.Reasoning.MaxIterations)
	}
	if cfg.Memory.MaxFactsPerOwner != 256 {
		t.Errorf("expected MaxFactsPerOwner=256, got %d", cfg.Memory.MaxFactsPerOwner)
	}
	if cfg.Cache.TTLSec != 3600 {
		t.Errorf("expected cache TTLSec=3600, got %d", cfg.Cache.TTLSec)
	}
	if cfg.Storage.KeyPrefix != "wayfind:" {
		t.Errorf("expected KeyPrefix=wayfind:, got %q", cfg.Storage.KeyPrefix)
	}
}

func TestApplyDefaults_KeepsExplicitWeights(t *testing.T) {
	cfg := Config{Retrieval: RetrievalConfig{DenseWeight: 0.5, SparseWeight: 0.5}}
	cfg.ApplyDefaults()

	if cfg.Retrieval.DenseWeight != 0.5 || cfg.Retrieval.SparseWeight != 0.5 {
		t.Errorf("explicit weights overwritten: %v/%v",
			cfg.Retrieval.DenseWeight, cfg.Retrieval.SparseWeight)
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("WAYFIND_TEST_VAR", "resolved")
	defer os.Unsetenv("WAYFIND_TEST_VAR")

	got := string(expandEnvVars([]byte("a: ${WAYFIND_TEST_VAR}\nb: ${WAYFIND_MISSING:-fallback}")))
	want := "a: resolved\nb: fallback"
	if got != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", got, want)
	}
}
