package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Generation.HardTimeoutSec != 12 {
		t.Errorf("expected default generation timeout 12, got %d", cfg.Generation.HardTimeoutSec)
	}
	if cfg.Pipeline.DenseWeight != 0.45 || cfg.Pipeline.LexicalWeight != 0.35 || cfg.Pipeline.AttrWeight != 0.20 {
		t.Errorf("unexpected default blend weights: %g/%g/%g",
			cfg.Pipeline.DenseWeight, cfg.Pipeline.LexicalWeight, cfg.Pipeline.AttrWeight)
	}
	if cfg.Pipeline.MMRLambdaText != 0.75 {
		t.Errorf("expected default text MMR lambda 0.75, got %g", cfg.Pipeline.MMRLambdaText)
	}
	if cfg.Pipeline.MMRLambdaVec != 0.55 {
		t.Errorf("expected default vector MMR lambda 0.55, got %g", cfg.Pipeline.MMRLambdaVec)
	}
	if cfg.Pipeline.FuzzyCutoff != 0.84 {
		t.Errorf("expected default fuzzy cutoff 0.84, got %g", cfg.Pipeline.FuzzyCutoff)
	}
	if cfg.Pipeline.VocabTTLSec != 60 {
		t.Errorf("expected default vocab TTL 60s, got %d", cfg.Pipeline.VocabTTLSec)
	}
	if cfg.Database.KeyPrefix != "concierge:" {
		t.Errorf("expected default key prefix, got %q", cfg.Database.KeyPrefix)
	}
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.DenseWeight = 0.5
	cfg.Pipeline.LexicalWeight = 0.5
	cfg.Pipeline.AttrWeight = 0.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for weights not summing to 1")
	}

	cfg.Pipeline.AttrWeight = 0.0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for weights summing to 1: %v", err)
	}
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing addrs", func(c *Config) { c.Database.Addrs = nil }},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"lambda out of range", func(c *Config) { c.Pipeline.MMRLambdaText = 1.5 }},
		{"cutoff out of range", func(c *Config) { c.Pipeline.FuzzyCutoff = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CONCIERGE_TEST_KEY", "secret")

	in := []byte("api_key: ${CONCIERGE_TEST_KEY}\nmodel: ${CONCIERGE_TEST_MODEL:-gpt-4o-mini}\n")
	out := string(expandEnvVars(in))

	if out != "api_key: secret\nmodel: gpt-4o-mini\n" {
		t.Errorf("unexpected expansion result: %q", out)
	}
}
