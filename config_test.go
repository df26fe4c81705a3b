package goSyncAuth

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with secret",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "short secret",
			mutate: func(c *Config) {
				c.Token.Secret = []byte("too-short")
			},
			wantValid: false,
		},
		{
			name: "zero lifetime",
			mutate: func(c *Config) {
				c.Token.Lifetime = 0
			},
			wantValid: false,
		},
		{
			name: "previous keys without key id",
			mutate: func(c *Config) {
				c.Token.PreviousKeys = map[string][]byte{"old": []byte("fedcba9876543210fedcba9876543210")}
			},
			wantValid: false,
		},
		{
			name: "rotation with key id",
			mutate: func(c *Config) {
				c.Token.KeyID = "current"
				c.Token.PreviousKeys = map[string][]byte{"old": []byte("fedcba9876543210fedcba9876543210")}
			},
			wantValid: true,
		},
		{
			name: "scope with separator",
			mutate: func(c *Config) {
				c.Session.Scope = "a:b"
			},
			wantValid: false,
		},
		{
			name: "claim ttl longer than token",
			mutate: func(c *Config) {
				c.Session.ClaimTTL = 7 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "store timeout zero",
			mutate: func(c *Config) {
				c.Timeouts.Store = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Token.KeyID = "current"
	cfg.Token.PreviousKeys = map[string][]byte{"old": []byte("fedcba9876543210fedcba9876543210")}

	out := cloneConfig(cfg)
	cfg.Token.Secret[0] = 'X'
	cfg.Token.PreviousKeys["old"][0] = 'X'

	if out.Token.Secret[0] == 'X' || out.Token.PreviousKeys["old"][0] == 'X' {
		t.Fatal("cloneConfig must deep-copy key material")
	}
}
