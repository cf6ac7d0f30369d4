package config

import (
	"testing"
	"time"
)

func TestLoadPortsByService(t *testing.T) {
	tests := []struct {
		service     string
		httpPort    string
		metricsPort string
	}{
		{"escrow-service", "8083", "9099"},
		{"wallet-service", "8082", "9098"},
		{"bet-events-worker", "", "9097"},
		{"api-gateway", "8000", "9094"},
		{"bet-simulator", "", "9096"},
		{"", "8080", "9095"},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			t.Setenv("SERVICE_NAME", tt.service)
			cfg := Load()
			if cfg.HTTPPort != tt.httpPort || cfg.MetricsPort != tt.metricsPort {
				t.Errorf("ports = %q/%q, want %q/%q", cfg.HTTPPort, cfg.MetricsPort, tt.httpPort, tt.metricsPort)
			}
		})
	}
}

func TestLoadEscrowSettings(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("STAKE_CAPACITY", "32")
	t.Setenv("BET_CACHE_TTL", "90")
	t.Setenv("AUTH_MAX_SKEW", "2m")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg := Load()
	if cfg.StakeCapacity != 32 {
		t.Errorf("StakeCapacity = %d", cfg.StakeCapacity)
	}
	if cfg.BetCacheTTL != 90*time.Second {
		t.Errorf("BetCacheTTL = %v", cfg.BetCacheTTL)
	}
	if cfg.AuthMaxSkew != 2*time.Minute {
		t.Errorf("AuthMaxSkew = %v", cfg.AuthMaxSkew)
	}
	if cfg.AuthDisabled {
		t.Error("auth must default to enabled outside local")
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if b := cfg.Brokers(); len(b) != 2 || b[1] != "b:9092" {
		t.Errorf("Brokers = %v", b)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("STAKE_CAPACITY", "ten")
	t.Setenv("AUTH_DISABLED", "maybe")
	t.Setenv("ENV", "local")

	cfg := Load()
	if cfg.StakeCapacity != 10 {
		t.Errorf("StakeCapacity = %d, want default", cfg.StakeCapacity)
	}
	if !cfg.AuthDisabled {
		t.Error("local env should default to auth disabled")
	}
}
