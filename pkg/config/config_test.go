package config

import (
	"os"
	"testing"
	"time"
)

func TestConfig_UnlimitedMarketLimit(t *testing.T) {
	t.Run("zero_market_limit_allowed", func(t *testing.T) {
		os.Setenv("DISCOVERY_MARKET_LIMIT", "0")
		t.Cleanup(func() {
			os.Unsetenv("DISCOVERY_MARKET_LIMIT")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.DiscoveryMarketLimit != 0 {
			t.Errorf("expected DiscoveryMarketLimit to be 0, got %d", cfg.DiscoveryMarketLimit)
		}
	})

	t.Run("positive_market_limit_allowed", func(t *testing.T) {
		os.Setenv("DISCOVERY_MARKET_LIMIT", "1000")
		t.Cleanup(func() {
			os.Unsetenv("DISCOVERY_MARKET_LIMIT")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.DiscoveryMarketLimit != 1000 {
			t.Errorf("expected DiscoveryMarketLimit to be 1000, got %d", cfg.DiscoveryMarketLimit)
		}
	})
}

func TestConfig_UnlimitedDuration(t *testing.T) {
	t.Run("zero_duration_allowed", func(t *testing.T) {
		os.Setenv("ARB_MAX_MARKET_DURATION", "0")
		t.Cleanup(func() {
			os.Unsetenv("ARB_MAX_MARKET_DURATION")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.MaxMarketDuration != 0 {
			t.Errorf("expected MaxMarketDuration to be 0, got %v", cfg.MaxMarketDuration)
		}
	})

	t.Run("positive_duration_allowed", func(t *testing.T) {
		os.Setenv("ARB_MAX_MARKET_DURATION", "24h")
		t.Cleanup(func() {
			os.Unsetenv("ARB_MAX_MARKET_DURATION")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.MaxMarketDuration != 24*time.Hour {
			t.Errorf("expected MaxMarketDuration to be 24h, got %v", cfg.MaxMarketDuration)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		c, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected a valid base config, got %v", err)
		}
		return c
	}

	t.Run("rejects_empty_http_port", func(t *testing.T) {
		cfg := valid()
		cfg.HTTPPort = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected an error for empty HTTPPort")
		}
	})

	t.Run("rejects_out_of_range_spread_threshold", func(t *testing.T) {
		cfg := valid()
		cfg.GabagoolMinSpreadThreshold = 1.5
		if err := cfg.Validate(); err == nil {
			t.Error("expected an error for spread threshold >= 1.0")
		}
	})

	t.Run("rejects_unknown_execution_mode", func(t *testing.T) {
		cfg := valid()
		cfg.ExecutionMode = "yolo"
		if err := cfg.Validate(); err == nil {
			t.Error("expected an error for an unrecognized execution mode")
		}
	})

	t.Run("rejects_alert_after_failures_above_max_attempts", func(t *testing.T) {
		cfg := valid()
		cfg.SettlementMaxClaimAttempts = 2
		cfg.SettlementAlertAfterFailures = 5
		if err := cfg.Validate(); err == nil {
			t.Error("expected an error when alert_after_failures exceeds max_claim_attempts")
		}
	})

	t.Run("rejects_unknown_storage_mode", func(t *testing.T) {
		cfg := valid()
		cfg.StorageMode = "sqlite"
		if err := cfg.Validate(); err == nil {
			t.Error("expected an error for an unrecognized storage mode")
		}
	})

	t.Run("accepts_defaults", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected the default config to validate, got %v", err)
		}
	})
}

func TestConfig_GabagoolMarketsParsing(t *testing.T) {
	os.Setenv("STRATEGIES_GABAGOOL_MARKETS", "market-a,market-b, market-c")
	t.Cleanup(func() {
		os.Unsetenv("STRATEGIES_GABAGOOL_MARKETS")
	})

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(cfg.GabagoolMarkets) != 3 {
		t.Fatalf("expected 3 markets, got %d: %v", len(cfg.GabagoolMarkets), cfg.GabagoolMarkets)
	}
}
