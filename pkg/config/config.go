package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string
	DryRun   bool // mercury.dry_run

	// Polymarket API
	PolymarketWSURL      string
	PolymarketGammaURL   string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketAddress    string
	PolymarketProxyAddr  string
	PolymarketSigType    int
	PolymarketPrivateKey string

	// Market Discovery
	DiscoveryPollInterval time.Duration
	DiscoveryMarketLimit  int
	MaxMarketDuration     time.Duration // Only subscribe to markets expiring within this duration

	// WebSocket
	WSPoolSize              int // Number of WebSocket connections (default: 20)
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// market_data.*
	MarketDataStaleThreshold    time.Duration
	MarketDataStaleCheckInterval time.Duration

	// strategies.gabagool.*
	GabagoolEnabled              bool
	GabagoolMarkets              []string
	GabagoolMinSpreadThreshold   float64
	GabagoolMaxTradeSizeUSD      float64
	GabagoolMinTimeRemaining     time.Duration
	GabagoolMinHedgeRatio        float64
	GabagoolCriticalHedgeRatio   float64
	GabagoolSignalCooldown       time.Duration
	GabagoolBalanceSizingEnabled bool
	GabagoolBalanceSizingPct     float64
	GabagoolGradualEntryMinSpread float64
	GabagoolGradualEntryTranches int

	// risk.* / circuit_breaker.*
	RiskMaxExposureUSD       float64
	RiskMaxMarketExposureUSD float64
	RiskMaxDailyLoss         float64
	RiskMaxDailyTrades       int
	RiskMinTimeRemaining     time.Duration
	RiskWarningFailures      int
	RiskCautionFailures      int
	RiskHaltFailures         int

	// execution.*
	ExecutionMode                 string // "paper", "live", or "dry-run" -- superseded by DryRun for new tunables
	ExecutionMaxConcurrent         int
	ExecutionMaxQueueSize          int
	ExecutionQueueTimeout          time.Duration
	ExecutionOrderTimeout          time.Duration
	ExecutionRebalancePartialFills bool
	ExecutionMinHedgeRatio         float64
	ExecutionMaxUnwindSlippage     float64

	// settlement.*
	SettlementCheckInterval        time.Duration
	SettlementResolutionWait       time.Duration
	SettlementMaxClaimAttempts     int
	SettlementRetryInitialDelay    time.Duration
	SettlementRetryMaxDelay        time.Duration
	SettlementRetryExponentialBase float64
	SettlementRetryJitter          bool
	SettlementAlertAfterFailures   int

	// On-chain redemption
	CTFContractAddress string
	USDCAddress        string
	PolygonRPCURL      string
	PolygonChainID     int64
	RedemptionGasLimit uint64

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		DryRun:   getBoolOrDefault("MERCURY_DRY_RUN", true),

		// Polymarket API defaults
		PolymarketWSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketAddress:    os.Getenv("POLYMARKET_ADDRESS"),
		PolymarketProxyAddr:  os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		PolymarketSigType:    getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),

		// Market Discovery defaults
		DiscoveryPollInterval: getDurationOrDefault("DISCOVERY_POLL_INTERVAL", 30*time.Second),
		DiscoveryMarketLimit:  getIntOrDefault("DISCOVERY_MARKET_LIMIT", 1000),
		MaxMarketDuration:     getDurationOrDefault("ARB_MAX_MARKET_DURATION", 0), // 0 = unlimited

		// WebSocket defaults
		WSPoolSize:              getIntOrDefault("WS_POOL_SIZE", 20),
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 10000),

		// market_data.* defaults
		MarketDataStaleThreshold:     getDurationOrDefault("MARKET_DATA_STALE_THRESHOLD_SECONDS", 30*time.Second),
		MarketDataStaleCheckInterval: getDurationOrDefault("MARKET_DATA_STALE_CHECK_INTERVAL", 10*time.Second),

		// strategies.gabagool.* defaults
		GabagoolEnabled:               getBoolOrDefault("STRATEGIES_GABAGOOL_ENABLED", true),
		GabagoolMarkets:               nil, // empty = all registered markets
		GabagoolMinSpreadThreshold:    getFloat64OrDefault("STRATEGIES_GABAGOOL_MIN_SPREAD_THRESHOLD", 0.015),
		GabagoolMaxTradeSizeUSD:       getFloat64OrDefault("STRATEGIES_GABAGOOL_MAX_TRADE_SIZE_USD", 100.0),
		GabagoolMinTimeRemaining:      getDurationOrDefault("STRATEGIES_GABAGOOL_MIN_TIME_REMAINING", time.Hour),
		GabagoolMinHedgeRatio:         getFloat64OrDefault("STRATEGIES_GABAGOOL_MIN_HEDGE_RATIO", 0.80),
		GabagoolCriticalHedgeRatio:    getFloat64OrDefault("STRATEGIES_GABAGOOL_CRITICAL_HEDGE_RATIO", 0.60),
		GabagoolSignalCooldown:        getDurationOrDefault("STRATEGIES_GABAGOOL_SIGNAL_COOLDOWN", 10*time.Second),
		GabagoolBalanceSizingEnabled:  getBoolOrDefault("STRATEGIES_GABAGOOL_BALANCE_SIZING_ENABLED", false),
		GabagoolBalanceSizingPct:      getFloat64OrDefault("STRATEGIES_GABAGOOL_BALANCE_SIZING_PCT", 0.10),
		GabagoolGradualEntryMinSpread: getFloat64OrDefault("STRATEGIES_GABAGOOL_GRADUAL_ENTRY_MIN_SPREAD", 0.03),
		GabagoolGradualEntryTranches:  getIntOrDefault("STRATEGIES_GABAGOOL_GRADUAL_ENTRY_TRANCHES", 1),

		// risk.* defaults
		RiskMaxExposureUSD:       getFloat64OrDefault("RISK_MAX_EXPOSURE_USD", 1000.0),
		RiskMaxMarketExposureUSD: getFloat64OrDefault("RISK_MAX_MARKET_EXPOSURE_USD", 250.0),
		RiskMaxDailyLoss:         getFloat64OrDefault("RISK_MAX_DAILY_LOSS", 200.0),
		RiskMaxDailyTrades:       getIntOrDefault("RISK_MAX_DAILY_TRADES", 200),
		RiskMinTimeRemaining:     getDurationOrDefault("RISK_MIN_TIME_REMAINING", time.Hour),
		RiskWarningFailures:      getIntOrDefault("RISK_CIRCUIT_BREAKER_WARNING_FAILURES", 3),
		RiskCautionFailures:      getIntOrDefault("RISK_CIRCUIT_BREAKER_CAUTION_FAILURES", 6),
		RiskHaltFailures:         getIntOrDefault("RISK_CIRCUIT_BREAKER_HALT_FAILURES", 10),

		// execution.* defaults
		ExecutionMode:                  getEnvOrDefault("EXECUTION_MODE", "paper"),
		ExecutionMaxConcurrent:         getIntOrDefault("EXECUTION_MAX_CONCURRENT", 3),
		ExecutionMaxQueueSize:          getIntOrDefault("EXECUTION_MAX_QUEUE_SIZE", 100),
		ExecutionQueueTimeout:          getDurationOrDefault("EXECUTION_QUEUE_TIMEOUT_SECONDS", 60*time.Second),
		ExecutionOrderTimeout:          getDurationOrDefault("EXECUTION_ORDER_TIMEOUT_SECONDS", 15*time.Second),
		ExecutionRebalancePartialFills: getBoolOrDefault("EXECUTION_REBALANCE_PARTIAL_FILLS", true),
		ExecutionMinHedgeRatio:         getFloat64OrDefault("EXECUTION_MIN_HEDGE_RATIO", 0.80),
		ExecutionMaxUnwindSlippage:     getFloat64OrDefault("EXECUTION_MAX_UNWIND_SLIPPAGE", 0.02),

		// settlement.* defaults
		SettlementCheckInterval:        getDurationOrDefault("SETTLEMENT_CHECK_INTERVAL_SECONDS", 300*time.Second),
		SettlementResolutionWait:       getDurationOrDefault("SETTLEMENT_RESOLUTION_WAIT_SECONDS", 600*time.Second),
		SettlementMaxClaimAttempts:     getIntOrDefault("SETTLEMENT_MAX_CLAIM_ATTEMPTS", 5),
		SettlementRetryInitialDelay:    getDurationOrDefault("SETTLEMENT_RETRY_INITIAL_DELAY_SECONDS", 60*time.Second),
		SettlementRetryMaxDelay:        getDurationOrDefault("SETTLEMENT_RETRY_MAX_DELAY_SECONDS", 3600*time.Second),
		SettlementRetryExponentialBase: getFloat64OrDefault("SETTLEMENT_RETRY_EXPONENTIAL_BASE", 2.0),
		SettlementRetryJitter:          getBoolOrDefault("SETTLEMENT_RETRY_JITTER", true),
		SettlementAlertAfterFailures:   getIntOrDefault("SETTLEMENT_ALERT_AFTER_FAILURES", 3),

		// On-chain redemption defaults
		CTFContractAddress: getEnvOrDefault("CTF_CONTRACT_ADDRESS", "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
		USDCAddress:        getEnvOrDefault("USDC_CONTRACT_ADDRESS", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		PolygonRPCURL:      getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		PolygonChainID:     int64(getIntOrDefault("POLYGON_CHAIN_ID", 137)),
		RedemptionGasLimit: uint64(getIntOrDefault("REDEMPTION_GAS_LIMIT", 200000)),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "mercury"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "mercury123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "mercury"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	if markets := os.Getenv("STRATEGIES_GABAGOOL_MARKETS"); markets != "" {
		cfg.GabagoolMarkets = splitCommaList(markets)
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() (err error) {
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}

	if c.PolymarketWSURL == "" {
		return errors.New("POLYMARKET_WS_URL cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return errors.New("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	if c.GabagoolMinSpreadThreshold <= 0 || c.GabagoolMinSpreadThreshold >= 1.0 {
		return fmt.Errorf("STRATEGIES_GABAGOOL_MIN_SPREAD_THRESHOLD must be between 0 and 1.0, got %f", c.GabagoolMinSpreadThreshold)
	}

	if c.ExecutionMode != "paper" && c.ExecutionMode != "live" && c.ExecutionMode != "dry-run" {
		return fmt.Errorf("EXECUTION_MODE must be 'paper', 'live', or 'dry-run', got %q", c.ExecutionMode)
	}

	if c.GabagoolMaxTradeSizeUSD <= 0 {
		return fmt.Errorf("STRATEGIES_GABAGOOL_MAX_TRADE_SIZE_USD must be positive, got %f", c.GabagoolMaxTradeSizeUSD)
	}

	// Validate market filtering configuration
	if c.MaxMarketDuration < 0 {
		return fmt.Errorf("ARB_MAX_MARKET_DURATION must be non-negative (0 = unlimited), got %s", c.MaxMarketDuration)
	}

	if c.DiscoveryMarketLimit < 0 {
		return fmt.Errorf("DISCOVERY_MARKET_LIMIT must be non-negative (0 = unlimited), got %d", c.DiscoveryMarketLimit)
	}

	// Validate WebSocket pool configuration
	if c.WSPoolSize < 1 {
		return fmt.Errorf("WS_POOL_SIZE must be at least 1, got %d", c.WSPoolSize)
	}

	if c.WSPoolSize > 20 {
		return fmt.Errorf("WS_POOL_SIZE must not exceed 20, got %d", c.WSPoolSize)
	}

	if c.ExecutionMaxConcurrent < 1 {
		return fmt.Errorf("EXECUTION_MAX_CONCURRENT must be at least 1, got %d", c.ExecutionMaxConcurrent)
	}

	if c.SettlementMaxClaimAttempts < 1 {
		return fmt.Errorf("SETTLEMENT_MAX_CLAIM_ATTEMPTS must be at least 1, got %d", c.SettlementMaxClaimAttempts)
	}

	if c.SettlementAlertAfterFailures > c.SettlementMaxClaimAttempts {
		return fmt.Errorf("SETTLEMENT_ALERT_AFTER_FAILURES (%d) must be <= SETTLEMENT_MAX_CLAIM_ATTEMPTS (%d)",
			c.SettlementAlertAfterFailures, c.SettlementMaxClaimAttempts)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

func splitCommaList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}
