package cmd

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/internal/settlement"
	"github.com/mselser95/mercury/internal/statestore"
	"github.com/mselser95/mercury/pkg/cache"
	"github.com/mselser95/mercury/pkg/config"
	"github.com/mselser95/mercury/pkg/marketinfo"
	"github.com/mselser95/mercury/pkg/redemption"
)

//nolint:gochecknoglobals // Cobra boilerplate
var redeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Sweep settled positions and claim winnings on-chain",
	Long: `Runs a single pass of the settlement manager's claim-check cycle: reads
pending positions from the configured store, checks each market's
resolution state, and calls redeemPositions on the CTF contract for every
queued position whose market has resolved.

This exercises the same settlement.Manager the background engine runs on
a timer (mercury.settlement.check_interval), as a one-shot CLI command for
manual sweeps or cron-driven invocation. Respects MERCURY_DRY_RUN.`,
	RunE: runRedeem,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(redeemCmd)
}

func runRedeem(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found\n")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := redeemStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("setup store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	marketInfoCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1e5,
		MaxCost:     1 << 23,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("setup market-info cache: %w", err)
	}
	marketInfoClient := marketinfo.New(cfg.PolymarketGammaURL, marketInfoCache, logger)

	ctx := cmd.Context()

	var redeemClient settlement.RedemptionClient
	if !cfg.DryRun {
		redeemClient, err = redemption.New(ctx, redemption.Config{
			RPCURL:             cfg.PolygonRPCURL,
			PrivateKeyHex:      cfg.PolymarketPrivateKey,
			CTFContractAddress: cfg.CTFContractAddress,
			CollateralAddress:  cfg.USDCAddress,
			ChainID:            cfg.PolygonChainID,
			GasLimit:           cfg.RedemptionGasLimit,
			Logger:             logger,
		})
		if err != nil {
			return fmt.Errorf("setup redemption client: %w", err)
		}
	}

	mgr := settlement.New(settlement.Config{
		Logger:               logger,
		Bus:                  eventbus.New(logger),
		Store:                store,
		MarketInfo:           marketInfoClient,
		Redemption:           redeemClient,
		DryRun:               cfg.DryRun,
		CheckInterval:        cfg.SettlementCheckInterval,
		ResolutionWait:       cfg.SettlementResolutionWait,
		MaxClaimAttempts:     cfg.SettlementMaxClaimAttempts,
		RetryInitialDelay:    cfg.SettlementRetryInitialDelay,
		RetryMaxDelay:        cfg.SettlementRetryMaxDelay,
		RetryExponentialBase: cfg.SettlementRetryExponentialBase,
		RetryJitter:          cfg.SettlementRetryJitter,
		AlertAfterFailures:   cfg.SettlementAlertAfterFailures,
	})

	fmt.Printf("=== Mercury Settlement Sweep ===\n\n")
	fmt.Printf("Mode: %s\n\n", map[bool]string{true: "DRY RUN", false: "LIVE"}[cfg.DryRun])

	start := time.Now()
	mgr.RunOnce(ctx)
	fmt.Printf("Sweep complete in %s.\n", time.Since(start).Round(time.Millisecond))

	return nil
}

func redeemStore(cfg *config.Config, logger *zap.Logger) (statestore.Store, error) {
	if cfg.StorageMode != "postgres" {
		return statestore.NewConsoleStore(logger), nil
	}

	return statestore.NewPostgresStore(&statestore.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		Logger:   logger,
	})
}
