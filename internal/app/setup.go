package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/arbitrage"
	"github.com/mselser95/mercury/internal/discovery"
	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/internal/execution"
	"github.com/mselser95/mercury/internal/markets"
	"github.com/mselser95/mercury/internal/marketdata"
	"github.com/mselser95/mercury/internal/orderbook"
	"github.com/mselser95/mercury/internal/risk"
	"github.com/mselser95/mercury/internal/settlement"
	"github.com/mselser95/mercury/internal/statestore"
	"github.com/mselser95/mercury/internal/strategy"
	"github.com/mselser95/mercury/pkg/cache"
	"github.com/mselser95/mercury/pkg/config"
	"github.com/mselser95/mercury/pkg/exchange"
	"github.com/mselser95/mercury/pkg/healthprobe"
	"github.com/mselser95/mercury/pkg/httpserver"
	"github.com/mselser95/mercury/pkg/marketinfo"
	"github.com/mselser95/mercury/pkg/redemption"
	"github.com/mselser95/mercury/pkg/websocket"
)

// New wires every component of the engine together and returns a ready-
// to-run App. Nothing is started yet; call Run to begin.
func New(cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		bus:           eventbus.New(logger),
		books:         orderbook.NewStore(),
		ctx:           ctx,
		cancel:        cancel,
	}

	store, err := setupStore(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup store: %w", err)
	}
	a.store = store

	wsPool := websocket.NewPool(websocket.PoolConfig{
		Size:                  cfg.WSPoolSize,
		WSUrl:                 cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
	a.wsPool = wsPool

	a.marketData = marketdata.New(marketdata.Config{
		Logger:             logger,
		Bus:                a.bus,
		Store:              a.books,
		Feed:               websocket.NewFeed(wsPool),
		StaleThreshold:     cfg.MarketDataStaleThreshold,
		StaleCheckInterval: cfg.MarketDataStaleCheckInterval,
	})

	gammaClient := discovery.NewClient(cfg.PolymarketGammaURL, logger)
	discoveryCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1e6,
		MaxCost:     1 << 26,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup discovery cache: %w", err)
	}
	a.discovery = discovery.New(&discovery.Config{
		Client:            gammaClient,
		Cache:             discoveryCache,
		PollInterval:      cfg.DiscoveryPollInterval,
		MarketLimit:       cfg.DiscoveryMarketLimit,
		MaxMarketDuration: cfg.MaxMarketDuration,
		Logger:            logger,
		SingleMarket:      opts.SingleMarket,
	})

	a.strategies = strategy.New(logger, a.bus, a.books)
	a.strategies.Register(arbitrage.New(logger, gabagoolConfig(cfg)))

	a.riskManager = risk.New(logger, a.bus, a.store, riskConfig(cfg))

	metadataCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1e5,
		MaxCost:     1 << 23,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup metadata cache: %w", err)
	}
	tickSizeSource := markets.NewCachedMetadataClient(markets.NewMetadataClient(), metadataCache)

	exchangeClient, err := exchange.New(exchange.Config{
		APIKey:        cfg.PolymarketAPIKey,
		Secret:        cfg.PolymarketSecret,
		Passphrase:    cfg.PolymarketPassphrase,
		PrivateKey:    cfg.PolymarketPrivateKey,
		Address:       cfg.PolymarketAddress,
		ProxyAddress:  cfg.PolymarketProxyAddr,
		SignatureType: cfg.PolymarketSigType,
		Books:         a.books,
		Metadata:      tickSizeSource,
		Logger:        logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup exchange client: %w", err)
	}

	a.executor = execution.New(executionConfig(cfg, logger, a.bus, exchangeClient, a.store))

	marketInfoCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1e5,
		MaxCost:     1 << 23,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup market-info cache: %w", err)
	}
	marketInfoClient := marketinfo.New(cfg.PolymarketGammaURL, marketInfoCache, logger)

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
			cancel()
			return nil, fmt.Errorf("setup redemption client: %w", err)
		}
	}

	a.settlement = settlement.New(settlementConfig(cfg, logger, a.bus, a.store, marketInfoClient, redeemClient))

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Books:         a.books,
		Positions:     a.store,
		Executor:      a.executor,
	})

	return a, nil
}

func setupStore(cfg *config.Config, logger *zap.Logger) (statestore.Store, error) {
	switch cfg.StorageMode {
	case "postgres":
		return statestore.NewPostgresStore(&statestore.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
	default:
		return statestore.NewConsoleStore(logger), nil
	}
}

func gabagoolConfig(cfg *config.Config) arbitrage.Config {
	return arbitrage.Config{
		Enabled:               cfg.GabagoolEnabled,
		Markets:               cfg.GabagoolMarkets,
		MinSpreadThreshold:    decimalFromFloat(cfg.GabagoolMinSpreadThreshold),
		MaxTradeSizeUSD:       decimalFromFloat(cfg.GabagoolMaxTradeSizeUSD),
		MinTimeRemaining:      cfg.GabagoolMinTimeRemaining,
		MinHedgeRatio:         decimalFromFloat(cfg.GabagoolMinHedgeRatio),
		CriticalHedgeRatio:    decimalFromFloat(cfg.GabagoolCriticalHedgeRatio),
		SignalCooldown:        cfg.GabagoolSignalCooldown,
		BalanceSizingEnabled:  cfg.GabagoolBalanceSizingEnabled,
		BalanceSizingPct:      decimalFromFloat(cfg.GabagoolBalanceSizingPct),
		GradualEntryMinSpread: decimalFromFloat(cfg.GabagoolGradualEntryMinSpread),
		GradualEntryTranches:  cfg.GabagoolGradualEntryTranches,
	}
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		MaxExposureUSD:       decimalFromFloat(cfg.RiskMaxExposureUSD),
		MaxMarketExposureUSD: decimalFromFloat(cfg.RiskMaxMarketExposureUSD),
		MaxDailyLoss:         decimalFromFloat(cfg.RiskMaxDailyLoss),
		MaxDailyTrades:       cfg.RiskMaxDailyTrades,
		MinTimeRemaining:     cfg.RiskMinTimeRemaining,
		WarningFailures:      cfg.RiskWarningFailures,
		CautionFailures:      cfg.RiskCautionFailures,
		HaltFailures:         cfg.RiskHaltFailures,
	}
}

func executionConfig(cfg *config.Config, logger *zap.Logger, bus *eventbus.Bus, ex execution.Exchange, store execution.Store) execution.Config {
	return execution.Config{
		Logger:            logger,
		Bus:               bus,
		Exchange:          ex,
		Store:             store,
		MaxQueueSize:      cfg.ExecutionMaxQueueSize,
		MaxConcurrent:     cfg.ExecutionMaxConcurrent,
		QueueTimeout:      cfg.ExecutionQueueTimeout,
		OrderTimeout:      cfg.ExecutionOrderTimeout,
		ShutdownGrace:     10 * time.Second,
		RebalanceEnabled:  cfg.ExecutionRebalancePartialFills,
		MinHedgeRatio:     decimalFromFloat(cfg.ExecutionMinHedgeRatio),
		MaxUnwindSlippage: decimalFromFloat(cfg.ExecutionMaxUnwindSlippage),
	}
}

func settlementConfig(cfg *config.Config, logger *zap.Logger, bus *eventbus.Bus, store settlement.Store, marketInfo settlement.MarketInfoSource, redeem settlement.RedemptionClient) settlement.Config {
	return settlement.Config{
		Logger:               logger,
		Bus:                  bus,
		Store:                store,
		MarketInfo:           marketInfo,
		Redemption:           redeem,
		DryRun:               cfg.DryRun,
		CheckInterval:        cfg.SettlementCheckInterval,
		ResolutionWait:       cfg.SettlementResolutionWait,
		MaxClaimAttempts:     cfg.SettlementMaxClaimAttempts,
		RetryInitialDelay:    cfg.SettlementRetryInitialDelay,
		RetryMaxDelay:        cfg.SettlementRetryMaxDelay,
		RetryExponentialBase: cfg.SettlementRetryExponentialBase,
		RetryJitter:          cfg.SettlementRetryJitter,
		AlertAfterFailures:   cfg.SettlementAlertAfterFailures,
	}
}
