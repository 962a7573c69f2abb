package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/discovery"
	"github.com/mselser95/mercury/internal/execution"
	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/internal/marketdata"
	"github.com/mselser95/mercury/internal/orderbook"
	"github.com/mselser95/mercury/internal/risk"
	"github.com/mselser95/mercury/internal/settlement"
	"github.com/mselser95/mercury/internal/statestore"
	"github.com/mselser95/mercury/internal/strategy"
	"github.com/mselser95/mercury/pkg/config"
	"github.com/mselser95/mercury/pkg/healthprobe"
	"github.com/mselser95/mercury/pkg/httpserver"
	"github.com/mselser95/mercury/pkg/websocket"
)

// App is the main application orchestrator: it owns every long-running
// component's lifecycle (construction in setup.go, start in run.go,
// ordered teardown in shutdown.go).
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	bus   *eventbus.Bus
	books *orderbook.Store
	store statestore.Store

	wsPool      *websocket.Pool
	marketData  *marketdata.Service
	discovery   *discovery.Service
	strategies  *strategy.Engine
	riskManager *risk.Manager
	executor    *execution.Engine
	settlement  *settlement.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	SingleMarket string // For debugging: slug of single market to track
}
