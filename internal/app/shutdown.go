package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully tears down the application in dependency order:
// stop serving, stop accepting new work, drain in-flight work, then
// close the things everything else depended on.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.executor.Stop()
	a.settlement.Stop()
	a.marketData.Stop()

	if err := a.wsPool.Close(); err != nil {
		a.logger.Error("websocket-pool-close-error", zap.Error(err))
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("store-close-error", zap.Error(err))
	}

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}
