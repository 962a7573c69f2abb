package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/execution"
)

// SignalCanceller is the subset of the execution engine the cancel
// endpoint needs: pull a PENDING signal out of the queue before it's
// dequeued to a worker.
type SignalCanceller interface {
	CancelQueuedSignal(signalID string) error
}

// SignalsHandler exposes queue-cancellation over HTTP.
type SignalsHandler struct {
	executor SignalCanceller
	logger   *zap.Logger
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(executor SignalCanceller, logger *zap.Logger) *SignalsHandler {
	return &SignalsHandler{executor: executor, logger: logger}
}

// HandleCancel handles DELETE /api/signals/{signal_id}, cancelling the
// signal while it is still PENDING in the execution queue.
func (h *SignalsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	signalID := chi.URLParam(r, "signal_id")
	if signalID == "" {
		h.writeError(w, "signal_id is required", http.StatusBadRequest)
		return
	}

	err := h.executor.CancelQueuedSignal(signalID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, execution.ErrSignalNotQueued):
		h.writeError(w, "signal not queued", http.StatusNotFound)
	default:
		h.logger.Error("cancel-queued-signal-failed", zap.String("signal_id", signalID), zap.Error(err))
		h.writeError(w, "failed to cancel signal", http.StatusInternalServerError)
	}
}

func (h *SignalsHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
