package httpserver

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// PositionsHandler serves the currently open, (partially) hedged
// positions out of the state store.
type PositionsHandler struct {
	positions PositionLister
	logger    *zap.Logger
}

// NewPositionsHandler creates a new positions handler.
func NewPositionsHandler(positions PositionLister, logger *zap.Logger) *PositionsHandler {
	return &PositionsHandler{positions: positions, logger: logger}
}

// PositionView is the JSON-facing projection of a types.Position.
type PositionView struct {
	PositionID  string `json:"position_id"`
	MarketID    string `json:"market_id"`
	Status      string `json:"status"`
	YesSize     string `json:"yes_size"`
	NoSize      string `json:"no_size"`
	HedgeRatio  string `json:"hedge_ratio"`
	RealizedPnL string `json:"realized_pnl"`
}

// HandlePositions handles GET /api/positions requests.
func (h *PositionsHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	positions, err := h.positions.OpenPositions(r.Context())
	if err != nil {
		h.logger.Error("open-positions-query-failed", zap.Error(err))
		h.writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, PositionView{
			PositionID:  p.PositionID,
			MarketID:    p.MarketID,
			Status:      string(p.Status),
			YesSize:     p.YesSize.String(),
			NoSize:      p.NoSize.String(),
			HedgeRatio:  p.HedgeRatio().String(),
			RealizedPnL: p.RealizedPnL.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(views); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func (h *PositionsHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
