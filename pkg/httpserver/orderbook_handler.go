package httpserver

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/orderbook"
)

// OrderbookHandler serves read-only order book snapshots out of the
// locally maintained store.
type OrderbookHandler struct {
	books  *orderbook.Store
	logger *zap.Logger
}

// NewOrderbookHandler creates a new orderbook handler.
func NewOrderbookHandler(books *orderbook.Store, logger *zap.Logger) *OrderbookHandler {
	return &OrderbookHandler{books: books, logger: logger}
}

// OutcomeOrderbook represents best-price orderbook data for a single leg.
type OutcomeOrderbook struct {
	Outcome      string `json:"outcome"`
	TokenID      string `json:"token_id"`
	BestBidPrice string `json:"best_bid_price,omitempty"`
	BestBidSize  string `json:"best_bid_size,omitempty"`
	BestAskPrice string `json:"best_ask_price,omitempty"`
	BestAskSize  string `json:"best_ask_size,omitempty"`
}

// OrderbookResponse represents the HTTP response for orderbook data.
type OrderbookResponse struct {
	MarketID string             `json:"market_id"`
	Outcomes []OutcomeOrderbook `json:"outcomes"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleOrderbook handles GET /api/orderbook?market_id=<id> requests.
func (h *OrderbookHandler) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	marketID := r.URL.Query().Get("market_id")
	if marketID == "" {
		h.writeError(w, "missing required query parameter: market_id", http.StatusBadRequest)
		return
	}

	book, ok := h.books.MarketBook(marketID)
	if !ok {
		h.writeError(w, "market not registered", http.StatusNotFound)
		return
	}

	outcomes := make([]OutcomeOrderbook, 0, 2)
	outcomes = append(outcomes, legSnapshot("yes", book.YesBook))
	outcomes = append(outcomes, legSnapshot("no", book.NoBook))

	response := OrderbookResponse{
		MarketID: marketID,
		Outcomes: outcomes,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

func legSnapshot(outcome string, book *orderbook.InMemoryOrderBook) OutcomeOrderbook {
	if book == nil {
		return OutcomeOrderbook{Outcome: outcome}
	}
	leg := OutcomeOrderbook{Outcome: outcome, TokenID: book.TokenID()}
	if bidPrice, bidSize, ok := book.BestBid(); ok {
		leg.BestBidPrice = bidPrice.String()
		leg.BestBidSize = bidSize.String()
	}
	if askPrice, askSize, ok := book.BestAsk(); ok {
		leg.BestAskPrice = askPrice.String()
		leg.BestAskSize = askSize.String()
	}
	return leg
}

// writeError writes a JSON error response.
func (h *OrderbookHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
