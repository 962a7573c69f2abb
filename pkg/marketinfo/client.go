// Package marketinfo polls the Gamma-style REST API for a market's
// resolution state, caching only resolved results — grounded on the
// teacher's internal/discovery/client.go GET-and-decode shape, adapted from
// listing active markets to looking up one market's resolution by
// condition ID, and on pkg/cache's ristretto wrapper for the resolved-only
// cache (internal/discovery.Service.cacheMarket's pattern, generalized).
package marketinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/settlement"
	"github.com/mselser95/mercury/pkg/cache"
	"github.com/mselser95/mercury/pkg/types"
)

var _ settlement.MarketInfoSource = (*Client)(nil)

// gammaMarket is the subset of the Gamma API's market payload this client
// needs to derive resolution state.
type gammaMarket struct {
	ConditionID   string `json:"conditionId"`
	Closed        bool   `json:"closed"`
	EndDate       string `json:"endDate"`
	OutcomePrices string `json:"outcomePrices"` // JSON string: "[\"1\", \"0\"]" once settled
	Outcomes      string `json:"outcomes"`      // JSON string: "[\"Yes\", \"No\"]"
}

// Client polls the Gamma API's /markets?condition_ids=... endpoint.
type Client struct {
	http   *resty.Client
	cache  cache.Cache
	logger *zap.Logger
}

const resolvedCacheTTL = 24 * time.Hour

// New constructs a Client against baseURL (e.g. https://gamma-api.polymarket.com),
// caching resolved lookups in the given cache.
func New(baseURL string, c cache.Cache, logger *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetHeader("Accept", "application/json"),
		cache:  c,
		logger: logger,
	}
}

// GetMarketInfo returns the resolution state of the market identified by
// conditionID. Resolved results are cached indefinitely (within the TTL);
// unresolved results are never cached, since resolution is the only state
// transition this client needs to track.
func (c *Client) GetMarketInfo(ctx context.Context, conditionID string) (settlement.MarketInfo, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(conditionID); ok {
			if info, ok := cached.(settlement.MarketInfo); ok {
				return info, nil
			}
		}
	}

	var markets []gammaMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("condition_ids", conditionID).
		SetResult(&markets).
		Get("/markets")
	if err != nil {
		return settlement.MarketInfo{}, fmt.Errorf("fetch market info: %w", err)
	}
	if resp.IsError() {
		return settlement.MarketInfo{}, fmt.Errorf("gamma api status %d", resp.StatusCode())
	}
	if len(markets) == 0 {
		return settlement.MarketInfo{}, fmt.Errorf("market not found for condition %s", conditionID)
	}

	info, err := toMarketInfo(markets[0])
	if err != nil {
		return settlement.MarketInfo{}, err
	}

	if info.Resolved && c.cache != nil {
		if !c.cache.Set(conditionID, info, resolvedCacheTTL) {
			c.logger.Warn("failed-to-cache-resolved-market", zap.String("condition-id", conditionID))
		}
	}

	return info, nil
}

func toMarketInfo(m gammaMarket) (settlement.MarketInfo, error) {
	info := settlement.MarketInfo{}

	if m.EndDate != "" {
		endDate, err := time.Parse(time.RFC3339, m.EndDate)
		if err == nil {
			info.EndTime = endDate
		}
	}

	if !m.Closed {
		return info, nil
	}

	prices, err := parseOutcomePrices(m.OutcomePrices)
	if err != nil || len(prices) < 2 {
		return info, nil
	}

	info.Resolved = true
	switch {
	case prices[0] >= 0.5:
		info.Resolution = types.OutcomeYes
	default:
		info.Resolution = types.OutcomeNo
	}
	return info, nil
}

func parseOutcomePrices(raw string) ([]float64, error) {
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, err
	}
	prices := make([]float64, len(strs))
	for i, s := range strs {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, err
		}
		prices[i] = f
	}
	return prices, nil
}
