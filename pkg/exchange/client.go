// Package exchange is the concrete Exchange collaborator the execution
// engine submits orders through: EIP-712 order signing via
// go-order-utils/go-ethereum, HMAC-authenticated REST submission against
// the CLOB API, and best-bid/ask lookups against the locally maintained
// order book. Grounded on the teacher's order_client.go signing/HMAC
// shape, generalized from the YES/NO-specific batch builder into a
// single-request PlaceOrder serving any side/outcome/order type.
package exchange

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-resty/resty/v2"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/execution"
	"github.com/mselser95/mercury/internal/orderbook"
	"github.com/mselser95/mercury/pkg/types"
)

const defaultBaseURL = "https://clob.polymarket.com"

// TickSizeSource answers a token's price tick size and minimum order size,
// so the client can round/reject orders before they ever reach the wire.
// internal/markets.CachedMetadataClient is the concrete implementation.
type TickSizeSource interface {
	GetTokenMetadata(ctx context.Context, tokenID string) (tickSize, minOrderSize float64, err error)
}

// Config holds the credentials and wiring the Client needs.
type Config struct {
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	Address       string
	ProxyAddress  string
	SignatureType int
	BaseURL       string
	Books         *orderbook.Store
	Metadata      TickSizeSource // optional; nil skips tick-size rounding/min-size validation
	Logger        *zap.Logger
	HTTPTimeout   time.Duration
}

// Client implements execution.Exchange against the real Polymarket CLOB.
type Client struct {
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string
	proxyAddress  string
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	books         *orderbook.Store
	metadata      TickSizeSource
	logger        *zap.Logger
	http          *resty.Client
}

var _ execution.Exchange = (*Client)(nil)

// New constructs a Client, deriving the EOA address from the private key
// when one isn't supplied explicitly.
func New(cfg Config) (*Client, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := cfg.Address
	if address == "" {
		publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("derive public key: unexpected type")
		}
		address = crypto.PubkeyToAddress(*publicKeyECDSA).Hex()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	chainID := big.NewInt(137) // Polygon mainnet
	return &Client{
		apiKey:        cfg.APIKey,
		secret:        cfg.Secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       address,
		proxyAddress:  cfg.ProxyAddress,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(chainID, nil),
		books:         cfg.Books,
		metadata:      cfg.Metadata,
		logger:        cfg.Logger,
		http:          httpClient,
	}, nil
}

// applyTickConstraints rounds price to the token's tick size and rejects
// sizes below its minimum order size. A nil metadata source (no
// internal/markets collaborator configured) is a no-op, matching the
// teacher's CLOB API defaults when tick metadata isn't fetched.
func (c *Client) applyTickConstraints(ctx context.Context, tokenID string, price, size decimal.Decimal) (decimal.Decimal, error) {
	if c.metadata == nil {
		return price, nil
	}
	tickSize, minOrderSize, err := c.metadata.GetTokenMetadata(ctx, tokenID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch tick metadata: %w", err)
	}
	if minOrderSize > 0 && size.LessThan(decimal.NewFromFloat(minOrderSize)) {
		return decimal.Zero, fmt.Errorf("order size %s below minimum %v for token %s", size, minOrderSize, tokenID)
	}
	if tickSize <= 0 {
		return price, nil
	}
	tick := decimal.NewFromFloat(tickSize)
	return price.DivRound(tick, 0).Mul(tick), nil
}

func (c *Client) makerAddress() string {
	if c.proxyAddress != "" {
		return c.proxyAddress
	}
	return c.address
}

// PlaceOrder signs req and submits it to POST /order.
func (c *Client) PlaceOrder(ctx context.Context, req execution.OrderRequest) (*types.Order, error) {
	side := model.BUY
	if req.Side == types.SideSell {
		side = model.SELL
	}

	// Order quantity is quantized to two fractional digits, truncated
	// toward zero, before signing — the exchange rejects finer-grained
	// sizes.
	req.Size = req.Size.Truncate(2)

	price, err := c.applyTickConstraints(ctx, req.TokenID, req.Price, req.Size)
	if err != nil {
		return nil, fmt.Errorf("tick constraints: %w", err)
	}
	req.Price = price

	makerAmount, takerAmount := rawAmounts(req.Side, req.Size, req.Price)

	orderData := &model.OrderData{
		Maker:         c.makerAddress(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenId:       req.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, orderData, model.CTFExchange)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}

	orderType := "GTC"
	if req.OrderType == types.OrderTypeFOK {
		orderType = "FOK"
	}

	submission := types.OrderSubmissionRequest{
		Order:     signedOrderJSON(signed),
		Owner:     c.apiKey,
		OrderType: orderType,
	}

	body, err := json.Marshal(submission)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.l2Headers(http.MethodPost, "/order", string(body))
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	var resp types.OrderSubmissionResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetResult(&resp).
		Post("/order")
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK && httpResp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("submit order: status %d: %s", httpResp.StatusCode(), httpResp.String())
	}
	if !resp.Success {
		return nil, &types.OrderError{Code: resp.ErrorMsg, Message: resp.ErrorMsg, OrderID: resp.OrderID, Side: string(req.Side)}
	}

	return &types.Order{
		OrderID:       resp.OrderID,
		MarketID:      req.MarketID,
		TokenID:       req.TokenID,
		Side:          req.Side,
		Outcome:       req.Outcome,
		OrderType:     req.OrderType,
		RequestedSize: req.Size,
		Price:         req.Price,
		Status:        types.OrderStatusSubmitted,
		CreatedAt:     time.Now(),
	}, nil
}

// CancelOrder issues a DELETE /order for orderID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.l2Headers(http.MethodDelete, "/order", string(body))
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Delete("/order")
	if err != nil {
		return fmt.Errorf("send cancel request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// GetOrder fetches current order state via GET /order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	headers, err := c.l2Headers(http.MethodGet, "/order", "")
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	var q types.OrderQueryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("orderID", orderID).
		SetResult(&q).
		Get("/order")
	if err != nil {
		return nil, fmt.Errorf("send order query: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("query order: status %d: %s", resp.StatusCode(), resp.String())
	}

	return &types.Order{
		OrderID:       q.OrderID,
		MarketID:      q.MarketID,
		TokenID:       q.TokenID,
		Side:          types.Side(q.Side),
		OrderType:     types.OrderType(q.OrderType),
		RequestedSize: decimal.NewFromFloat(q.Size),
		FilledSize:    decimal.NewFromFloat(q.SizeFilled),
		Price:         decimal.NewFromFloat(q.Price),
		Status:        queryStatusToOrderStatus(q.Status, q.SizeFilled, q.Size),
		UpdatedAt:     time.Now(),
	}, nil
}

// BestBidAsk reads the current top of book from the locally maintained
// order book rather than round-tripping to the REST API: the engine
// already keeps this table hot off the websocket feed.
func (c *Client) BestBidAsk(_ context.Context, tokenID string) (bid, ask decimal.Decimal, err error) {
	book, ok := c.books.Book(tokenID)
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no order book tracked for token %s", tokenID)
	}
	bid, _, _ = book.BestBid()
	ask, _, _ = book.BestAsk()
	return bid, ask, nil
}

func queryStatusToOrderStatus(status string, filled, size float64) types.OrderStatus {
	switch strings.ToLower(status) {
	case "matched", "filled":
		if filled < size {
			return types.OrderStatusPartiallyFilled
		}
		return types.OrderStatusFilled
	case "live":
		return types.OrderStatusOpen
	case "cancelled", "canceled":
		return types.OrderStatusCancelled
	case "delayed", "unmatched":
		return types.OrderStatusOpen
	default:
		return types.OrderStatusOpen
	}
}

func signedOrderJSON(order *model.SignedOrder) types.SignedOrderJSON {
	side := "BUY"
	if order.Side.Uint64() == uint64(model.SELL) {
		side = "SELL"
	}
	return types.SignedOrderJSON{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenId.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Side:          side,
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		SignatureType: int(order.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(order.Signature),
	}
}

// rawAmounts converts a human size/price pair into the CLOB's raw
// 6-decimal USDC fixed-point amounts for maker/taker legs of a BUY or SELL.
func rawAmounts(side types.Side, size, price decimal.Decimal) (makerAmount, takerAmount string) {
	usd := size.Mul(price)
	rawUSD := usd.Shift(6).Round(0).String()
	rawTokens := size.Shift(6).Round(0).String()
	if side == types.SideSell {
		return rawTokens, rawUSD
	}
	return rawUSD, rawTokens
}

// l2Headers builds the HMAC-authenticated header set the Polymarket CLOB
// API expects for an L2-signed request: timestamp + method + path + body,
// secret decoded and signature encoded as URL-safe base64.
func (c *Client) l2Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	payload := timestamp + method + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(payload))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_API_KEY":    c.apiKey,
		"POLY_SIGNATURE":  signature,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_PASSPHRASE": c.passphrase,
		"POLY_ADDRESS":    c.address,
	}, nil
}
