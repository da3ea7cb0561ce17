package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/risk"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	publicPathPrefix  = "/0/public/"
	privatePathPrefix = "/0/private/"

	// Minimum spacing between private calls. Keeps nonces strictly
	// increasing under clock granularity and stays inside the broker's
	// private rate limit even when retries pile up upstream.
	privateCallSpacing = time.Second

	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// fallbackPrices is returned by GetTicker when the broker is unreachable and
// nothing is cached, so read-only consumers keep rendering.
var fallbackPrices = map[string]float64{
	"XXBTZUSD": 50000,
	"XETHZUSD": 3000,
}

// mockBalances is the account state reported in mock mode.
var mockBalances = map[string]string{
	"ZUSD": "1000.00",
	"XXBT": "0.05",
}

// RiskGate validates an order before it is submitted.
type RiskGate interface {
	Validate(ctx context.Context, req risk.TradeRequest) risk.Decision
}

// ClientInterface defines the broker gateway surface used by the strategies
// and the API server.
type ClientInterface interface {
	GetTicker(ctx context.Context, pairs []string) (map[string]TickerInfo, error)
	GetBalances(ctx context.Context) (map[string]string, error)
	GetPortfolioBalances(ctx context.Context) (*PortfolioBalances, error)
	GetOHLC(ctx context.Context, pair string, intervalMinutes int) ([]Candle, error)
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	CancelAllOrders(ctx context.Context) (int, error)
	TestConnection(ctx context.Context) error
	Status() GatewayStatus
}

// Client is the gateway to the Kraken REST API.
type Client struct {
	client  *resty.Client
	cfg     *config.Config
	gate    RiskGate
	logger  *zap.Logger
	limiter *rate.Limiter

	// privateMu serializes private calls: nonce issuance, call spacing and
	// the replay-protected request itself.
	privateMu   sync.Mutex
	lastPrivate time.Time
	lastNonce   int64

	tickerCache  *ttlCache[map[string]TickerInfo]
	balanceCache *ttlCache[map[string]string]

	// connected is written by request paths and read by Status from HTTP
	// handlers concurrently.
	connected atomic.Bool
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Kraken gateway client.
func NewClient(cfg *config.Config, gate RiskGate, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.Kraken.BaseURL).
		SetTimeout(10 * time.Second)

	limiter := rate.NewLimiter(rate.Limit(cfg.Kraken.RateLimit), cfg.Kraken.RateLimitBurst)
	ttl := time.Duration(cfg.Kraken.CacheTTL) * time.Second

	return &Client{
		client:       client,
		cfg:          cfg,
		gate:         gate,
		logger:       logger,
		limiter:      limiter,
		tickerCache:  newTTLCache[map[string]TickerInfo](ttl),
		balanceCache: newTTLCache[map[string]string](ttl),
	}
}

// apiResponse is the broker's response envelope.
type apiResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// public executes a public GET with rate limiting and bounded retry, and
// unmarshals the result payload into out. Only idempotent reads go through
// here, so retrying is safe.
func (c *Client) public(ctx context.Context, endpoint string, query url.Values, out any) error {
	const maxRetries = 3

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		req := c.client.R().SetContext(ctx)
		if query != nil {
			req.SetQueryParamsFromValues(query)
		}

		resp, err := req.Get(publicPathPrefix + endpoint)
		if err == nil && !resp.IsError() {
			if err := c.decodeEnvelope(resp.Body(), out); err != nil {
				return err
			}
			c.connected.Store(true)
			return nil
		}

		// Retry server-side failures and network errors; 4xx responses
		// other than 429 will not heal on their own.
		var retryAfter time.Duration
		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				if seconds, aerr := strconv.Atoi(resp.Header().Get("Retry-After")); aerr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode < 500 {
				return fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
			lastErr = fmt.Errorf("status %s", resp.Status())
		} else {
			lastErr = err
		}
		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Public request failed, retrying...",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.connected.Store(false)
	return fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}

// private executes a signed POST. Calls are serialized and spaced at least
// privateCallSpacing apart so nonces never collide or go backwards. Private
// calls are never retried here; order placement must not repeat.
func (c *Client) private(ctx context.Context, endpoint string, values url.Values, out any) error {
	if c.cfg.Kraken.ApiKey == "" || c.cfg.Kraken.SecretKey == "" {
		return &ExchangeError{Kind: ErrKindAuth, Message: "api credentials not configured"}
	}

	c.privateMu.Lock()
	defer c.privateMu.Unlock()

	if wait := privateCallSpacing - time.Since(c.lastPrivate); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	nonce := time.Now().UnixMicro()
	if nonce <= c.lastNonce {
		nonce = c.lastNonce + 1
	}
	c.lastNonce = nonce

	if values == nil {
		values = url.Values{}
	}
	values.Set("nonce", strconv.FormatInt(nonce, 10))

	path := privatePathPrefix + endpoint
	signature, err := Sign(path, values, nonce, c.cfg.Kraken.SecretKey)
	if err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("API-Key", c.cfg.Kraken.ApiKey).
		SetHeader("API-Sign", signature).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(values.Encode()).
		Post(path)

	c.lastPrivate = time.Now()

	if err != nil {
		c.connected.Store(false)
		return fmt.Errorf("private request %s failed: %w", endpoint, err)
	}
	if resp.IsError() {
		return fmt.Errorf("private request %s failed with status %s: %s", endpoint, resp.Status(), resp.String())
	}

	if err := c.decodeEnvelope(resp.Body(), out); err != nil {
		return err
	}
	c.connected.Store(true)
	return nil
}

// decodeEnvelope unpacks the broker envelope, classifying exchange-reported
// errors into typed kinds.
func (c *Client) decodeEnvelope(body []byte, out any) error {
	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	if len(env.Error) > 0 {
		return classifyExchangeError(env.Error[0])
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("could not decode result: %w", err)
	}
	return nil
}

// tickerEntry is the broker's per-pair ticker payload.
type tickerEntry struct {
	Close  []string `json:"c"` // [price, lot volume]
	Volume []string `json:"v"` // [today, last 24h]
}

// GetTicker returns the latest price and 24h volume for the given pairs.
// Results are cached for the configured TTL; on transport failure with a
// cold cache it falls back to hardcoded prices so read paths keep working.
func (c *Client) GetTicker(ctx context.Context, pairs []string) (map[string]TickerInfo, error) {
	if cached, ok := c.tickerCache.get(); ok {
		if result, ok := subsetTicker(cached, pairs); ok {
			return result, nil
		}
	}

	query := url.Values{}
	query.Set("pair", joinPairs(pairs))

	var raw map[string]tickerEntry
	if err := c.public(ctx, "Ticker", query, &raw); err != nil {
		c.logger.Warn("Ticker fetch failed, serving fallback prices", zap.Error(err))
		fallback := make(map[string]TickerInfo, len(pairs))
		for _, pair := range pairs {
			price, ok := fallbackPrices[pair]
			if !ok {
				return nil, fmt.Errorf("could not get ticker for %s: %w", pair, err)
			}
			fallback[pair] = TickerInfo{Pair: pair, Price: price, Timestamp: time.Now()}
		}
		return fallback, nil
	}

	result := make(map[string]TickerInfo, len(raw))
	now := time.Now()
	for pair, entry := range raw {
		info := TickerInfo{Pair: pair, Timestamp: now}
		if len(entry.Close) > 0 {
			info.Price, _ = strconv.ParseFloat(entry.Close[0], 64)
		}
		if len(entry.Volume) > 1 {
			info.Volume24h, _ = strconv.ParseFloat(entry.Volume[1], 64)
		}
		result[pair] = info
	}

	c.tickerCache.set(result)
	return result, nil
}

// GetBalances returns the raw per-asset balances keyed by broker currency
// code, as decimal strings. Cached for the configured TTL. In mock mode a
// canned account is returned without touching the network.
func (c *Client) GetBalances(ctx context.Context) (map[string]string, error) {
	if c.cfg.Trading.MockMode {
		// Copied so callers cannot mutate the canned account.
		balances := make(map[string]string, len(mockBalances))
		for code, amount := range mockBalances {
			balances[code] = amount
		}
		return balances, nil
	}
	if cached, ok := c.balanceCache.get(); ok {
		return cached, nil
	}

	var balances map[string]string
	if err := c.private(ctx, "Balance", nil, &balances); err != nil {
		return nil, fmt.Errorf("could not get balances: %w", err)
	}

	c.balanceCache.set(balances)
	return balances, nil
}

// tradeBalanceEntry is the broker's aggregate balance payload.
type tradeBalanceEntry struct {
	Equity         string `json:"eb"`
	TradeAvailable string `json:"tb"`
}

// GetTradeBalance returns the broker-reported aggregate account balance.
func (c *Client) GetTradeBalance(ctx context.Context) (*TradeBalance, error) {
	values := url.Values{}
	values.Set("asset", "ZUSD")

	var entry tradeBalanceEntry
	if err := c.private(ctx, "TradeBalance", values, &entry); err != nil {
		return nil, fmt.Errorf("could not get trade balance: %w", err)
	}

	tb := &TradeBalance{}
	tb.Equity, _ = strconv.ParseFloat(entry.Equity, 64)
	tb.TradeAvailable, _ = strconv.ParseFloat(entry.TradeAvailable, 64)
	return tb, nil
}

// GetPortfolioBalances builds the display summary of the account. The USD
// figure prefers the broker's trade-available balance and falls back to the
// raw per-asset balance; the total prefers the broker's aggregate equity and
// falls back to cash plus priced asset holdings.
func (c *Client) GetPortfolioBalances(ctx context.Context) (*PortfolioBalances, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return nil, err
	}

	usd, _ := strconv.ParseFloat(ResolveBalance(balances, c.cfg.Assets.USD), 64)
	btc, _ := strconv.ParseFloat(ResolveBalance(balances, c.cfg.Assets.BTC), 64)
	eth, _ := strconv.ParseFloat(ResolveBalance(balances, c.cfg.Assets.ETH), 64)

	summary := &PortfolioBalances{USD: usd, BTC: btc, ETH: eth}

	var equity, tradeAvailable float64
	if !c.cfg.Trading.MockMode {
		if tb, err := c.GetTradeBalance(ctx); err == nil {
			equity = tb.Equity
			tradeAvailable = tb.TradeAvailable
		} else {
			c.logger.Warn("Trade balance unavailable, using per-asset balances", zap.Error(err))
		}
	}
	if tradeAvailable > 0 {
		summary.USD = tradeAvailable
	}

	if equity > 0 {
		summary.TotalValueUSD = equity
		return summary, nil
	}

	tickers, err := c.GetTicker(ctx, []string{c.cfg.Trading.Pair, c.cfg.Trading.EthPair})
	if err != nil {
		return nil, fmt.Errorf("could not price holdings: %w", err)
	}
	total := summary.USD
	if btc > 0 {
		total += btc * tickers[c.cfg.Trading.Pair].Price
	}
	if eth > 0 {
		total += eth * tickers[c.cfg.Trading.EthPair].Price
	}
	summary.TotalValueUSD = total

	return summary, nil
}

// GetOHLC fetches candles for a pair at the given interval in minutes.
func (c *Client) GetOHLC(ctx context.Context, pair string, intervalMinutes int) ([]Candle, error) {
	query := url.Values{}
	query.Set("pair", pair)
	query.Set("interval", strconv.Itoa(intervalMinutes))

	var raw map[string]json.RawMessage
	if err := c.public(ctx, "OHLC", query, &raw); err != nil {
		return nil, fmt.Errorf("could not get OHLC for %s: %w", pair, err)
	}

	// The result holds the candle array under the pair key plus a "last"
	// cursor entry.
	var rows [][]any
	for key, payload := range raw {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, fmt.Errorf("could not decode OHLC rows for %s: %w", pair, err)
		}
		break
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if candle, ok := parseCandle(row); ok {
			candles = append(candles, candle)
		}
	}
	return candles, nil
}

// parseCandle decodes one broker OHLC row:
// [time, open, high, low, close, vwap, volume, count].
func parseCandle(row []any) (Candle, bool) {
	if len(row) < 7 {
		return Candle{}, false
	}
	ts, ok := row[0].(float64)
	if !ok {
		return Candle{}, false
	}
	asFloat := func(v any) float64 {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	return Candle{
		Time:   time.Unix(int64(ts), 0),
		Open:   asFloat(row[1]),
		High:   asFloat(row[2]),
		Low:    asFloat(row[3]),
		Close:  asFloat(row[4]),
		Volume: asFloat(row[6]),
	}, true
}

// addOrderResult is the broker's order placement payload.
type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	Txid []string `json:"txid"`
}

// PlaceOrder validates and submits a market order. It refuses before any
// network call when real trading is disabled, confirmation is required, the
// volume is below the exchange minimum, or the risk gate denies the trade.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error) {
	if !c.cfg.Trading.RealTradingEnabled {
		return nil, errors.New("order refused: real trading is not enabled")
	}
	if c.cfg.Trading.ConfirmationRequired {
		return nil, errors.New("order refused: trade confirmation is required")
	}

	if req.Volume < c.cfg.Trading.MinOrderVolume {
		minUSD := c.cfg.Trading.MinOrderVolume * req.Price
		return nil, fmt.Errorf("order volume %.8f below exchange minimum %.8f (about $%.2f at current price)",
			req.Volume, c.cfg.Trading.MinOrderVolume, minUSD)
	}

	decision := c.gate.Validate(ctx, risk.TradeRequest{
		Strategy:   req.Strategy,
		Pair:       req.Pair,
		Side:       req.Side,
		Volume:     req.Volume,
		Price:      req.Price,
		Confidence: req.Confidence,
	})
	if !decision.Approved {
		return nil, fmt.Errorf("order denied by risk gate: %s", decision.Reason)
	}

	clientRef := uuid.NewString()
	values := url.Values{}
	values.Set("pair", req.Pair)
	values.Set("type", req.Side)
	values.Set("ordertype", "market")
	values.Set("volume", strconv.FormatFloat(req.Volume, 'f', 8, 64))
	values.Set("cl_ord_id", clientRef)

	var result addOrderResult
	if err := c.private(ctx, "AddOrder", values, &result); err != nil {
		c.logger.Error("Order placement failed",
			zap.String("pair", req.Pair),
			zap.String("side", req.Side),
			zap.Float64("volume", req.Volume),
			zap.Error(err),
		)
		return nil, err
	}

	orderID := ""
	if len(result.Txid) > 0 {
		orderID = result.Txid[0]
	}

	order := &OrderResult{
		OrderID:     orderID,
		ClientRef:   clientRef,
		Status:      "submitted",
		VolumeExec:  req.Volume,
		Description: result.Descr.Order,
	}
	c.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("pair", req.Pair),
		zap.String("side", req.Side),
		zap.Float64("volume", req.Volume),
	)
	return order, nil
}

// cancelAllResult is the broker's cancel-all payload.
type cancelAllResult struct {
	Count int `json:"count"`
}

// CancelAllOrders cancels all open orders and returns the cancelled count.
func (c *Client) CancelAllOrders(ctx context.Context) (int, error) {
	var result cancelAllResult
	if err := c.private(ctx, "CancelAll", nil, &result); err != nil {
		return 0, fmt.Errorf("could not cancel orders: %w", err)
	}
	c.logger.Info("Cancelled all open orders", zap.Int("count", result.Count))
	return result.Count, nil
}

// serverTimeResult is the broker's time payload.
type serverTimeResult struct {
	UnixTime int64 `json:"unixtime"`
}

// TestConnection verifies public reachability, and account access when
// credentials are configured. Missing credentials fail the test without
// stopping the read side of the service.
func (c *Client) TestConnection(ctx context.Context) error {
	var t serverTimeResult
	if err := c.public(ctx, "Time", nil, &t); err != nil {
		return fmt.Errorf("public endpoint unreachable: %w", err)
	}

	if c.cfg.Trading.MockMode {
		return nil
	}
	if c.cfg.Kraken.ApiKey == "" || c.cfg.Kraken.SecretKey == "" {
		return errors.New("api credentials not configured")
	}

	if _, err := c.GetBalances(ctx); err != nil {
		return fmt.Errorf("account access check failed: %w", err)
	}
	return nil
}

// Status returns a diagnostic snapshot of the gateway.
func (c *Client) Status() GatewayStatus {
	c.privateMu.Lock()
	lastPrivate := c.lastPrivate
	c.privateMu.Unlock()

	return GatewayStatus{
		Connected:       c.connected.Load(),
		HasCredentials:  c.cfg.Kraken.ApiKey != "" && c.cfg.Kraken.SecretKey != "",
		RealTrading:     c.cfg.Trading.RealTradingEnabled,
		MockMode:        c.cfg.Trading.MockMode,
		LastPrivateCall: lastPrivate,
		TickerCacheAge:  c.tickerCache.age().Round(time.Millisecond).String(),
		BalanceCacheAge: c.balanceCache.age().Round(time.Millisecond).String(),
	}
}

// ResolveBalance returns the balance of the first currency code in the
// priority list that is present with a non-empty, non-zero value, else "0".
// The broker reports the same asset under several historical spellings.
func ResolveBalance(balances map[string]string, priority []string) string {
	for _, code := range priority {
		value, ok := balances[code]
		if !ok || value == "" {
			continue
		}
		if amount, err := strconv.ParseFloat(value, 64); err != nil || amount == 0 {
			continue
		}
		return value
	}
	return "0"
}

func subsetTicker(cached map[string]TickerInfo, pairs []string) (map[string]TickerInfo, bool) {
	result := make(map[string]TickerInfo, len(pairs))
	for _, pair := range pairs {
		info, ok := cached[pair]
		if !ok {
			return nil, false
		}
		result[pair] = info
	}
	return result, true
}

func joinPairs(pairs []string) string {
	joined := ""
	for i, pair := range pairs {
		if i > 0 {
			joined += ","
		}
		joined += pair
	}
	return joined
}
