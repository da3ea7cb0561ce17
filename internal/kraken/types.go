package kraken

import "time"

// TickerInfo is the normalized ticker for one pair.
type TickerInfo struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// Candle is one OHLC bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TradeBalance is the broker's aggregate account view. Equity is the
// broker-reported total value; TradeAvailable is the balance usable for
// trading, which can differ from the raw per-asset balances when the
// account aggregates margin or held funds.
type TradeBalance struct {
	Equity         float64 `json:"equity"`
	TradeAvailable float64 `json:"trade_available"`
}

// PortfolioBalances is the display summary of the account.
type PortfolioBalances struct {
	USD           float64 `json:"usd"`
	BTC           float64 `json:"btc"`
	ETH           float64 `json:"eth"`
	TotalValueUSD float64 `json:"total_value_usd"`
}

// OrderRequest describes an order to place.
type OrderRequest struct {
	Strategy   string  `json:"strategy"`
	Pair       string  `json:"pair"`
	Side       string  `json:"side"` // "buy" or "sell"
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"` // latest known price, used for notional and min-size checks
	Confidence float64 `json:"confidence"`
}

// OrderResult is the normalized response to a placed order.
type OrderResult struct {
	OrderID     string  `json:"order_id"`
	ClientRef   string  `json:"client_ref"`
	Status      string  `json:"status"`
	VolumeExec  float64 `json:"volume_executed"`
	VolumeRest  float64 `json:"volume_remaining"`
	Description string  `json:"description"`
}

// GatewayStatus is a diagnostic snapshot of the gateway.
type GatewayStatus struct {
	Connected       bool      `json:"connected"`
	HasCredentials  bool      `json:"has_credentials"`
	RealTrading     bool      `json:"real_trading"`
	MockMode        bool      `json:"mock_mode"`
	LastPrivateCall time.Time `json:"last_private_call"`
	TickerCacheAge  string    `json:"ticker_cache_age"`
	BalanceCacheAge string    `json:"balance_cache_age"`
}
