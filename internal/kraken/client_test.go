package kraken

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/risk"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type stubGate struct {
	decision risk.Decision
	called   bool
}

func (g *stubGate) Validate(_ context.Context, _ risk.TradeRequest) risk.Decision {
	g.called = true
	return g.decision
}

func approveGate() *stubGate { return &stubGate{decision: risk.Decision{Approved: true}} }

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Kraken: config.Kraken{
			ApiKey:         "test_api_key",
			SecretKey:      base64.StdEncoding.EncodeToString([]byte("test secret")),
			BaseURL:        baseURL,
			RateLimit:      1000,
			RateLimitBurst: 10,
			CacheTTL:       15,
		},
		Trading: config.Trading{
			MockMode:       true,
			Pair:           "XXBTZUSD",
			EthPair:        "XETHZUSD",
			MinOrderVolume: 0.0001,
			FeeRate:        0.0026,
		},
		Assets: config.Assets{
			USD: []string{"ZUSD", "USD"},
			BTC: []string{"XXBT", "XBT", "BTC"},
			ETH: []string{"XETH", "ETH"},
		},
	}
}

// setupTestClient creates a test server and a Client pointed at it.
func setupTestClient(handler http.Handler, gate RiskGate) (*Client, *config.Config, *httptest.Server) {
	server := httptest.NewServer(handler)
	cfg := testConfig(server.URL)
	c := NewClient(cfg, gate, zap.NewNop())
	c.limiter = rate.NewLimiter(rate.Inf, 1) // allow all requests in tests
	return c, cfg, server
}

func TestResolveBalance(t *testing.T) {
	priority := []string{"XXBT", "XBT", "BTC"}

	testCases := []struct {
		name     string
		balances map[string]string
		expected string
	}{
		{"NoKeysPresent", map[string]string{"ZUSD": "100"}, "0"},
		{"FirstKeyPresent", map[string]string{"XXBT": "0.5"}, "0.5"},
		{"SecondKeyPresent", map[string]string{"XBT": "0.25"}, "0.25"},
		{"ThirdKeyPresent", map[string]string{"BTC": "1.75"}, "1.75"},
		{"FirstWinsOverSecond", map[string]string{"XXBT": "0.5", "XBT": "0.25"}, "0.5"},
		{"FirstWinsOverThird", map[string]string{"XXBT": "0.5", "BTC": "1.75"}, "0.5"},
		{"SecondWinsOverThird", map[string]string{"XBT": "0.25", "BTC": "1.75"}, "0.25"},
		{"AllPresent", map[string]string{"XXBT": "0.5", "XBT": "0.25", "BTC": "1.75"}, "0.5"},
		{"EmptyValueSkipped", map[string]string{"XXBT": "", "XBT": "0.25"}, "0.25"},
		{"ZeroValueSkipped", map[string]string{"XXBT": "0.0000", "XBT": "0.25"}, "0.25"},
		{"AllZero", map[string]string{"XXBT": "0", "XBT": "0", "BTC": "0"}, "0"},
		{"EmptyMap", map[string]string{}, "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ResolveBalance(tc.balances, priority))
		})
	}
}

func TestGetPortfolioBalances(t *testing.T) {
	// Mock mode reports {"ZUSD":"1000.00","XXBT":"0.05"}; with BTC at
	// 50000 and no aggregate equity field the total must be computed as
	// cash plus priced holdings.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Ticker", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":[],"result":{
			"XXBTZUSD":{"c":["50000.0","0.01"],"v":["10","120"]},
			"XETHZUSD":{"c":["3000.0","0.5"],"v":["50","600"]}}}`))
	})

	c, _, server := setupTestClient(handler, approveGate())
	defer server.Close()

	balances, err := c.GetPortfolioBalances(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, 1000.00, balances.USD, 0.001)
	assert.InDelta(t, 0.05, balances.BTC, 0.0001)
	assert.InDelta(t, 0.0, balances.ETH, 0.0001)
	assert.InDelta(t, 3500.00, balances.TotalValueUSD, 0.001) // 1000 + 0.05*50000
}

func TestGetBalancesMockReturnsCopy(t *testing.T) {
	c, _, server := setupTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}), approveGate())
	defer server.Close()

	balances, err := c.GetBalances(context.Background())
	assert.NoError(t, err)
	balances["ZUSD"] = "0"
	delete(balances, "XXBT")

	again, err := c.GetBalances(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "1000.00", again["ZUSD"])
	assert.Equal(t, "0.05", again["XXBT"])
}

func TestStatusDuringConcurrentRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"c":["50000.0","0.01"],"v":["10","120"]}}}`))
	})
	c, _, server := setupTestClient(handler, approveGate())
	defer server.Close()
	// Expire the cache immediately so every call goes to the network.
	c.tickerCache = newTTLCache[map[string]TickerInfo](0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = c.GetTicker(context.Background(), []string{"XXBTZUSD"})
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = c.Status()
			}
		}()
	}
	wg.Wait()

	assert.True(t, c.Status().Connected)
}

func TestGetTickerCaching(t *testing.T) {
	hits := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"c":["50000.0","0.01"],"v":["10","120"]}}}`))
	})

	c, _, server := setupTestClient(handler, approveGate())
	defer server.Close()

	first, err := c.GetTicker(context.Background(), []string{"XXBTZUSD"})
	assert.NoError(t, err)
	second, err := c.GetTicker(context.Background(), []string{"XXBTZUSD"})
	assert.NoError(t, err)

	assert.Equal(t, 1, hits)
	assert.Equal(t, first["XXBTZUSD"].Price, second["XXBTZUSD"].Price)
}

func TestGetTickerFallback(t *testing.T) {
	// A non-retryable client error with a cold cache serves the hardcoded
	// fallback prices so read-only consumers keep rendering.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	c, _, server := setupTestClient(handler, approveGate())
	defer server.Close()

	tickers, err := c.GetTicker(context.Background(), []string{"XXBTZUSD"})
	assert.NoError(t, err)
	assert.Equal(t, fallbackPrices["XXBTZUSD"], tickers["XXBTZUSD"].Price)

	_, err = c.GetTicker(context.Background(), []string{"NOSUCHPAIR"})
	assert.Error(t, err)
}

func TestPlaceOrder(t *testing.T) {
	t.Run("RefusedWhenRealTradingDisabled", func(t *testing.T) {
		c, cfg, server := setupTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no network call expected")
		}), approveGate())
		defer server.Close()
		cfg.Trading.RealTradingEnabled = false

		_, err := c.PlaceOrder(context.Background(), &OrderRequest{
			Pair: "XXBTZUSD", Side: OrderSideSell, Volume: 0.001, Price: 50000,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "real trading is not enabled")
	})

	t.Run("RefusedWhenConfirmationRequired", func(t *testing.T) {
		c, cfg, server := setupTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no network call expected")
		}), approveGate())
		defer server.Close()
		cfg.Trading.RealTradingEnabled = true
		cfg.Trading.ConfirmationRequired = true

		_, err := c.PlaceOrder(context.Background(), &OrderRequest{
			Pair: "XXBTZUSD", Side: OrderSideSell, Volume: 0.001, Price: 50000,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "confirmation is required")
	})

	t.Run("RejectedBelowMinimumVolume", func(t *testing.T) {
		// $1 at 50000 implies volume 0.00002, below the 0.0001 minimum;
		// the rejection happens before any network call and reports the
		// USD-equivalent minimum.
		c, cfg, server := setupTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no network call expected")
		}), approveGate())
		defer server.Close()
		cfg.Trading.RealTradingEnabled = true
		cfg.Trading.ConfirmationRequired = false

		_, err := c.PlaceOrder(context.Background(), &OrderRequest{
			Pair: "XXBTZUSD", Side: OrderSideSell, Volume: 1.0 / 50000, Price: 50000,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "below exchange minimum")
		assert.Contains(t, err.Error(), "$5.00")
	})

	t.Run("DeniedByRiskGate", func(t *testing.T) {
		gate := &stubGate{decision: risk.Decision{Approved: false, Reason: "daily loss ceiling reached"}}
		c, cfg, server := setupTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no network call expected")
		}), gate)
		defer server.Close()
		cfg.Trading.RealTradingEnabled = true
		cfg.Trading.ConfirmationRequired = false

		_, err := c.PlaceOrder(context.Background(), &OrderRequest{
			Pair: "XXBTZUSD", Side: OrderSideBuy, Volume: 0.001, Price: 50000,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "daily loss ceiling reached")
		assert.True(t, gate.called)
	})

	t.Run("Submitted", func(t *testing.T) {
		gate := approveGate()
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/0/private/AddOrder", r.URL.Path)
			assert.Equal(t, "test_api_key", r.Header.Get("API-Key"))
			assert.NotEmpty(t, r.Header.Get("API-Sign"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":[],"result":{"descr":{"order":"sell 0.00100000 XBTUSD @ market"},"txid":["OABC12-XYZ"]}}`))
		})
		c, cfg, server := setupTestClient(handler, gate)
		defer server.Close()
		cfg.Trading.RealTradingEnabled = true
		cfg.Trading.ConfirmationRequired = false

		order, err := c.PlaceOrder(context.Background(), &OrderRequest{
			Strategy: "bot_a", Pair: "XXBTZUSD", Side: OrderSideSell, Volume: 0.001, Price: 50000,
		})
		assert.NoError(t, err)
		assert.Equal(t, "OABC12-XYZ", order.OrderID)
		assert.NotEmpty(t, order.ClientRef)
		assert.True(t, gate.called)
	})

	t.Run("ExchangeErrorClassified", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":["EOrder:Insufficient funds"],"result":null}`))
		})
		c, cfg, server := setupTestClient(handler, approveGate())
		defer server.Close()
		cfg.Trading.RealTradingEnabled = true
		cfg.Trading.ConfirmationRequired = false

		_, err := c.PlaceOrder(context.Background(), &OrderRequest{
			Pair: "XXBTZUSD", Side: OrderSideBuy, Volume: 0.001, Price: 50000,
		})
		assert.Error(t, err)
		var exErr *ExchangeError
		assert.ErrorAs(t, err, &exErr)
		assert.Equal(t, ErrKindInsufficientFunds, exErr.Kind)
	})
}

func TestClassifyExchangeError(t *testing.T) {
	testCases := []struct {
		msg      string
		expected ErrorKind
	}{
		{"EAPI:Invalid key", ErrKindAuth},
		{"EAPI:Invalid signature", ErrKindAuth},
		{"EAPI:Invalid nonce", ErrKindAuth},
		{"EOrder:Insufficient funds", ErrKindInsufficientFunds},
		{"EAPI:Rate limit exceeded", ErrKindRateLimited},
		{"EGeneral:Invalid arguments:volume", ErrKindInvalidAmount},
		{"EOrder:Order rejected", ErrKindRejected},
		{"EService:Unavailable", ErrKindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.msg, func(t *testing.T) {
			exErr := classifyExchangeError(tc.msg)
			assert.Equal(t, tc.expected, exErr.Kind)
			assert.Contains(t, exErr.Error(), tc.msg)
		})
	}
}

func TestGetOHLC(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/OHLC", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":[],"result":{
			"XXBTZUSD":[
				[1693000000,"50000.0","50100.0","49900.0","50050.0","50010.0","12.5",40],
				[1693003600,"50050.0","50200.0","50000.0","50150.0","50100.0","8.2",25]
			],
			"last":1693003600}}`))
	})

	c, _, server := setupTestClient(handler, approveGate())
	defer server.Close()

	candles, err := c.GetOHLC(context.Background(), "XXBTZUSD", 60)
	assert.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.InDelta(t, 50050.0, candles[0].Close, 0.001)
	assert.InDelta(t, 50150.0, candles[1].Close, 0.001)
	assert.InDelta(t, 8.2, candles[1].Volume, 0.001)
}
