package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"charity-trade-bot-go/internal/bot"
	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/database"
	"charity-trade-bot-go/internal/kraken"
	"charity-trade-bot-go/internal/models"
	"charity-trade-bot-go/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGateway struct {
	price      float64
	orderErr   error
	lastOrder  *kraken.OrderRequest
	tickCount  int
	totalValue float64
}

func (g *stubGateway) GetTicker(_ context.Context, pairs []string) (map[string]kraken.TickerInfo, error) {
	g.tickCount++
	out := make(map[string]kraken.TickerInfo, len(pairs))
	for _, p := range pairs {
		out[p] = kraken.TickerInfo{Pair: p, Price: g.price}
	}
	return out, nil
}

func (g *stubGateway) GetBalances(_ context.Context) (map[string]string, error) {
	return map[string]string{"ZUSD": "1000.00"}, nil
}

func (g *stubGateway) GetPortfolioBalances(_ context.Context) (*kraken.PortfolioBalances, error) {
	return &kraken.PortfolioBalances{USD: 1000, TotalValueUSD: g.totalValue}, nil
}

func (g *stubGateway) GetOHLC(_ context.Context, _ string, _ int) ([]kraken.Candle, error) {
	return nil, nil
}

func (g *stubGateway) PlaceOrder(_ context.Context, req *kraken.OrderRequest) (*kraken.OrderResult, error) {
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.lastOrder = req
	return &kraken.OrderResult{OrderID: "OSELL-1", Status: "ok"}, nil
}

func (g *stubGateway) CancelAllOrders(_ context.Context) (int, error) { return 0, nil }
func (g *stubGateway) TestConnection(_ context.Context) error         { return nil }
func (g *stubGateway) Status() kraken.GatewayStatus {
	return kraken.GatewayStatus{Connected: true, MockMode: true}
}

type stubSentiment struct{}

func (stubSentiment) Confidence(_ context.Context) float64 { return 0.9 }

func setupServer(t *testing.T) (*APIServer, *stubGateway, *database.Store) {
	t.Helper()
	cfg := &config.Config{
		Trading: config.Trading{
			MockMode:       true,
			Pair:           "XXBTZUSD",
			EthPair:        "XETHZUSD",
			MinOrderVolume: 0.0001,
			FeeRate:        0.0026,
		},
		Risk: config.Risk{
			MaxPositionUSD:   100,
			BotADailyLossUSD: 100,
			BotBDailyLossUSD: 50,
			BotAMaxPositions: 5,
			BotBMaxPositions: 3,
			MinConfidence:    0.3,
		},
		BotA: config.BotA{
			StartBalance: 100, CycleTarget: 150, TargetMultiplier: 1.5,
			MinConfidence: 0.5, TradeFraction: 0.5,
		},
		BotB: config.BotB{
			StartBalance: 100, MinConfidence: 0.7, TradeFraction: 0.1, DonationRate: 0.5,
		},
		Schedule: config.Schedule{
			BotACron:        "0 */5 * * * *",
			BotBCron:        "0 0 * * * *",
			DailySnapshot:   "0 0 0 * * *",
			WeeklySnapshot:  "0 0 0 * * 1",
			MonthlySnapshot: "0 0 0 1 * *",
			MonthlyReport:   "0 5 0 1 * *",
			SentimentTrim:   "0 30 * * * *",
		},
		Database: config.Database{DSN: filepath.Join(t.TempDir(), "server_test.db")},
	}
	store, err := database.NewStore(cfg)
	require.NoError(t, err)

	gateway := &stubGateway{price: 50000, totalValue: 3500}
	logger := zap.NewNop()
	gate := risk.NewGate(cfg, store, logger)

	sc := bot.StrategyContext{
		Logger:    logger,
		Cfg:       cfg,
		Gateway:   gateway,
		Store:     store,
		Sentiment: stubSentiment{},
	}
	scheduler := bot.NewScheduler(sc, bot.NewJobs(sc))
	require.NoError(t, scheduler.Register(context.Background(), []bot.Strategy{&bot.BotA{}, &bot.BotB{}}))

	return NewAPIServer(cfg, gateway, store, gate, scheduler, logger), gateway, store
}

func TestHealthHandler(t *testing.T) {
	srv, _, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OK")
}

func TestStatusHandler(t *testing.T) {
	srv, _, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.statusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		State   models.BotState      `json:"state"`
		Gateway kraken.GatewayStatus `json:"gateway"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 100.0, body.State.BotABalance)
	assert.True(t, body.Gateway.MockMode)
}

func TestSentimentHandler(t *testing.T) {
	srv, _, store := setupServer(t)

	rec := httptest.NewRecorder()
	srv.sentimentHandler(rec, httptest.NewRequest(http.MethodGet, "/api/sentiment", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.RecordSentiment(&models.SentimentReading{
		FearGreedIndex: 72, TrendScore: 0.2, Confidence: 1.0,
	}))

	rec = httptest.NewRecorder()
	srv.sentimentHandler(rec, httptest.NewRequest(http.MethodGet, "/api/sentiment", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var reading models.SentimentReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
	assert.Equal(t, 72, reading.FearGreedIndex)
}

func TestTradesHandler(t *testing.T) {
	srv, _, store := setupServer(t)
	require.NoError(t, store.RecordTrade(&models.Trade{
		Strategy: models.StrategyBotA, Pair: "XXBTZUSD", Side: models.SideBuy,
	}))

	rec := httptest.NewRecorder()
	srv.tradesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var trades []models.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, models.StrategyBotA, trades[0].Strategy)
}

func TestTriggerHandler(t *testing.T) {
	srv, _, store := setupServer(t)

	t.Run("RunsTickOnDemand", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.triggerHandler(rec, httptest.NewRequest(http.MethodPost, "/api/trigger/bot_a", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		trades, err := store.RecentTrades(10)
		require.NoError(t, err)
		assert.Len(t, trades, 1)
	})

	t.Run("UnknownStrategy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.triggerHandler(rec, httptest.NewRequest(http.MethodPost, "/api/trigger/bot_c", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("RejectsGet", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.triggerHandler(rec, httptest.NewRequest(http.MethodGet, "/api/trigger/bot_a", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestSellHandler(t *testing.T) {
	t.Run("PlacesSellAndRecordsTrade", func(t *testing.T) {
		srv, gateway, store := setupServer(t)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sell", strings.NewReader(`{"usdAmount":50}`))
		srv.sellHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gateway.lastOrder)
		assert.Equal(t, models.SideSell, gateway.lastOrder.Side)
		assert.InDelta(t, 0.001, gateway.lastOrder.Volume, 1e-9)

		trades, err := store.RecentTrades(10)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, "OSELL-1", trades[0].OrderRef)
	})

	t.Run("RefusalMapsToUnprocessable", func(t *testing.T) {
		srv, gateway, _ := setupServer(t)
		gateway.orderErr = fmt.Errorf("order denied by risk gate: notional exceeds ceiling")

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sell", strings.NewReader(`{"usdAmount":50}`))
		srv.sellHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "risk gate")
	})

	t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
		srv, _, _ := setupServer(t)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sell", strings.NewReader(`{"usdAmount":0}`))
		srv.sellHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RejectsInvalidBody", func(t *testing.T) {
		srv, _, _ := setupServer(t)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sell", strings.NewReader("not json"))
		srv.sellHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
