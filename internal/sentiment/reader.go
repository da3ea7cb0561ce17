package sentiment

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"charity-trade-bot-go/internal/config"
	"charity-trade-bot-go/internal/database"
	"charity-trade-bot-go/internal/kraken"
	"charity-trade-bot-go/internal/metrics"
	"charity-trade-bot-go/internal/models"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// neutralConfidence is returned whenever a sentiment computation fails.
// The strategies treat 0.5 as "no conviction either way".
const neutralConfidence = 0.5

// OHLCSource supplies candles for the trend signal.
type OHLCSource interface {
	GetOHLC(ctx context.Context, pair string, intervalMinutes int) ([]kraken.Candle, error)
}

// Reader fetches the public fear & greed index, combines it with a price
// trend signal and persists the resulting confidence score.
type Reader struct {
	cfg    *config.Config
	store  *database.Store
	ohlc   OHLCSource
	client *resty.Client
	logger *zap.Logger

	// fetchMu guards the external-fetch bookkeeping. The reuse window is
	// keyed off the last external fetch; readings persisted by Confidence
	// must not extend it.
	fetchMu     sync.Mutex
	lastFetchAt time.Time
	lastValue   int

	now func() time.Time
}

// NewReader creates a new sentiment reader.
func NewReader(cfg *config.Config, store *database.Store, ohlc OHLCSource, logger *zap.Logger) *Reader {
	client := resty.New().
		SetBaseURL(cfg.Sentiment.ApiURL).
		SetTimeout(10 * time.Second)

	return &Reader{cfg: cfg, store: store, ohlc: ohlc, client: client, logger: logger, now: time.Now}
}

// fearGreedResponse is the sentiment API payload.
type fearGreedResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

// FetchFearGreed returns the current fear & greed index value (0-100). The
// external API is polled at most once per configured interval; inside the
// window the last fetched value is reused without a network call.
func (r *Reader) FetchFearGreed(ctx context.Context) (int, error) {
	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	window := time.Duration(r.cfg.Sentiment.FetchIntervalMin) * time.Minute
	if !r.lastFetchAt.IsZero() && r.now().Sub(r.lastFetchAt) < window {
		return r.lastValue, nil
	}

	var payload fearGreedResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("")
	if err != nil {
		return 0, fmt.Errorf("fear & greed fetch failed: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("fear & greed fetch failed with status %s", resp.Status())
	}
	if len(payload.Data) == 0 {
		return 0, fmt.Errorf("fear & greed response contained no data")
	}

	value, err := strconv.Atoi(payload.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("could not parse fear & greed value %q: %w", payload.Data[0].Value, err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("fear & greed value %d out of range", value)
	}

	r.lastValue = value
	r.lastFetchAt = r.now()

	r.logger.Debug("Fetched fear & greed index",
		zap.Int("value", value),
		zap.String("classification", payload.Data[0].Classification),
	)
	return value, nil
}

// TrendScore compares the latest close to a long exponential moving average
// over hourly candles, bucketed with a deadband. Any failure reads as flat.
func (r *Reader) TrendScore(ctx context.Context) float64 {
	candles, err := r.ohlc.GetOHLC(ctx, r.cfg.Sentiment.TrendPair, 60)
	if err != nil {
		r.logger.Warn("Trend score unavailable, treating as flat", zap.Error(err))
		return TrendFlat
	}
	if len(candles) < r.cfg.Sentiment.EmaPeriod {
		r.logger.Warn("Not enough candles for trend score",
			zap.Int("have", len(candles)),
			zap.Int("need", r.cfg.Sentiment.EmaPeriod),
		)
		return TrendFlat
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	ema := EMA(closes, r.cfg.Sentiment.EmaPeriod)
	return BucketTrend(closes[len(closes)-1], ema, r.cfg.Sentiment.TrendDeadbandPct)
}

// Confidence computes the combined confidence score in [0,1] and persists a
// sentiment reading. Failures fall back to a neutral 0.5 instead of
// propagating.
func (r *Reader) Confidence(ctx context.Context) float64 {
	fgi, err := r.FetchFearGreed(ctx)
	if err != nil {
		r.logger.Warn("Sentiment unavailable, using neutral confidence", zap.Error(err))
		return neutralConfidence
	}

	trend := r.TrendScore(ctx)
	score := Clamp(MapFearGreed(fgi) + trend)

	reading := &models.SentimentReading{
		FearGreedIndex: fgi,
		TrendScore:     trend,
		Confidence:     score,
	}
	if err := r.store.RecordSentiment(reading); err != nil {
		r.logger.Error("Failed to persist sentiment reading", zap.Error(err))
	}

	metrics.ConfidenceScore.Set(score)
	r.logger.Info("Computed confidence score",
		zap.Int("fear_greed", fgi),
		zap.Float64("trend", trend),
		zap.Float64("confidence", score),
	)
	return score
}
