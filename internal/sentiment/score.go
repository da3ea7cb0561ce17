package sentiment

// Trend score buckets.
const (
	TrendUp   = 0.2
	TrendFlat = 0.0
	TrendDown = -0.2
)

// MapFearGreed maps a fear & greed index value (0-100) to a base confidence
// bucket.
func MapFearGreed(value int) float64 {
	switch {
	case value <= 20:
		return 0.1
	case value <= 40:
		return 0.3
	case value <= 60:
		return 0.6
	case value <= 80:
		return 0.8
	default:
		return 1.0
	}
}

// Clamp bounds a confidence score into [0,1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// EMA computes an exponential moving average over the series with the given
// period, seeded by the simple average of the first period values. Returns
// 0 when the series is shorter than the period.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}

	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)

	k := 2.0 / (float64(period) + 1.0)
	for _, v := range values[period:] {
		ema = v*k + ema*(1.0-k)
	}
	return ema
}

// BucketTrend compares the current price to a moving average and returns a
// trend bucket, with a deadband (in percent) treated as flat.
func BucketTrend(price, average, deadbandPct float64) float64 {
	if average <= 0 {
		return TrendFlat
	}
	band := average * deadbandPct / 100
	switch {
	case price > average+band:
		return TrendUp
	case price < average-band:
		return TrendDown
	default:
		return TrendFlat
	}
}
