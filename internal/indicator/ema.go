package indicator

// EMA returns the exponential moving average of prices.
// The average is seeded with the SMA of the first period values, then
// ema = (price - ema) * (2/(period+1)) + ema for every later price.
// With fewer than period samples it returns the last price.
func EMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return last(prices)
	}

	sum := 0.0
	for _, p := range prices[:period] {
		sum += p
	}
	ema := sum / float64(period)

	k := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		ema = (p-ema)*k + ema
	}
	return ema
}
