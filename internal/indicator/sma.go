package indicator

// SMA returns the mean of the last period prices.
// With fewer than period samples it returns the last price.
func SMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return last(prices)
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
