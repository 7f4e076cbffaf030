package indicator

// RSINeutral is returned when there is not enough history for RSI.
const RSINeutral = 50.0

// RSI returns the relative strength index over the trailing period deltas,
// using simple averages of gains and losses.
//
// Needs period+1 prices; returns RSINeutral below that.
// Returns 100 when the average loss is zero.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return RSINeutral
	}

	window := prices[len(prices)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
