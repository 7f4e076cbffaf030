package indicator

import "trading-setups/internal/model"

// Pivots holds classic floor-trader pivot levels.
type Pivots struct {
	P  float64 `json:"p"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

// PivotPoints computes floor pivots from a reference bar (usually the prior
// session or the latest higher-timeframe bar).
func PivotPoints(bar model.Bar) Pivots {
	p := (bar.High + bar.Low + bar.Close) / 3
	rng := bar.High - bar.Low
	return Pivots{
		P:  p,
		R1: 2*p - bar.Low,
		S1: 2*p - bar.High,
		R2: p + rng,
		S2: p - rng,
		R3: bar.High + 2*(p-bar.Low),
		S3: bar.Low - 2*(bar.High-p),
	}
}
