package history

import (
	"math"

	"dipsim/internal/models"

	"github.com/shopspring/decimal"
)

// BarStats are the derived columns of the processed history export.
// Percentages are relative to the previous close and are NaN when there is none.
type BarStats struct {
	AvgDailyPrice      float64
	DailyGainLossPct   float64
	OpenVsPrevClosePct float64
	LowVsPrevClosePct  float64
	MaxPercentDecline  float64
}

// AvgDailyPrice is the mean of open, high, low and close, rounded to 4 decimals.
// Missing prices are left out of the mean; NaN if all are missing.
func AvgDailyPrice(b models.DailyBar) float64 {
	sum := decimal.Zero
	n := int64(0)
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if !finite(v) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(v))
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum.Div(decimal.NewFromInt(n)).Round(4).InexactFloat64()
}

// Stats computes the processed-history columns for one bar.
func Stats(b models.DailyBar) BarStats {
	st := BarStats{
		AvgDailyPrice:      AvgDailyPrice(b),
		DailyGainLossPct:   math.NaN(),
		OpenVsPrevClosePct: math.NaN(),
		LowVsPrevClosePct:  math.NaN(),
		MaxPercentDecline:  math.NaN(),
	}
	if !b.HasPreviousClose() {
		return st
	}
	prev := *b.PreviousClose
	st.DailyGainLossPct = pctChange(b.Close, prev)
	st.OpenVsPrevClosePct = pctChange(b.Open, prev)
	st.LowVsPrevClosePct = pctChange(b.Low, prev)
	if finite(b.Low) {
		st.MaxPercentDecline = percentOf(decimal.NewFromFloat(prev).Sub(decimal.NewFromFloat(b.Low)), prev)
	}
	return st
}

func pctChange(v, prev float64) float64 {
	if !finite(v) {
		return math.NaN()
	}
	return percentOf(decimal.NewFromFloat(v).Sub(decimal.NewFromFloat(prev)), prev)
}

func percentOf(delta decimal.Decimal, prev float64) float64 {
	return delta.Div(decimal.NewFromFloat(prev)).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
