package simulator

import (
	"math"

	"dipsim/internal/models"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of decimals executed prices, dollar amounts and
// cumulative values are rounded to. Rounding is half away from zero.
const PricePrecision = 4

// SharesPerFill is the number of shares bought each time a level triggers.
const SharesPerFill = 1

// Fill is a triggered limit order for one level on one day, before the
// symbol's running totals are attached.
type Fill struct {
	Level         float64
	LimitPrice    decimal.Decimal
	ExecutedPrice decimal.Decimal
}

// DayUsable reports whether a bar can be evaluated at all: it needs a positive
// previous close and a positive, finite low.
func DayUsable(bar models.DailyBar) bool {
	if !bar.HasPreviousClose() {
		return false
	}
	return !math.IsNaN(bar.Low) && !math.IsInf(bar.Low, 0) && bar.Low > 0
}

// LimitPrice is the resting price of a buy order placed level percent below
// the previous close.
func LimitPrice(previousClose, level float64) decimal.Decimal {
	return decimal.NewFromFloat(previousClose).
		Mul(hundred.Sub(decimal.NewFromFloat(level))).
		Div(hundred)
}

// EvaluateTrigger decides whether a limit order at level would have filled on
// bar. Limit orders fill exactly at the limit, never better. The bar must be
// usable (see DayUsable).
func EvaluateTrigger(bar models.DailyBar, level float64) (Fill, bool) {
	limit := LimitPrice(*bar.PreviousClose, level)
	if decimal.NewFromFloat(bar.Low).GreaterThan(limit) {
		return Fill{}, false
	}
	return Fill{
		Level:         level,
		LimitPrice:    limit,
		ExecutedPrice: limit.Round(PricePrecision),
	}, true
}
