package simulator

import (
	"math"

	"dipsim/internal/models"

	"github.com/shopspring/decimal"
)

// Accumulator holds the running totals of one symbol's event stream.
// It is a value: Apply returns the next accumulator instead of mutating.
type Accumulator struct {
	Shares   int64
	Invested decimal.Decimal
}

// Apply folds one fill of bar into the accumulator and returns the updated
// accumulator together with the finished event.
func (a Accumulator) Apply(bar models.DailyBar, fill Fill) (Accumulator, models.DipEvent) {
	dollars := fill.ExecutedPrice.Mul(decimal.NewFromInt(SharesPerFill))
	next := Accumulator{
		Shares:   a.Shares + SharesPerFill,
		Invested: a.Invested.Add(dollars),
	}
	value := math.NaN()
	if !math.IsNaN(bar.Close) && !math.IsInf(bar.Close, 0) {
		value = decimal.NewFromInt(next.Shares).Mul(decimal.NewFromFloat(bar.Close)).Round(PricePrecision).InexactFloat64()
	}

	return next, models.DipEvent{
		Symbol:             bar.Symbol,
		Date:               bar.Date,
		Level:              fill.Level,
		LimitPrice:         fill.LimitPrice.InexactFloat64(),
		ExecutedPrice:      fill.ExecutedPrice.InexactFloat64(),
		SharesPurchased:    SharesPerFill,
		DollarsInvested:    dollars.InexactFloat64(),
		CumulativeShares:   next.Shares,
		CumulativeInvested: next.Invested.InexactFloat64(),
		CumulativeValue:    value,
		Close:              bar.Close,
		PreviousClose:      *bar.PreviousClose,
	}
}

// SimulateSymbol runs the buy-on-dip fold over one symbol's ascending bars.
// Unusable days are skipped; the accumulator is never reset inside the run.
func SimulateSymbol(bars []models.DailyBar, levels []float64) ([]models.DipEvent, Accumulator) {
	var (
		acc    Accumulator
		events []models.DipEvent
		ev     models.DipEvent
	)
	for _, bar := range bars {
		for _, fill := range SimulateDay(bar, levels) {
			acc, ev = acc.Apply(bar, fill)
			events = append(events, ev)
		}
	}
	return events, acc
}
