// Package dca builds the dollar-cost-averaging baselines the buy-on-dip
// results are compared against.
package dca

import (
	"fmt"
	"math"

	"dipsim/internal/history"
	"dipsim/internal/models"

	"github.com/shopspring/decimal"
)

const (
	sharePrecision = 6
	valuePrecision = 2
)

// periodKey maps a bar to the purchase period it belongs to.
type periodKey func(models.DailyBar) string

func monthKey(b models.DailyBar) string {
	return fmt.Sprintf("%04d-%02d", b.Date.Year(), b.Date.Month())
}

func isoWeekKey(b models.DailyBar) string {
	y, w := b.Date.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// Monthly buys amount dollars on the first usable trading day of every month.
func Monthly(bars []models.DailyBar, amount float64) []models.DCAPurchase {
	return accumulate(bars, amount, models.StrategyDCAMonthly, monthKey)
}

// Weekly buys amount dollars on the first usable trading day of every ISO week.
func Weekly(bars []models.DailyBar, amount float64) []models.DCAPurchase {
	return accumulate(bars, amount, models.StrategyDCAWeekly, isoWeekKey)
}

// accumulate picks the first bar of each period with a positive average price
// and buys at that average. bars must be one symbol in ascending date order.
func accumulate(bars []models.DailyBar, amount float64, strategy string, key periodKey) []models.DCAPurchase {
	if !(amount > 0) {
		return nil
	}
	dollars := decimal.NewFromFloat(amount)

	var (
		out         []models.DCAPurchase
		lastPeriod  string
		cumShares   decimal.Decimal
		cumInvested decimal.Decimal
	)
	for _, b := range bars {
		period := key(b)
		if period == lastPeriod {
			continue
		}
		avg := history.AvgDailyPrice(b)
		if math.IsNaN(avg) || avg <= 0 {
			continue
		}
		lastPeriod = period

		price := decimal.NewFromFloat(avg)
		shares := dollars.DivRound(price, sharePrecision)
		cumShares = cumShares.Add(shares)
		cumInvested = cumInvested.Add(dollars)

		value := math.NaN()
		if !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0) {
			value = cumShares.Mul(decimal.NewFromFloat(b.Close)).Round(valuePrecision).InexactFloat64()
		}

		out = append(out, models.DCAPurchase{
			Symbol:             b.Symbol,
			Strategy:           strategy,
			Date:               b.Date,
			BuyPrice:           avg,
			SharesPurchased:    shares.InexactFloat64(),
			DollarsInvested:    amount,
			CumulativeShares:   cumShares.InexactFloat64(),
			CumulativeInvested: cumInvested.InexactFloat64(),
			CumulativeValue:    value,
			Close:              b.Close,
		})
	}
	return out
}
