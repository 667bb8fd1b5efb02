package dca

import (
	"math"
	"testing"
	"time"

	"dipsim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(date string, o, h, l, c float64) models.DailyBar {
	d, _ := time.Parse(models.DateLayout, date)
	return models.DailyBar{Symbol: "TQQQ", Date: d, Open: o, High: h, Low: l, Close: c}
}

func TestMonthly(t *testing.T) {
	bars := []models.DailyBar{
		bar("2024-01-02", 10, 12, 8, 10),  // avg 10
		bar("2024-01-03", 20, 20, 20, 20), // same month, ignored
		bar("2024-02-01", 25, 25, 25, 25),
		bar("2024-02-02", 30, 30, 30, 30),
		bar("2024-03-01", 30, 30, 30, 40), // avg 32.5
	}
	got := Monthly(bars, 100)
	require.Len(t, got, 3)

	assert.Equal(t, models.StrategyDCAMonthly, got[0].Strategy)
	assert.Equal(t, 10.0, got[0].BuyPrice)
	assert.Equal(t, 10.0, got[0].SharesPurchased)
	assert.Equal(t, 100.0, got[0].CumulativeValue)

	assert.Equal(t, 4.0, got[1].SharesPurchased)
	assert.Equal(t, 14.0, got[1].CumulativeShares)
	assert.Equal(t, 200.0, got[1].CumulativeInvested)
	assert.Equal(t, 350.0, got[1].CumulativeValue)

	assert.Equal(t, 32.5, got[2].BuyPrice)
	assert.Equal(t, 3.076923, got[2].SharesPurchased)
	assert.Equal(t, 17.076923, got[2].CumulativeShares)
	assert.Equal(t, 300.0, got[2].CumulativeInvested)
	assert.Equal(t, 683.08, got[2].CumulativeValue)
}

func TestWeekly_UsesISOWeeksAcrossYearEnd(t *testing.T) {
	bars := []models.DailyBar{
		bar("2020-12-28", 10, 10, 10, 10), // ISO 2020-W53
		bar("2020-12-31", 10, 10, 10, 10), // same week
		bar("2021-01-04", 20, 20, 20, 20), // 2021-W01
		bar("2021-01-05", 20, 20, 20, 20),
	}
	got := Weekly(bars, 25)
	require.Len(t, got, 2)
	assert.Equal(t, models.StrategyDCAWeekly, got[0].Strategy)
	assert.Equal(t, 2.5, got[0].SharesPurchased)
	assert.Equal(t, 1.25, got[1].SharesPurchased)
	assert.Equal(t, 50.0, got[1].CumulativeInvested)
}

func TestAccumulate_SkipsUnusableFirstDay(t *testing.T) {
	bars := []models.DailyBar{
		bar("2024-01-02", math.NaN(), math.NaN(), math.NaN(), math.NaN()),
		bar("2024-01-03", 50, 50, 50, 50),
	}
	got := Monthly(bars, 100)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-03", got[0].Date.Format(models.DateLayout))
	assert.Equal(t, 2.0, got[0].SharesPurchased)

	assert.Empty(t, Monthly(bars, 0), "non-positive amount buys nothing")
}
