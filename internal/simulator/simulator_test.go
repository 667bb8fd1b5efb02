package simulator

import (
	"math"
	"testing"
	"time"

	"dipsim/internal/history"
	"dipsim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(symbol string, n int, low, close float64) models.DailyBar {
	return models.DailyBar{Symbol: symbol, Date: day(n), Open: close, High: close, Low: low, Close: close}
}

func withPrev(b models.DailyBar, prev float64) models.DailyBar {
	b.PreviousClose = &prev
	return b
}

func levelsUpTo(t *testing.T, max float64) []float64 {
	t.Helper()
	levels, err := GenerateLevels(models.DipLevelConfig{Mode: models.DipModeRange, Step: 1, Max: max})
	require.NoError(t, err)
	return levels
}

func TestGenerateLevels_Range(t *testing.T) {
	levels, err := GenerateLevels(models.DipLevelConfig{Mode: models.DipModeRange, Step: 1, Max: 30})
	require.NoError(t, err)
	require.Len(t, levels, 30)
	assert.Equal(t, 1.0, levels[0])
	assert.Equal(t, 30.0, levels[29])

	again, err := GenerateLevels(models.DipLevelConfig{Mode: models.DipModeRange, Step: 1, Max: 30})
	require.NoError(t, err)
	assert.Equal(t, levels, again, "generation must be idempotent")
}

func TestGenerateLevels_RangeWithMinAndFractionalStep(t *testing.T) {
	levels, err := GenerateLevels(models.DipLevelConfig{Mode: models.DipModeRange, Min: 0.5, Step: 0.1, Max: 0.9})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6, 0.7, 0.8, 0.9}, levels)

	levels, err = GenerateLevels(models.DipLevelConfig{Mode: models.DipModeRange, Min: 5, Step: 5, Max: 30})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10, 15, 20, 25, 30}, levels)
}

func TestGenerateLevels_ListIsSortedAndDeduplicated(t *testing.T) {
	levels, err := GenerateLevels(models.DipLevelConfig{Mode: models.DipModeList, Levels: []float64{5, 1, 3, 3, 2, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, levels)
}

func TestGenerateLevels_Errors(t *testing.T) {
	cases := map[string]models.DipLevelConfig{
		"zero step":      {Mode: models.DipModeRange, Step: 0, Max: 10},
		"negative step":  {Mode: models.DipModeRange, Step: -1, Max: 10},
		"max below step": {Mode: models.DipModeRange, Step: 5, Max: 2},
		"min above max":  {Mode: models.DipModeRange, Min: 20, Step: 1, Max: 10},
		"max above 100":  {Mode: models.DipModeRange, Step: 1, Max: 120},
		"empty list":     {Mode: models.DipModeList},
		"level is zero":  {Mode: models.DipModeList, Levels: []float64{0, 1}},
		"level is nan":   {Mode: models.DipModeList, Levels: []float64{math.NaN()}},
		"unknown mode":   {Mode: "fibonacci", Step: 1, Max: 5},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := GenerateLevels(cfg)
			assert.ErrorIs(t, err, ErrInvalidDipConfig)
		})
	}
}

func TestEvaluateTrigger(t *testing.T) {
	b := withPrev(bar("X", 1, 94, 95), 100)

	fill, ok := EvaluateTrigger(b, 6)
	require.True(t, ok, "limit 94 equals the low and must fill")
	assert.Equal(t, 6.0, fill.Level)
	assert.Equal(t, 94.0, fill.ExecutedPrice.InexactFloat64())

	_, ok = EvaluateTrigger(b, 7)
	assert.False(t, ok, "limit 93 is below the low")
}

func TestEvaluateTrigger_RoundsExecutedPrice(t *testing.T) {
	b := withPrev(bar("ALLY", 1, 16.10, 16.22), 16.95)

	fill, ok := EvaluateTrigger(b, 3)
	require.True(t, ok)
	assert.Equal(t, "16.4415", fill.LimitPrice.String())
	assert.Equal(t, 16.4415, fill.ExecutedPrice.InexactFloat64())

	b = withPrev(bar("Y", 1, 1, 1), 12.34567)
	fill, ok = EvaluateTrigger(b, 1)
	require.True(t, ok)
	// 12.34567 * 0.99 = 12.2222133
	assert.Equal(t, 12.2222, fill.ExecutedPrice.InexactFloat64())
}

func TestSimulateDay_ThresholdCorrectness(t *testing.T) {
	b := withPrev(bar("X", 1, 88, 90), 100)

	fills := SimulateDay(b, levelsUpTo(t, 15))
	require.Len(t, fills, 12)
	for i, f := range fills {
		level := float64(i + 1)
		assert.Equal(t, level, f.Level, "fills are in ascending level order")
		assert.Equal(t, 100-level, f.ExecutedPrice.InexactFloat64())
	}
}

func TestSimulateDay_ZeroGuard(t *testing.T) {
	levels := levelsUpTo(t, 30)

	assert.Empty(t, SimulateDay(bar("X", 0, 50, 60), levels), "first bar has no previous close")
	assert.Empty(t, SimulateDay(withPrev(bar("X", 1, 50, 60), 0), levels), "zero previous close")
	assert.Empty(t, SimulateDay(withPrev(bar("X", 1, 50, 60), -3), levels), "negative previous close")
	assert.Empty(t, SimulateDay(withPrev(bar("X", 1, 50, 60), math.NaN()), levels), "nan previous close")
	assert.Empty(t, SimulateDay(withPrev(bar("X", 1, math.NaN(), 60), 100), levels), "missing low")
	assert.Empty(t, SimulateDay(withPrev(bar("X", 1, 0, 60), 100), levels), "zero low")
}

func TestSimulateSymbol_EndToEndScenario(t *testing.T) {
	store := history.NewStore([]models.DailyBar{
		{Symbol: "X", Date: day(0), Open: 100, High: 101, Low: 99, Close: 100},
		{Symbol: "X", Date: day(1), Open: 99, High: 99, Low: 94, Close: 95},
	})
	levels, err := GenerateLevels(models.DipLevelConfig{Mode: models.DipModeList, Levels: []float64{1, 2, 3, 4, 5}})
	require.NoError(t, err)

	events, totals := SimulateSymbol(store.History("X"), levels)
	require.Len(t, events, 5)

	wantPrice := []float64{99, 98, 97, 96, 95}
	wantInvested := []float64{99, 197, 294, 390, 485}
	wantValue := []float64{95, 190, 285, 380, 475}
	for i, ev := range events {
		assert.Equal(t, day(1), ev.Date, "day 1 has no previous close and yields nothing")
		assert.Equal(t, float64(i+1), ev.Level)
		assert.Equal(t, wantPrice[i], ev.ExecutedPrice)
		assert.Equal(t, wantPrice[i], ev.DollarsInvested)
		assert.Equal(t, int64(1), ev.SharesPurchased)
		assert.Equal(t, int64(i+1), ev.CumulativeShares)
		assert.Equal(t, wantInvested[i], ev.CumulativeInvested)
		assert.Equal(t, wantValue[i], ev.CumulativeValue)
		assert.Equal(t, 100.0, ev.PreviousClose)
	}
	assert.Equal(t, int64(5), totals.Shares)
	assert.Equal(t, "485", totals.Invested.String())
}

func TestSimulateSymbol_Monotonic(t *testing.T) {
	closes := []float64{100, 97, 99, 90, 92, 85, 88, 88, 80}
	var bars []models.DailyBar
	for i, c := range closes {
		bars = append(bars, models.DailyBar{Symbol: "M", Date: day(i), Open: c, High: c + 1, Low: c - 2, Close: c})
	}
	store := history.NewStore(bars)
	events, _ := SimulateSymbol(store.History("M"), levelsUpTo(t, 10))
	require.NotEmpty(t, events)

	var prevShares int64
	prevInvested := 0.0
	for _, ev := range events {
		assert.Equal(t, prevShares+ev.SharesPurchased, ev.CumulativeShares)
		assert.InDelta(t, prevInvested+ev.DollarsInvested, ev.CumulativeInvested, 1e-9)
		assert.NotEqual(t, day(0), ev.Date, "first bar never produces events")
		prevShares, prevInvested = ev.CumulativeShares, ev.CumulativeInvested
	}
}

func TestRun_DeterministicAndIndependent(t *testing.T) {
	a := []models.DailyBar{
		{Symbol: "A", Date: day(0), Open: 50, High: 50, Low: 50, Close: 50},
		{Symbol: "A", Date: day(1), Open: 50, High: 50, Low: 40, Close: 45},
		{Symbol: "A", Date: day(2), Open: 45, High: 45, Low: 30, Close: 35},
	}
	b := []models.DailyBar{
		{Symbol: "B", Date: day(0), Open: 10, High: 10, Low: 10, Close: 10},
		{Symbol: "B", Date: day(1), Open: 10, High: 10, Low: 9.5, Close: 9.8},
	}
	levels := levelsUpTo(t, 30)

	onlyB := Run(history.NewStore(b), levels, 1)
	both := Run(history.NewStore(append(append([]models.DailyBar{}, a...), b...)), levels, 4)

	require.Len(t, onlyB, 1)
	require.Len(t, both, 2)
	assert.Equal(t, "A", both[0].Symbol)
	assert.Equal(t, "B", both[1].Symbol)
	assert.NotEmpty(t, both[0].Events)
	assert.Equal(t, onlyB[0].Events, both[1].Events, "symbol A must not affect B's totals")

	again := Run(history.NewStore(append(append([]models.DailyBar{}, b...), a...)), levels, 2)
	assert.Equal(t, Aggregate(both), Aggregate(again), "runs must be deterministic")
}

func TestAggregate_PreservesPerSymbolOrder(t *testing.T) {
	results := []SymbolResult{
		{Symbol: "B", Events: []models.DipEvent{{Symbol: "B", Level: 1}, {Symbol: "B", Level: 2}}},
		{Symbol: "A"},
		{Symbol: "C", Events: []models.DipEvent{{Symbol: "C", Level: 1}}},
	}
	all := Aggregate(results)
	require.Len(t, all, 3)
	assert.Equal(t, "B", all[0].Symbol)
	assert.Equal(t, 2.0, all[1].Level)
	assert.Equal(t, "C", all[2].Symbol)
}
