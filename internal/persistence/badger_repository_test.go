package persistence

import (
	"math"
	"testing"
	"time"

	"dipsim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewBadgerRepository("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func day(s string) time.Time {
	d, _ := time.Parse(models.DateLayout, s)
	return d
}

func TestLoadState_Empty(t *testing.T) {
	repo := newTestRepo(t)
	state, err := repo.LoadState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSaveLoadState(t *testing.T) {
	repo := newTestRepo(t)
	in := &models.RunState{
		RunID:   "7n42DGM5Tflk9n8mt7Fhc7",
		Seq:     3,
		Version: models.RunStateVersion,
		Status:  models.RunDone,
		Levels:  []float64{1, 2, 3},
		Symbols: map[string]*models.SymbolState{
			"SPLG": {Symbol: "SPLG", Status: models.SymbolSimulated, Bars: 250, Events: 12, Shares: 12, Invested: "612.5"},
		},
	}
	require.NoError(t, repo.SaveState(in))

	out, err := repo.LoadState()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.RunID, out.RunID)
	assert.Equal(t, int64(3), out.Seq)
	assert.Equal(t, "612.5", out.Symbols["SPLG"].Invested)
}

func TestSaveLoadBars_KeepsMissingPrices(t *testing.T) {
	repo := newTestRepo(t)
	series := &models.CachedSeries{
		Source: "yahoo",
		Symbol: "QQQ",
		Start:  day("2024-01-01"),
		End:    day("2024-02-01"),
		Bars: []models.DailyBar{
			{Symbol: "QQQ", Date: day("2024-01-02"), Open: 400, High: 405, Low: 398, Close: 402, Volume: 1e6},
			{Symbol: "QQQ", Date: day("2024-01-03"), Open: math.NaN(), High: 404, Low: math.NaN(), Close: 401, Volume: 9e5},
		},
	}
	require.NoError(t, repo.SaveBars(series))

	out, err := repo.LoadBars("yahoo", "QQQ")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Len(t, out.Bars, 2)
	assert.Equal(t, 398.0, out.Bars[0].Low)
	assert.True(t, math.IsNaN(out.Bars[1].Low))
	assert.True(t, math.IsNaN(out.Bars[1].Open))
	assert.Equal(t, day("2024-01-03"), out.Bars[1].Date)
	assert.True(t, out.Covers(day("2024-01-05"), day("2024-01-20")))

	missing, err := repo.LoadBars("binance", "QQQ")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
