package storage

import (
	"context"
	"math"
	"testing"
	"time"

	"dipsim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, _ := time.Parse(models.DateLayout, s)
	return d
}

func testRun(id string, seq int64) models.RunInfo {
	return models.RunInfo{
		ID:        id,
		Seq:       seq,
		StartedAt: time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC),
		Source:    "yahoo",
		Symbols:   []string{"SPLG", "QQQ"},
		Levels:    []float64{1, 2.5},
	}
}

func testEvents() []models.DipEvent {
	return []models.DipEvent{
		{Symbol: "SPLG", Date: day("2024-01-03"), Level: 1, LimitPrice: 99, ExecutedPrice: 99, SharesPurchased: 1,
			DollarsInvested: 99, CumulativeShares: 1, CumulativeInvested: 99, CumulativeValue: 95, Close: 95, PreviousClose: 100},
		{Symbol: "SPLG", Date: day("2024-01-03"), Level: 2.5, LimitPrice: 97.5, ExecutedPrice: 97.5, SharesPurchased: 1,
			DollarsInvested: 97.5, CumulativeShares: 2, CumulativeInvested: 196.5, CumulativeValue: math.NaN(), Close: math.NaN(), PreviousClose: 100},
	}
}

func newTestDB(t *testing.T) *SQLiteSink {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteSink(db)
}

func TestGetNextRunID(t *testing.T) {
	sink := newTestDB(t)
	for want := int64(1); want <= 3; want++ {
		got, err := GetNextRunID(sink.db)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSQLiteSink_WriteEventsReplacesRun(t *testing.T) {
	sink := newTestDB(t)
	ctx := context.Background()
	run := testRun("run-a", 1)

	require.NoError(t, sink.WriteEvents(ctx, run, testEvents()))
	require.NoError(t, sink.WriteEvents(ctx, run, testEvents()), "rewriting a run must not violate keys")

	got, err := LoadEvents(sink.db, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day("2024-01-03"), got[0].Date)
	assert.Equal(t, 2.5, got[1].Level)
	assert.Equal(t, 196.5, got[1].CumulativeInvested)
	assert.True(t, math.IsNaN(got[1].CumulativeValue))
	assert.True(t, math.IsNaN(got[1].Close))
}

func TestRecentRuns(t *testing.T) {
	sink := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, sink.WriteEvents(ctx, testRun("run-a", 1), testEvents()))
	require.NoError(t, sink.WriteDCA(ctx, testRun("run-b", 2), []models.DCAPurchase{
		{Symbol: "QQQ", Strategy: models.StrategyDCAMonthly, Date: day("2024-01-02"), BuyPrice: 400, SharesPurchased: 0.25,
			DollarsInvested: 100, CumulativeShares: 0.25, CumulativeInvested: 100, CumulativeValue: 101, Close: 404},
	}))

	runs, err := RecentRuns(sink.db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, 1, runs[0].Purchases)
	assert.Equal(t, 0, runs[0].Events)
	assert.Equal(t, 2, runs[1].Events)
	assert.Equal(t, []string{"SPLG", "QQQ"}, runs[1].Symbols)
	assert.Equal(t, []float64{1, 2.5}, runs[1].Levels)
	assert.Equal(t, testRun("x", 0).StartedAt, runs[1].StartedAt)
}

func TestLoadEvents_CorruptDate(t *testing.T) {
	sink := newTestDB(t)
	require.NoError(t, sink.WriteEvents(context.Background(), testRun("run-a", 1), testEvents()))

	_, err := sink.db.Exec(`UPDATE dip_events SET date = '03/01/2024' WHERE level = 1`)
	require.NoError(t, err)

	got, err := LoadEvents(sink.db, "run-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "03/01/2024")
	assert.Nil(t, got)
}
