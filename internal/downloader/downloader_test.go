package downloader

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dipsim/internal/models"
	"dipsim/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(s string) time.Time {
	d, _ := time.Parse(models.DateLayout, s)
	return d
}

func TestReadBars_HeaderAliases(t *testing.T) {
	in := `Date_add,Symbol,Open,High,Low,Close,Volume
2024-01-02,SPLG,58.1,58.5,57.9,58.3,1000
2024-01-03,SPLG,58.3,,57.2,57.5,1200
2024-01-03,QQQ,400,401,399,400,5
`
	bars, err := ReadBars(strings.NewReader(in), "SPLG")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, day("2024-01-02"), bars[0].Date)
	assert.Equal(t, 57.9, bars[0].Low)
	assert.True(t, math.IsNaN(bars[1].High))
	assert.Equal(t, "SPLG", bars[1].Symbol)
}

func TestReadBars_BinanceKlineFormat(t *testing.T) {
	in := "open_time,open,high,low,close,volume,close_time\n" +
		"1704153600000,42000.5,43000,41000,42500,12.5,1704239999999\n"
	bars, err := ReadBars(strings.NewReader(in), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, day("2024-01-02"), bars[0].Date)
	assert.Equal(t, 41000.0, bars[0].Low)
}

func TestReadBars_MissingColumns(t *testing.T) {
	_, err := ReadBars(strings.NewReader("open,high,low,close\n1,2,3,4\n"), "X")
	assert.Error(t, err)
	_, err = ReadBars(strings.NewReader("date,open,high,close\n2024-01-02,1,2,3\n"), "X")
	assert.Error(t, err)
}

func TestCSVProvider_FiltersWindow(t *testing.T) {
	dir := t.TempDir()
	body := "Date,Open,High,Low,Close,Volume\n" +
		"2023-12-29,1,1,1,1,1\n2024-01-02,2,2,2,2,2\n2024-01-03,3,3,3,3,3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, RawFileName("spy")), []byte(body), 0o644))

	p := NewCSVProvider(dir)
	bars, err := p.FetchDaily(context.Background(), "SPY", day("2024-01-01"), day("2024-01-03"))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 2.0, bars[0].Close)

	_, err = p.FetchDaily(context.Background(), "NONE", day("2024-01-01"), day("2024-01-03"))
	var noData *ErrNoData
	assert.ErrorAs(t, err, &noData)
}

const chartBody = `{"chart":{"result":[{
  "meta":{"gmtoffset":-18000},
  "timestamp":[1704205800,1704292200,1704378600],
  "indicators":{
    "quote":[{"open":[100,null,50],"high":[110,null,55],"low":[90,null,45],"close":[100,null,50],"volume":[10,null,20]}],
    "adjclose":[{"adjclose":[50,null,50]}]
  }}],"error":null}}`

func TestYahooProvider_ParsesAndAdjusts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/SPLG", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	p := NewYahooProvider("", zap.NewNop())
	p.BaseURL = srv.URL + "/"

	bars, err := p.FetchDaily(context.Background(), "SPLG", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	require.Len(t, bars, 2, "all-null row is dropped")

	assert.Equal(t, day("2024-01-02"), bars[0].Date)
	assert.InDelta(t, 50.0, bars[0].Open, 1e-9)
	assert.InDelta(t, 45.0, bars[0].Low, 1e-9)
	assert.InDelta(t, 50.0, bars[0].Close, 1e-9)
	assert.Equal(t, day("2024-01-04"), bars[1].Date)
	assert.InDelta(t, 45.0, bars[1].Low, 1e-9)
}

func TestYahooProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewYahooProvider("", zap.NewNop())
	p.BaseURL = srv.URL + "/"
	_, err := p.FetchDaily(context.Background(), "BAD", day("2024-01-01"), day("2024-01-05"))
	assert.ErrorContains(t, err, "status 404")
}

type countingProvider struct {
	calls int
	bars  []models.DailyBar
}

func (c *countingProvider) Name() string { return "fake" }

func (c *countingProvider) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	c.calls++
	return c.bars, nil
}

func TestCachedProvider_ServesCoveredWindow(t *testing.T) {
	repo, err := persistence.NewBadgerRepository("")
	require.NoError(t, err)
	defer repo.Close()

	inner := &countingProvider{bars: []models.DailyBar{
		{Symbol: "X", Date: day("2024-01-02"), Open: 1, High: 1, Low: 1, Close: 1},
		{Symbol: "X", Date: day("2024-01-10"), Open: 2, High: 2, Low: 2, Close: 2},
	}}
	p := NewCachedProvider(inner, repo, zap.NewNop())

	_, err = p.FetchDaily(context.Background(), "X", day("2024-01-01"), day("2024-02-01"))
	require.NoError(t, err)

	bars, err := p.FetchDaily(context.Background(), "X", day("2024-01-05"), day("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second call is served from cache")
	require.Len(t, bars, 1)
	assert.Equal(t, day("2024-01-10"), bars[0].Date)

	_, err = p.FetchDaily(context.Background(), "X", day("2023-12-01"), day("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "wider window refetches")
}
