package downloader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dipsim/internal/models"
)

// CSVProvider reads previously exported raw histories, one
// <SYMBOL>-data-raw.csv file per symbol under Dir.
type CSVProvider struct {
	Dir string
}

// NewCSVProvider creates a provider reading from dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

func (p *CSVProvider) Name() string { return "csv" }

// RawFileName is the file a symbol's raw history lives in.
func RawFileName(symbol string) string {
	return strings.ToUpper(symbol) + "-data-raw.csv"
}

// FetchDaily reads the symbol's file and keeps rows in [start, end).
func (p *CSVProvider) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	path := filepath.Join(p.Dir, RawFileName(symbol))
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &ErrNoData{Provider: p.Name(), Symbol: symbol}
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBars(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bars = filterRange(bars, start, end)
	if len(bars) == 0 {
		return nil, &ErrNoData{Provider: p.Name(), Symbol: symbol}
	}
	return bars, nil
}

// column aliases accepted in a header row, lower-cased.
var columnAliases = map[string]string{
	"date":      "date",
	"date_add":  "date",
	"open_time": "open_time",
	"open":      "open",
	"high":      "high",
	"low":       "low",
	"close":     "close",
	"volume":    "volume",
	"symbol":    "symbol",
}

// ReadBars parses a CSV with a header naming at least a date column
// (date, Date_add, or a Binance open_time in epoch milliseconds) and the
// OHLC columns. Empty or unparsable prices become NaN. Rows whose symbol
// column names another symbol are dropped.
func ReadBars(r io.Reader, symbol string) ([]models.DailyBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int)
	for i, h := range header {
		if name, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := idx[name]; !dup {
				idx[name] = i
			}
		}
	}
	_, hasDate := idx["date"]
	_, hasOpenTime := idx["open_time"]
	if !hasDate && !hasOpenTime {
		return nil, errors.New("no date column in header")
	}
	for _, col := range []string{"open", "high", "low", "close"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("no %s column in header", col)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var bars []models.DailyBar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if s := field(rec, "symbol"); s != "" && !strings.EqualFold(s, symbol) {
			continue
		}

		var date time.Time
		if hasDate {
			date, err = parseDate(field(rec, "date"))
		} else {
			var ms int64
			ms, err = strconv.ParseInt(field(rec, "open_time"), 10, 64)
			date = dayOf(time.UnixMilli(ms).UTC())
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date: %w", line, err)
		}

		bars = append(bars, models.DailyBar{
			Symbol: symbol,
			Date:   date,
			Open:   parseCell(field(rec, "open")),
			High:   parseCell(field(rec, "high")),
			Low:    parseCell(field(rec, "low")),
			Close:  parseCell(field(rec, "close")),
			Volume: parseCell(field(rec, "volume")),
		})
	}
	return bars, nil
}

// parseDate accepts YYYY-MM-DD optionally followed by a time part.
func parseDate(s string) (time.Time, error) {
	if len(s) > len(models.DateLayout) {
		s = s[:len(models.DateLayout)]
	}
	return time.Parse(models.DateLayout, s)
}

func parseCell(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	return parsePrice(s)
}
