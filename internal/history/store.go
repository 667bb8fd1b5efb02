// Package history holds the per-symbol daily price series the simulator reads.
package history

import (
	"sort"

	"dipsim/internal/models"
)

// Store is an immutable, per-symbol set of ascending daily bars with the
// previous close attached to every bar but the first.
type Store struct {
	series  map[string][]models.DailyBar
	symbols []string
}

// NewStore groups raw bars by symbol, sorts each series by date, drops
// duplicate dates (the last occurrence wins) and attaches previous closes.
// Bars without a symbol are ignored.
func NewStore(bars []models.DailyBar) *Store {
	grouped := make(map[string][]models.DailyBar)
	for _, b := range bars {
		if b.Symbol == "" {
			continue
		}
		grouped[b.Symbol] = append(grouped[b.Symbol], b)
	}

	s := &Store{series: make(map[string][]models.DailyBar, len(grouped))}
	for symbol, raw := range grouped {
		s.series[symbol] = buildSeries(raw)
		s.symbols = append(s.symbols, symbol)
	}
	sort.Strings(s.symbols)
	return s
}

func buildSeries(raw []models.DailyBar) []models.DailyBar {
	sorted := make([]models.DailyBar, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	series := make([]models.DailyBar, 0, len(sorted))
	for _, b := range sorted {
		if n := len(series); n > 0 && series[n-1].Date.Equal(b.Date) {
			series[n-1] = b
			continue
		}
		series = append(series, b)
	}

	for i := range series {
		series[i].PreviousClose = nil
		if i > 0 {
			prev := series[i-1].Close
			series[i].PreviousClose = &prev
		}
	}
	return series
}

// Symbols returns the sorted symbol universe.
func (s *Store) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// History returns the ascending series for symbol, or nil when the symbol has
// no data. The returned slice is a copy.
func (s *Store) History(symbol string) []models.DailyBar {
	series := s.series[symbol]
	if len(series) == 0 {
		return nil
	}
	out := make([]models.DailyBar, len(series))
	copy(out, series)
	return out
}

// Bars returns every series concatenated in symbol order.
func (s *Store) Bars() []models.DailyBar {
	var out []models.DailyBar
	for _, symbol := range s.symbols {
		out = append(out, s.series[symbol]...)
	}
	return out
}
