package simulator

import (
	"dipsim/internal/models"

	"golang.org/x/sync/errgroup"
)

// HistorySource supplies the symbol universe and each symbol's ascending bars
// with previous closes attached. history.Store implements it.
type HistorySource interface {
	Symbols() []string
	History(symbol string) []models.DailyBar
}

// SymbolResult is the ordered event stream of one symbol and its final totals.
type SymbolResult struct {
	Symbol string
	Bars   int
	Events []models.DipEvent
	Totals Accumulator
}

// Run simulates every symbol of src independently. Symbols are spread over up
// to workers goroutines; results keep the order of src.Symbols().
func Run(src HistorySource, levels []float64, workers int) []SymbolResult {
	symbols := src.Symbols()
	results := make([]SymbolResult, len(symbols))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, symbol := range symbols {
		g.Go(func() error {
			bars := src.History(symbol)
			events, totals := SimulateSymbol(bars, levels)
			results[i] = SymbolResult{Symbol: symbol, Bars: len(bars), Events: events, Totals: totals}
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	return results
}

// Aggregate concatenates the per-symbol streams in the given order. It does no
// further accumulation; each symbol keeps its own running totals.
func Aggregate(results []SymbolResult) []models.DipEvent {
	n := 0
	for _, r := range results {
		n += len(r.Events)
	}
	all := make([]models.DipEvent, 0, n)
	for _, r := range results {
		all = append(all, r.Events...)
	}
	return all
}
