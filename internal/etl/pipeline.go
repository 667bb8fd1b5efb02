// Package etl runs one extract-simulate-export pass over the configured symbols.
package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"dipsim/internal/config"
	"dipsim/internal/dca"
	"dipsim/internal/downloader"
	"dipsim/internal/exporter"
	"dipsim/internal/history"
	"dipsim/internal/metrics"
	"dipsim/internal/models"
	"dipsim/internal/persistence"
	"dipsim/internal/reporter"
	"dipsim/internal/simulator"
	"dipsim/internal/statemanager"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunCounter hands out increasing run sequence numbers.
type RunCounter interface {
	NextRunSeq() (int64, error)
}

// Pipeline wires a provider, the simulator and the sinks. Optional
// collaborators may be nil.
type Pipeline struct {
	cfg      *models.Config
	provider downloader.Provider
	sink     exporter.Sink
	counter  RunCounter
	repo     persistence.StateRepository
	metrics  *metrics.Metrics
	out      io.Writer
	logger   *zap.Logger
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithRunCounter numbers runs from c.
func WithRunCounter(c RunCounter) Option { return func(p *Pipeline) { p.counter = c } }

// WithStateRepository persists run progress to repo.
func WithStateRepository(repo persistence.StateRepository) Option {
	return func(p *Pipeline) { p.repo = repo }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithReport renders the summary table to w.
func WithReport(w io.Writer) Option { return func(p *Pipeline) { p.out = w } }

// New creates a pipeline. cfg must already be validated.
func New(cfg *models.Config, provider downloader.Provider, sink exporter.Sink, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, provider: provider, sink: sink, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result is everything one run produced.
type Result struct {
	Run     models.RunInfo
	Symbols []simulator.SymbolResult
	Events  []models.DipEvent
	DCA     []models.DCAPurchase
	Summary []reporter.Metrics
	Skipped []string
}

// Run executes one pass. Symbols that cannot be fetched are skipped with a
// warning; configuration and sink errors abort the run.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	began := time.Now()
	levels, err := simulator.GenerateLevels(p.cfg.DipLevels)
	if err != nil {
		return nil, err
	}
	start, end, err := config.DateRange(p.cfg)
	if err != nil {
		return nil, err
	}

	run, err := p.newRun(levels)
	if err != nil {
		return nil, err
	}
	p.logger.Info("run started",
		zap.String("run_id", run.ID), zap.Int64("seq", run.Seq), zap.String("source", p.provider.Name()),
		zap.Strings("symbols", run.Symbols), zap.Int("levels", len(levels)))

	sm := statemanager.NewStateManager(initialState(run), p.repo, p.logger)
	sm.Start()
	defer func() {
		status := models.RunDone
		if err != nil {
			status = models.RunFailed
		}
		sm.Finish(status)
		sm.Stop()
		if p.metrics != nil {
			p.metrics.RecordRun(metricStatus(err), time.Since(began))
		}
	}()

	bars, skipped, err := p.fetchAll(ctx, run.Symbols, start, end, sm)
	if err != nil {
		return nil, err
	}
	store := history.NewStore(bars)
	src := universe{Store: store, symbols: present(run.Symbols, store)}

	results := simulator.Run(src, levels, p.cfg.Workers)
	events := simulator.Aggregate(results)

	var purchases []models.DCAPurchase
	inputs := make([]reporter.Input, 0, len(results))
	for _, r := range results {
		hist := store.History(r.Symbol)
		in := reporter.Input{Symbol: r.Symbol, Events: r.Events, Bars: hist}
		if p.cfg.DCA.Enabled {
			in.Monthly = dca.Monthly(hist, p.cfg.DCA.MonthlyAmount)
			in.Weekly = dca.Weekly(hist, p.cfg.DCA.WeeklyAmount)
			purchases = append(purchases, in.Monthly...)
			purchases = append(purchases, in.Weekly...)
		}
		inputs = append(inputs, in)

		sm.UpdateSymbol(models.SymbolState{
			Symbol:   r.Symbol,
			Status:   models.SymbolSimulated,
			Bars:     r.Bars,
			Events:   len(r.Events),
			Shares:   r.Totals.Shares,
			Invested: r.Totals.Invested.String(),
		})
		if p.metrics != nil {
			p.metrics.EventsSimulated.WithLabelValues(r.Symbol).Add(float64(len(r.Events)))
			p.metrics.DCAPurchases.WithLabelValues(models.StrategyDCAMonthly).Add(float64(len(in.Monthly)))
			p.metrics.DCAPurchases.WithLabelValues(models.StrategyDCAWeekly).Add(float64(len(in.Weekly)))
			p.metrics.SymbolsTotal.WithLabelValues("simulated").Inc()
		}
		p.logger.Info("symbol simulated",
			zap.String("symbol", r.Symbol), zap.Int("bars", r.Bars), zap.Int("events", len(r.Events)),
			zap.Int64("shares", r.Totals.Shares), zap.String("invested", r.Totals.Invested.String()))
	}

	if err := p.export(ctx, run, store, events, purchases); err != nil {
		return nil, err
	}

	window := reporter.Window{Min: p.cfg.Report.LevelMin, Max: p.cfg.Report.LevelMax}
	summary := make([]reporter.Metrics, len(inputs))
	for i, in := range inputs {
		summary[i] = reporter.Calculate(in, window)
	}
	if p.out != nil {
		reporter.GenerateReport(p.out, run, window, summary)
	}

	p.logger.Info("run finished",
		zap.String("run_id", run.ID), zap.Int("events", len(events)), zap.Int("dca_purchases", len(purchases)),
		zap.Strings("skipped", skipped), zap.Duration("took", time.Since(began)))

	return &Result{Run: run, Symbols: results, Events: events, DCA: purchases, Summary: summary, Skipped: skipped}, nil
}

func (p *Pipeline) newRun(levels []float64) (models.RunInfo, error) {
	run := models.RunInfo{
		ID:        NewRunID(),
		StartedAt: time.Now().UTC(),
		Source:    p.provider.Name(),
		Symbols:   p.cfg.Symbols,
		Levels:    levels,
	}
	if p.counter != nil {
		seq, err := p.counter.NextRunSeq()
		if err != nil {
			return run, fmt.Errorf("next run seq: %w", err)
		}
		run.Seq = seq
	}
	return run, nil
}

// NewRunID returns a random, URL-safe run identifier.
func NewRunID() string {
	id := uuid.New()
	return base62.EncodeToString(id[:])
}

// fetchAll downloads every symbol concurrently. Per-symbol failures are
// logged and reported as skipped; only context cancellation is fatal.
func (p *Pipeline) fetchAll(ctx context.Context, symbols []string, start, end time.Time, sm *statemanager.StateManager) ([]models.DailyBar, []string, error) {
	perSymbol := make([][]models.DailyBar, len(symbols))
	var (
		mu      sync.Mutex
		skipped []string
	)

	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.Workers > 0 {
		g.SetLimit(p.cfg.Workers)
	}
	for i, symbol := range symbols {
		g.Go(func() error {
			t0 := time.Now()
			bars, err := p.provider.FetchDaily(gctx, symbol, start, end)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Warn("skipping symbol", zap.String("symbol", symbol), zap.Error(err))
				sm.UpdateSymbol(models.SymbolState{Symbol: symbol, Status: symbolFailure(err), Error: err.Error()})
				if p.metrics != nil {
					p.metrics.SymbolsTotal.WithLabelValues("skipped").Inc()
				}
				mu.Lock()
				skipped = append(skipped, symbol)
				mu.Unlock()
				return nil
			}
			for j := range bars {
				bars[j].Symbol = symbol
			}
			perSymbol[i] = bars
			sm.UpdateSymbol(models.SymbolState{Symbol: symbol, Status: models.SymbolFetched, Bars: len(bars)})
			if p.metrics != nil {
				p.metrics.RecordFetch(p.provider.Name(), time.Since(t0), len(bars))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var all []models.DailyBar
	for _, bars := range perSymbol {
		all = append(all, bars...)
	}
	return all, orderLike(skipped, symbols), nil
}

func (p *Pipeline) export(ctx context.Context, run models.RunInfo, store *history.Store, events []models.DipEvent, purchases []models.DCAPurchase) error {
	if p.sink == nil {
		return nil
	}
	if hs, ok := p.sink.(exporter.HistorySink); ok {
		if err := hs.WriteHistory(ctx, run, store.Bars()); err != nil {
			p.sinkFailed(err)
			return fmt.Errorf("export history: %w", err)
		}
	}
	if err := p.sink.WriteEvents(ctx, run, events); err != nil {
		p.sinkFailed(err)
		return fmt.Errorf("export events: %w", err)
	}
	if p.cfg.DCA.Enabled {
		if err := p.sink.WriteDCA(ctx, run, purchases); err != nil {
			p.sinkFailed(err)
			return fmt.Errorf("export dca: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) sinkFailed(err error) {
	if p.metrics != nil {
		p.metrics.SinkErrors.WithLabelValues(p.sink.Name()).Inc()
	}
}

func initialState(run models.RunInfo) *models.RunState {
	st := &models.RunState{
		RunID:     run.ID,
		Seq:       run.Seq,
		Version:   models.RunStateVersion,
		Status:    models.RunRunning,
		Levels:    run.Levels,
		Symbols:   make(map[string]*models.SymbolState, len(run.Symbols)),
		StartedAt: run.StartedAt,
	}
	for _, s := range run.Symbols {
		st.Symbols[s] = &models.SymbolState{Symbol: s, Status: models.SymbolPending, LastUpdateTime: run.StartedAt}
	}
	return st
}

func symbolFailure(err error) string {
	var noData *downloader.ErrNoData
	if errors.As(err, &noData) {
		return models.SymbolSkipped
	}
	return models.SymbolFailed
}

func metricStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// universe is a history store iterated in configured symbol order.
type universe struct {
	*history.Store
	symbols []string
}

func (u universe) Symbols() []string { return u.symbols }

// present keeps the symbols the store has data for, in the given order.
func present(symbols []string, store *history.Store) []string {
	have := make(map[string]bool)
	for _, s := range store.Symbols() {
		have[s] = true
	}
	var out []string
	for _, s := range symbols {
		if have[s] {
			out = append(out, s)
			have[s] = false
		}
	}
	return out
}

// orderLike sorts subset by its position in order.
func orderLike(subset, order []string) []string {
	in := make(map[string]bool, len(subset))
	for _, s := range subset {
		in[s] = true
	}
	var out []string
	for _, s := range order {
		if in[s] {
			out = append(out, s)
		}
	}
	return out
}
