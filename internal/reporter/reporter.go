package reporter

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"dipsim/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
)

// Window restricts a report to dip levels in [Min, Max]. A zero Max means no upper bound.
type Window struct {
	Min float64
	Max float64
}

// Contains reports whether level falls inside the window.
func (w Window) Contains(level float64) bool {
	if level < w.Min {
		return false
	}
	return w.Max == 0 || level <= w.Max
}

// Baseline 存储一个DCA基准策略的期末结果
type Baseline struct {
	Purchases        int
	Invested         float64
	Shares           float64
	FinalValue       float64
	ProfitPercentage float64
}

// Metrics 存储单个标的的回测结果指标
type Metrics struct {
	Symbol           string
	Events           int
	Shares           int64
	Invested         float64
	AvgPrice         float64 // 加权平均成交价
	FinalClose       float64 // 期末收盘价
	FinalValue       float64 // 期末持仓市值
	ProfitPercentage float64
	FirstEvent       time.Time
	LastEvent        time.Time
	DCAMonthly       Baseline
	DCAWeekly        Baseline
}

// Input is everything known about one symbol after a run.
type Input struct {
	Symbol  string
	Events  []models.DipEvent
	Bars    []models.DailyBar
	Monthly []models.DCAPurchase
	Weekly  []models.DCAPurchase
}

// Calculate summarizes one symbol. Only events inside w count; totals are
// recomputed from the per-event amounts so a narrowed window stays consistent.
func Calculate(in Input, w Window) Metrics {
	m := Metrics{
		Symbol:     in.Symbol,
		FinalClose: lastClose(in.Bars),
	}

	invested := decimal.Zero
	for _, e := range in.Events {
		if !w.Contains(e.Level) {
			continue
		}
		if m.Events == 0 {
			m.FirstEvent = e.Date
		}
		m.LastEvent = e.Date
		m.Events++
		m.Shares += e.SharesPurchased
		invested = invested.Add(decimal.NewFromFloat(e.DollarsInvested))
	}
	m.Invested = invested.Round(4).InexactFloat64()

	m.AvgPrice, m.FinalValue, m.ProfitPercentage = math.NaN(), math.NaN(), math.NaN()
	if m.Shares > 0 {
		m.AvgPrice = invested.Div(decimal.NewFromInt(m.Shares)).Round(4).InexactFloat64()
		if finite(m.FinalClose) {
			value := decimal.NewFromFloat(m.FinalClose).Mul(decimal.NewFromInt(m.Shares))
			m.FinalValue = value.Round(2).InexactFloat64()
			m.ProfitPercentage = returnPct(value, invested)
		}
	}

	m.DCAMonthly = baseline(in.Monthly, m.FinalClose)
	m.DCAWeekly = baseline(in.Weekly, m.FinalClose)
	return m
}

func baseline(purchases []models.DCAPurchase, finalClose float64) Baseline {
	b := Baseline{Purchases: len(purchases), FinalValue: math.NaN(), ProfitPercentage: math.NaN()}
	if len(purchases) == 0 {
		return b
	}
	last := purchases[len(purchases)-1]
	b.Invested = last.CumulativeInvested
	b.Shares = last.CumulativeShares
	if finite(finalClose) {
		value := decimal.NewFromFloat(b.Shares).Mul(decimal.NewFromFloat(finalClose))
		b.FinalValue = value.Round(2).InexactFloat64()
		b.ProfitPercentage = returnPct(value, decimal.NewFromFloat(b.Invested))
	}
	return b
}

func returnPct(value, invested decimal.Decimal) float64 {
	if !invested.IsPositive() {
		return math.NaN()
	}
	return value.Sub(invested).Div(invested).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// lastClose is the most recent finite close, NaN if none.
func lastClose(bars []models.DailyBar) float64 {
	for i := len(bars) - 1; i >= 0; i-- {
		if finite(bars[i].Close) {
			return bars[i].Close
		}
	}
	return math.NaN()
}

// GenerateReport 打印回测结果汇总表
func GenerateReport(out io.Writer, run models.RunInfo, w Window, metrics []Metrics) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("run #%d %s  levels %s", run.Seq, run.ID, windowLabel(w)))
	t.AppendHeader(table.Row{
		"Symbol", "Events", "Shares", "Invested", "Avg Price", "Last Close", "Value", "Return %",
		"DCA M Invested", "DCA M Return %", "DCA W Invested", "DCA W Return %",
	})

	var events int
	var shares int64
	invested := decimal.Zero
	for _, m := range metrics {
		t.AppendRow(table.Row{
			m.Symbol, m.Events, m.Shares, money(m.Invested), money(m.AvgPrice), money(m.FinalClose),
			money(m.FinalValue), pct(m.ProfitPercentage),
			money(m.DCAMonthly.Invested), pct(m.DCAMonthly.ProfitPercentage),
			money(m.DCAWeekly.Invested), pct(m.DCAWeekly.ProfitPercentage),
		})
		events += m.Events
		shares += m.Shares
		invested = invested.Add(decimal.NewFromFloat(m.Invested))
	}
	t.AppendFooter(table.Row{"Total", events, shares, money(invested.InexactFloat64())})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func windowLabel(w Window) string {
	if w.Max == 0 {
		return fmt.Sprintf(">= %v%%", w.Min)
	}
	return fmt.Sprintf("%v%%..%v%%", w.Min, w.Max)
}

func money(v float64) string {
	if !finite(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func pct(v float64) string {
	if !finite(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RunRow is one stored run for the status listing.
type RunRow struct {
	Run       models.RunInfo
	Events    int
	Purchases int
}

// PrintRunState 打印最近一次运行的进度
func PrintRunState(out io.Writer, state *models.RunState) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	finished := "-"
	if !state.FinishedAt.IsZero() {
		finished = state.FinishedAt.Format(time.RFC3339)
	}
	t.SetTitle(fmt.Sprintf("run #%d %s  %s  started %s  finished %s",
		state.Seq, state.RunID, state.Status, state.StartedAt.Format(time.RFC3339), finished))
	t.AppendHeader(table.Row{"Symbol", "Status", "Bars", "Events", "Shares", "Invested", "Error"})

	symbols := make([]string, 0, len(state.Symbols))
	for s := range state.Symbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		st := state.Symbols[s]
		t.AppendRow(table.Row{st.Symbol, st.Status, st.Bars, st.Events, st.Shares, st.Invested, st.Error})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

// PrintRuns lists stored runs, newest first.
func PrintRuns(out io.Writer, rows []RunRow) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Seq", "Run ID", "Started", "Source", "Symbols", "Levels", "Events", "DCA"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Run.Seq, r.Run.ID, r.Run.StartedAt.Format(time.RFC3339), r.Run.Source,
			len(r.Run.Symbols), len(r.Run.Levels), r.Events, r.Purchases,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
