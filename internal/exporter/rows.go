package exporter

import (
	"math"
	"strconv"

	"dipsim/internal/calendar"
	"dipsim/internal/history"
	"dipsim/internal/models"
)

// Column layouts shared by the CSV and XLSX sinks.
var (
	eventHeader = []string{
		"Date_add", "Weekday", "Week", "Symbol", "Strategy", "Buy_Level",
		"Limit_Price", "Buy_Price", "Shares Purchased", "Dollars Invested",
		"Cumulative Shares", "Cumulative Invested", "Cumulative Value",
		"Close", "Previous_Close",
	}
	dcaHeader = []string{
		"Date_add", "Weekday", "Week", "Symbol", "Strategy", "Buy_Price",
		"Shares Purchased", "Dollars Invested", "Cumulative Shares",
		"Cumulative Invested", "Cumulative Value", "Close",
	}
	rawHeader = []string{
		"Date_add", "Symbol", "Open", "High", "Low", "Close", "Volume",
	}
	procHeader = []string{
		"Date_add", "Weekday", "Week", "Symbol", "Open", "High", "Low", "Close",
		"Volume", "Previous_Close", "Avg_Daily_Price", "Daily_Gain_Loss_Pct",
		"Open_vs_Prev_Close_Pct", "Low_vs_Prev_Close_Pct", "Max_Percent_Decline",
	}
)

// rowFormatter turns records into cells. Cells are string, int, int64 or
// float64; missing floats are nil.
type rowFormatter struct {
	weekScheme string
}

func (f rowFormatter) event(e models.DipEvent) []any {
	return []any{
		e.Date.Format(models.DateLayout),
		calendar.Weekday(e.Date),
		calendar.Week(e.Date, f.weekScheme),
		e.Symbol,
		models.StrategyBuyOnDip,
		LevelLabel(e.Level),
		num(e.LimitPrice),
		num(e.ExecutedPrice),
		e.SharesPurchased,
		num(e.DollarsInvested),
		e.CumulativeShares,
		num(e.CumulativeInvested),
		num(e.CumulativeValue),
		num(e.Close),
		num(e.PreviousClose),
	}
}

func (f rowFormatter) dca(p models.DCAPurchase) []any {
	return []any{
		p.Date.Format(models.DateLayout),
		calendar.Weekday(p.Date),
		calendar.Week(p.Date, f.weekScheme),
		p.Symbol,
		p.Strategy,
		num(p.BuyPrice),
		num(p.SharesPurchased),
		num(p.DollarsInvested),
		num(p.CumulativeShares),
		num(p.CumulativeInvested),
		num(p.CumulativeValue),
		num(p.Close),
	}
}

func (f rowFormatter) raw(b models.DailyBar) []any {
	return []any{
		b.DateString(), b.Symbol,
		num(b.Open), num(b.High), num(b.Low), num(b.Close), num(b.Volume),
	}
}

func (f rowFormatter) processed(b models.DailyBar) []any {
	st := history.Stats(b)
	prev := any(nil)
	if b.PreviousClose != nil {
		prev = num(*b.PreviousClose)
	}
	return []any{
		b.DateString(),
		calendar.Weekday(b.Date),
		calendar.Week(b.Date, f.weekScheme),
		b.Symbol,
		num(b.Open), num(b.High), num(b.Low), num(b.Close), num(b.Volume),
		prev,
		num(st.AvgDailyPrice),
		num(st.DailyGainLossPct),
		num(st.OpenVsPrevClosePct),
		num(st.LowVsPrevClosePct),
		num(st.MaxPercentDecline),
	}
}

// LevelLabel renders a dip level as a percentage, e.g. 3 -> "3%", 2.5 -> "2.5%".
func LevelLabel(level float64) string {
	return strconv.FormatFloat(level, 'f', -1, 64) + "%"
}

// num maps non-finite values to nil so they export as empty cells.
func num(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// cellString formats a cell for CSV.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func stringRow(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = cellString(c)
	}
	return out
}
