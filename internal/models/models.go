package models

import (
	"math"
	"time"
)

// Strategy labels written into every exported row.
const (
	StrategyBuyOnDip   = "Buy_on_Dip"
	StrategyDCAMonthly = "DCA_Monthly"
	StrategyDCAWeekly  = "DCA_Weekly"
)

// DailyBar is one trading day of one symbol.
// Missing prices are NaN. PreviousClose is nil for the first bar of a series.
type DailyBar struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	PreviousClose *float64  `json:"previous_close,omitempty"`
}

// DateString returns the bar date as YYYY-MM-DD.
func (b DailyBar) DateString() string {
	return b.Date.Format(DateLayout)
}

// HasPreviousClose reports whether a usable previous close is attached.
func (b DailyBar) HasPreviousClose() bool {
	return b.PreviousClose != nil && isPositive(*b.PreviousClose)
}

// DateLayout is the date format used by every file this tool reads or writes.
const DateLayout = "2006-01-02"

// DipEvent is one simulated buy-on-dip fill with the running totals of its symbol.
type DipEvent struct {
	Symbol             string    `json:"symbol"`
	Date               time.Time `json:"date"`
	Level              float64   `json:"level"`
	LimitPrice         float64   `json:"limit_price"`
	ExecutedPrice      float64   `json:"executed_price"`
	SharesPurchased    int64     `json:"shares_purchased"`
	DollarsInvested    float64   `json:"dollars_invested"`
	CumulativeShares   int64     `json:"cumulative_shares"`
	CumulativeInvested float64   `json:"cumulative_invested"`
	CumulativeValue    float64   `json:"cumulative_value"`
	Close              float64   `json:"close"`
	PreviousClose      float64   `json:"previous_close"`
}

// DCAPurchase is one periodic fixed-dollar purchase of a DCA baseline.
type DCAPurchase struct {
	Symbol             string    `json:"symbol"`
	Strategy           string    `json:"strategy"`
	Date               time.Time `json:"date"`
	BuyPrice           float64   `json:"buy_price"`
	SharesPurchased    float64   `json:"shares_purchased"`
	DollarsInvested    float64   `json:"dollars_invested"`
	CumulativeShares   float64   `json:"cumulative_shares"`
	CumulativeInvested float64   `json:"cumulative_invested"`
	CumulativeValue    float64   `json:"cumulative_value"`
	Close              float64   `json:"close"`
}

// RunInfo identifies one ETL run across every sink.
type RunInfo struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source"`
	Symbols   []string  `json:"symbols"`
	Levels    []float64 `json:"levels"`
}

func isPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
