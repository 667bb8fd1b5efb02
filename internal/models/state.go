package models

import "time"

// RunState 定义了一次ETL运行需要持久化的全部进度数据
type RunState struct {
	RunID          string                  `json:"run_id"`           // 运行的唯一标识符 (base62)
	Seq            int64                   `json:"seq"`              // 运行序号, 来自 sqlite 的计数器
	Version        int                     `json:"version"`          // 状态模型的版本号，用于未来迁移
	Status         string                  `json:"status"`           // RUNNING, DONE, FAILED
	Levels         []float64               `json:"levels"`           // 本次运行使用的跌幅档位
	Symbols        map[string]*SymbolState `json:"symbols"`          // 【核心】每个标的的动态状态
	StartedAt      time.Time               `json:"started_at"`       // 开始时间
	FinishedAt     time.Time               `json:"finished_at"`      // 结束时间 (未结束为零值)
	LastUpdateTime time.Time               `json:"last_update_time"` // 状态最后更新的时间戳
}

// SymbolState 追踪单个标的在一次运行中的【动态状态】。
type SymbolState struct {
	Symbol         string    `json:"symbol"`
	Status         string    `json:"status"`          // PENDING, FETCHED, SIMULATED, SKIPPED, FAILED
	Bars           int       `json:"bars"`            // 有效日线数量
	Events         int       `json:"events"`          // 成交事件数量
	Shares         int64     `json:"shares"`          // 累计股数
	Invested       string    `json:"invested"`        // 累计投入 (十进制字符串)
	Error          string    `json:"error,omitempty"` // 失败原因
	LastUpdateTime time.Time `json:"last_update_time"`
}

// Run statuses.
const (
	RunRunning = "RUNNING"
	RunDone    = "DONE"
	RunFailed  = "FAILED"
)

// Symbol statuses.
const (
	SymbolPending   = "PENDING"
	SymbolFetched   = "FETCHED"
	SymbolSimulated = "SIMULATED"
	SymbolSkipped   = "SKIPPED"
	SymbolFailed    = "FAILED"
)

// RunStateVersion is bumped whenever RunState changes shape.
const RunStateVersion = 1

// CachedSeries is a provider's answer for one symbol and the window it covered.
type CachedSeries struct {
	Source    string
	Symbol    string
	Start     time.Time
	End       time.Time
	FetchedAt time.Time
	Bars      []DailyBar
}

// Covers reports whether the cached window contains [start, end). A window
// ending today is only trusted for the day it was fetched.
func (c *CachedSeries) Covers(start, end time.Time) bool {
	if c == nil || len(c.Bars) == 0 {
		return false
	}
	if start.Before(c.Start) {
		return false
	}
	if !end.After(c.End) {
		return true
	}
	return sameDay(end, c.End) && sameDay(end, c.FetchedAt)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
