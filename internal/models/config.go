package models

// Config holds every setting of a simulation run.
type Config struct {
	Symbols    []string       `json:"symbols" yaml:"symbols"`                   // symbols to simulate, e.g. ["SPLG", "QQQ"]
	Source     string         `json:"source" yaml:"source"`                     // history provider: binance, yahoo or csv
	StartDate  string         `json:"start_date" yaml:"start_date"`             // YYYY-MM-DD, inclusive
	EndDate    string         `json:"end_date,omitempty" yaml:"end_date"`       // YYYY-MM-DD, exclusive; empty means today
	HistoryDir string         `json:"history_dir,omitempty" yaml:"history_dir"` // input directory for the csv source
	Proxy      string         `json:"proxy,omitempty" yaml:"proxy"`
	Workers    int            `json:"workers" yaml:"workers"` // parallel symbols during fetch and simulation
	DipLevels  DipLevelConfig `json:"dip_levels" yaml:"dip_levels"`
	DCA        DCAConfig      `json:"dca" yaml:"dca"`
	Output     OutputConfig   `json:"output" yaml:"output"`
	Cache      CacheConfig    `json:"cache" yaml:"cache"`
	Report     ReportConfig   `json:"report" yaml:"report"`
	Schedule   ScheduleConfig `json:"schedule" yaml:"schedule"`
	LogConfig  LogConfig      `json:"log" yaml:"log"`

	// Binance credentials are optional; klines are public. Loaded from the environment.
	BinanceAPIKey    string `json:"-" yaml:"-"`
	BinanceSecretKey string `json:"-" yaml:"-"`
}

// Dip level generation modes.
const (
	DipModeList  = "list"
	DipModeRange = "range"
)

// DipLevelConfig describes the set of decline thresholds, in percent.
type DipLevelConfig struct {
	Mode   string    `json:"mode" yaml:"mode"`               // "list" or "range"
	Levels []float64 `json:"levels,omitempty" yaml:"levels"` // list mode
	Min    float64   `json:"min,omitempty" yaml:"min"`       // range mode, defaults to step
	Step   float64   `json:"step,omitempty" yaml:"step"`     // range mode
	Max    float64   `json:"max,omitempty" yaml:"max"`       // range mode, inclusive
}

// DCAConfig configures the dollar-cost-averaging baselines.
type DCAConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	MonthlyAmount float64 `json:"monthly_amount" yaml:"monthly_amount"`
	WeeklyAmount  float64 `json:"weekly_amount" yaml:"weekly_amount"`
}

// OutputConfig selects the sinks results are written to.
type OutputConfig struct {
	Dir           string `json:"dir" yaml:"dir"`               // csv/xlsx output directory
	CSV           bool   `json:"csv" yaml:"csv"`               // consolidated csv files
	PerSymbol     bool   `json:"per_symbol" yaml:"per_symbol"` // also write one event file per symbol
	XLSX          bool   `json:"xlsx" yaml:"xlsx"`             // one workbook per run
	SQLitePath    string `json:"sqlite_path,omitempty" yaml:"sqlite_path"`
	PostgresDSN   string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn"`
	WeekNumbering string `json:"week_numbering,omitempty" yaml:"week_numbering"` // "iso" or "financial"
}

// CacheConfig configures the local bar cache and run state store.
type CacheConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"` // badger directory; empty disables caching
}

// ReportConfig restricts which levels the summary table aggregates.
type ReportConfig struct {
	LevelMin float64 `json:"level_min,omitempty" yaml:"level_min"`
	LevelMax float64 `json:"level_max,omitempty" yaml:"level_max"`
}

// ScheduleConfig configures the periodic re-run mode.
type ScheduleConfig struct {
	Cron        string `json:"cron" yaml:"cron"`                           // cron expression with seconds
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr"` // e.g. ":9102"; empty disables
	RunOnStart  bool   `json:"run_on_start" yaml:"run_on_start"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}
