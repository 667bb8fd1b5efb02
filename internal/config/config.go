package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dipsim/internal/calendar"
	"dipsim/internal/models"
	"dipsim/internal/simulator"

	"gopkg.in/yaml.v3"
)

// Supported history sources.
const (
	SourceBinance = "binance"
	SourceYahoo   = "yahoo"
	SourceCSV     = "csv"
)

// LoadConfig reads a JSON or YAML (.yaml/.yml) config file, applies
// environment overrides and fills defaults. It does not validate.
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &models.Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	return cfg, nil
}

// ApplyEnv overrides config values from the environment (after godotenv has run).
func ApplyEnv(cfg *models.Config) {
	if v := os.Getenv("DIPSIM_SYMBOLS"); v != "" {
		cfg.Symbols = SplitSymbols(v)
	}
	if v := os.Getenv("DIPSIM_SOURCE"); v != "" {
		cfg.Source = v
	}
	if v := os.Getenv("DIPSIM_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("DIPSIM_SQLITE_PATH"); v != "" {
		cfg.Output.SQLitePath = v
	}
	if v := os.Getenv("DIPSIM_POSTGRES_DSN"); v != "" {
		cfg.Output.PostgresDSN = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Proxy == "" {
		cfg.Proxy = v
	}
	cfg.BinanceAPIKey = os.Getenv("BINANCE_API_KEY")
	cfg.BinanceSecretKey = os.Getenv("BINANCE_SECRET_KEY")
}

// ApplyDefaults fills every unset field with the values the ETL always used:
// 20 years of yahoo history, levels 1..30 step 1, $100 monthly and $25 weekly DCA.
func ApplyDefaults(cfg *models.Config) {
	if cfg.Source == "" {
		cfg.Source = SourceYahoo
	}
	cfg.Source = strings.ToLower(cfg.Source)
	if cfg.StartDate == "" {
		cfg.StartDate = time.Now().UTC().AddDate(-20, 0, 0).Format(models.DateLayout)
	}
	if cfg.HistoryDir == "" {
		cfg.HistoryDir = "data"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	d := &cfg.DipLevels
	if d.Mode == "" {
		if len(d.Levels) > 0 {
			d.Mode = models.DipModeList
		} else {
			d.Mode = models.DipModeRange
		}
	}
	if d.Mode == models.DipModeRange && d.Step == 0 && d.Max == 0 {
		d.Step, d.Max = 1, 30
	}
	if cfg.DCA.MonthlyAmount == 0 {
		cfg.DCA.MonthlyAmount = 100
	}
	if cfg.DCA.WeeklyAmount == 0 {
		cfg.DCA.WeeklyAmount = 25
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "data"
	}
	if cfg.Output.WeekNumbering == "" {
		cfg.Output.WeekNumbering = calendar.WeekISO
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = "0 30 22 * * 1-5"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
}

// Validate rejects configurations that cannot run. Dip level errors wrap
// simulator.ErrInvalidDipConfig.
func Validate(cfg *models.Config) error {
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	switch cfg.Source {
	case SourceBinance, SourceYahoo, SourceCSV:
	default:
		return fmt.Errorf("unknown source %q", cfg.Source)
	}
	start, err := time.Parse(models.DateLayout, cfg.StartDate)
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	if cfg.EndDate != "" {
		end, err := time.Parse(models.DateLayout, cfg.EndDate)
		if err != nil {
			return fmt.Errorf("end_date: %w", err)
		}
		if !end.After(start) {
			return fmt.Errorf("end_date %s must be after start_date %s", cfg.EndDate, cfg.StartDate)
		}
	}
	if _, err := simulator.GenerateLevels(cfg.DipLevels); err != nil {
		return err
	}
	if cfg.DCA.Enabled && (cfg.DCA.MonthlyAmount < 0 || cfg.DCA.WeeklyAmount < 0) {
		return fmt.Errorf("dca amounts must not be negative")
	}
	switch cfg.Output.WeekNumbering {
	case calendar.WeekISO, calendar.WeekFinancial:
	default:
		return fmt.Errorf("unknown week_numbering %q", cfg.Output.WeekNumbering)
	}
	if r := cfg.Report; r.LevelMax != 0 && r.LevelMin > r.LevelMax {
		return fmt.Errorf("report.level_min %v is above report.level_max %v", r.LevelMin, r.LevelMax)
	}
	return nil
}

// DateRange returns the parsed [start, end) window; an empty end date means now.
func DateRange(cfg *models.Config) (time.Time, time.Time, error) {
	start, err := time.Parse(models.DateLayout, cfg.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end := time.Now().UTC()
	if cfg.EndDate != "" {
		if end, err = time.Parse(models.DateLayout, cfg.EndDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
		}
	}
	return start, end, nil
}

// SplitSymbols parses a comma separated symbol list, upper-casing and
// dropping blanks and duplicates.
func SplitSymbols(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
