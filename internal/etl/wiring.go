package etl

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"dipsim/internal/config"
	"dipsim/internal/downloader"
	"dipsim/internal/exporter"
	"dipsim/internal/models"
	"dipsim/internal/persistence"
	"dipsim/internal/storage"

	"go.uber.org/zap"
)

// SQLiteCounter numbers runs from the SQLite metadata counter.
type SQLiteCounter struct {
	DB *sql.DB
}

func (c SQLiteCounter) NextRunSeq() (int64, error) {
	return storage.GetNextRunID(c.DB)
}

// NewProvider builds the configured history provider, wrapped in the bar
// cache when repo is not nil. The csv source is never cached.
func NewProvider(cfg *models.Config, repo persistence.BarRepository, logger *zap.Logger) (downloader.Provider, error) {
	var p downloader.Provider
	switch cfg.Source {
	case config.SourceBinance:
		p = downloader.NewBinanceProvider(cfg.BinanceAPIKey, cfg.BinanceSecretKey, logger)
	case config.SourceYahoo:
		p = downloader.NewYahooProvider(cfg.Proxy, logger)
	case config.SourceCSV:
		return downloader.NewCSVProvider(cfg.HistoryDir), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
	if repo != nil {
		p = downloader.NewCachedProvider(p, repo, logger)
	}
	return p, nil
}

// NewSinks opens every enabled sink. db may be nil when SQLite is disabled.
// On error the sinks opened so far are closed.
func NewSinks(ctx context.Context, cfg *models.Config, db *sql.DB, logger *zap.Logger) (exporter.Multi, error) {
	var sinks exporter.Multi
	fail := func(err error) (exporter.Multi, error) {
		_ = sinks.Close()
		return nil, err
	}

	if cfg.Output.CSV {
		s, err := exporter.NewCSVSink(cfg.Output.Dir, cfg.Output.PerSymbol, cfg.Output.WeekNumbering)
		if err != nil {
			return fail(err)
		}
		s.Raw = writesRawHistory(cfg)
		if !s.Raw {
			logger.Info("output dir is the csv history dir, raw files left untouched", zap.String("dir", cfg.Output.Dir))
		}
		sinks = append(sinks, s)
	}
	if cfg.Output.XLSX {
		s, err := exporter.NewXLSXSink(cfg.Output.Dir, "dipsim.xlsx", cfg.Output.WeekNumbering)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if db != nil {
		sinks = append(sinks, storage.NewSQLiteSink(db))
	}
	if cfg.Output.PostgresDSN != "" {
		pool, err := storage.NewPool(ctx, cfg.Output.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return fail(err)
		}
		sinks = append(sinks, storage.NewPostgresSink(pool))
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	if len(sinks) == 0 {
		logger.Warn("no output enabled, results are only reported; set output.csv, output.xlsx, output.sqlite_path or output.postgres_dsn")
	}
	logger.Info("sinks ready", zap.Strings("sinks", names))
	return sinks, nil
}

// writesRawHistory reports whether the csv sink may write <SYM>-data-raw.csv.
// A csv source reading from the output dir keeps its files: a run only holds
// the bars of its own window.
func writesRawHistory(cfg *models.Config) bool {
	if cfg.Source != config.SourceCSV {
		return true
	}
	return !sameDir(cfg.Output.Dir, cfg.HistoryDir)
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
