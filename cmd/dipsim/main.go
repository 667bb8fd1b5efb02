package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dipsim/internal/config"
	"dipsim/internal/etl"
	"dipsim/internal/logger"
	"dipsim/internal/metrics"
	"dipsim/internal/models"
	"dipsim/internal/persistence"
	"dipsim/internal/reporter"
	"dipsim/internal/scheduler"
	"dipsim/internal/storage"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file (.json, .yaml or .yml)")
	mode := flag.String("mode", "run", "running mode: run, schedule or status")
	symbols := flag.String("symbols", "", "comma separated symbols, overrides the config")
	startDate := flag.String("start", "", "start date (YYYY-MM-DD), overrides the config")
	endDate := flag.String("end", "", "end date (YYYY-MM-DD, exclusive), overrides the config")
	source := flag.String("source", "", "history source: binance, yahoo or csv")
	outDir := flag.String("out", "", "output directory, overrides the config")
	flag.Parse()

	// 先用默认配置初始化日志，以便记录 .env 与配置加载过程
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Debug("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 命令行参数覆盖配置 ---
	if *symbols != "" {
		cfg.Symbols = config.SplitSymbols(*symbols)
	}
	if *startDate != "" {
		cfg.StartDate = *startDate
	}
	if *endDate != "" {
		cfg.EndDate = *endDate
	}
	if *source != "" {
		cfg.Source = *source
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	config.ApplyDefaults(cfg)

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "run":
		err = runOnce(ctx, cfg)
	case "schedule":
		err = runSchedule(ctx, cfg)
	case "status":
		err = showStatus(cfg)
	default:
		err = fmt.Errorf("未知的运行模式: %s。请选择 'run', 'schedule' 或 'status'。", *mode)
	}
	if err != nil {
		logger.S().Fatal(err)
	}
}

// deps are the stores shared by every run of a process.
type deps struct {
	repo persistence.Repository
	db   *sql.DB
}

func openDeps(cfg *models.Config) (*deps, error) {
	d := &deps{}
	if cfg.Cache.DBPath != "" {
		repo, err := persistence.NewBadgerRepository(cfg.Cache.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", cfg.Cache.DBPath, err)
		}
		d.repo = repo
	}
	if cfg.Output.SQLitePath != "" {
		db, err := storage.InitDB(cfg.Output.SQLitePath)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Output.SQLitePath, err)
		}
		d.db = db
	}
	return d, nil
}

func (d *deps) close() {
	if d.repo != nil {
		if err := d.repo.Close(); err != nil {
			logger.S().Warnf("关闭缓存失败: %v", err)
		}
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

// job returns one full ETL pass. Sinks are opened per run so every run gets
// fresh files.
func (d *deps) job(cfg *models.Config, m *metrics.Metrics) scheduler.Job {
	return func(ctx context.Context) error {
		l := logger.L()

		var bars persistence.BarRepository
		if d.repo != nil {
			bars = d.repo
		}
		provider, err := etl.NewProvider(cfg, bars, l)
		if err != nil {
			return err
		}

		sinks, err := etl.NewSinks(ctx, cfg, d.db, l)
		if err != nil {
			return err
		}

		opts := []etl.Option{etl.WithReport(os.Stdout)}
		if d.repo != nil {
			opts = append(opts, etl.WithStateRepository(d.repo))
		}
		if d.db != nil {
			opts = append(opts, etl.WithRunCounter(etl.SQLiteCounter{DB: d.db}))
		}
		if m != nil {
			opts = append(opts, etl.WithMetrics(m))
		}

		_, runErr := etl.New(cfg, provider, sinks, l, opts...).Run(ctx)
		return errors.Join(runErr, sinks.Close())
	}
}

// runOnce 运行一次完整的 ETL
func runOnce(ctx context.Context, cfg *models.Config) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	return d.job(cfg, nil)(ctx)
}

// runSchedule 按 cron 表达式周期性运行 ETL，直到收到中断信号
func runSchedule(ctx context.Context, cfg *models.Config) error {
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	m := metrics.New()
	if addr := cfg.Schedule.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.S().Errorf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.S().Infof("metrics served on %s/metrics", addr)
	}

	sched := scheduler.NewScheduler(ctx, d.job(cfg, m), logger.L())
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Schedule.RunOnStart {
		go sched.RunNow()
	}

	logger.S().Infof("dipsim is running on %q. Press Ctrl+C to stop.", cfg.Schedule.Cron)
	<-ctx.Done()
	logger.S().Info("shutdown signal received, stopping...")
	return nil
}

// showStatus 打印最近一次运行的状态和历史运行记录
func showStatus(cfg *models.Config) error {
	if cfg.Cache.DBPath == "" && cfg.Output.SQLitePath == "" {
		return errors.New("status needs cache.db_path or output.sqlite_path")
	}
	d, err := openDeps(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	if d.repo != nil {
		state, err := d.repo.LoadState()
		if err != nil {
			return fmt.Errorf("load run state: %w", err)
		}
		if state == nil {
			fmt.Println("no run recorded yet")
		} else {
			reporter.PrintRunState(os.Stdout, state)
		}
	}

	if d.db != nil {
		runs, err := storage.RecentRuns(d.db, 20)
		if err != nil {
			return err
		}
		rows := make([]reporter.RunRow, len(runs))
		for i, r := range runs {
			rows[i] = reporter.RunRow{Run: r.RunInfo, Events: r.Events, Purchases: r.Purchases}
		}
		reporter.PrintRuns(os.Stdout, rows)
	}
	logger.L().Debug("status printed", zap.String("cache", cfg.Cache.DBPath), zap.String("sqlite", cfg.Output.SQLitePath))
	return nil
}
