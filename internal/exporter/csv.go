package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dipsim/internal/downloader"
	"dipsim/internal/models"
)

// Consolidated file names written by CSVSink.
const (
	EventsFile  = "all_buy_on_dip.csv"
	DCAFile     = "all_dca.csv"
	ProcessFile = "etl-data-proc.csv"
)

// CSVSink writes consolidated CSV files under Dir and, when PerSymbol is set,
// one file per symbol next to them. Raw controls the <SYM>-data-raw.csv
// history files.
type CSVSink struct {
	Dir       string
	PerSymbol bool
	Raw       bool
	fmt       rowFormatter
}

// NewCSVSink creates the output directory if needed.
func NewCSVSink(dir string, perSymbol bool, weekScheme string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建目录 %s: %w", dir, err)
	}
	return &CSVSink{Dir: dir, PerSymbol: perSymbol, Raw: true, fmt: rowFormatter{weekScheme: weekScheme}}, nil
}

func (s *CSVSink) Name() string { return "csv" }

// WriteEvents writes all_buy_on_dip.csv and <SYM>-data-bod.csv.
func (s *CSVSink) WriteEvents(ctx context.Context, run models.RunInfo, events []models.DipEvent) error {
	rows := make([][]any, len(events))
	bySymbol := make(map[string][][]any)
	var order []string
	for i, e := range events {
		rows[i] = s.fmt.event(e)
		if _, ok := bySymbol[e.Symbol]; !ok {
			order = append(order, e.Symbol)
		}
		bySymbol[e.Symbol] = append(bySymbol[e.Symbol], rows[i])
	}

	if err := s.write(EventsFile, eventHeader, rows); err != nil {
		return err
	}
	if !s.PerSymbol {
		return nil
	}
	for _, sym := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(strings.ToUpper(sym)+"-data-bod.csv", eventHeader, bySymbol[sym]); err != nil {
			return err
		}
	}
	return nil
}

// WriteDCA writes all_dca.csv and <SYM>-data-dca.csv.
func (s *CSVSink) WriteDCA(ctx context.Context, run models.RunInfo, purchases []models.DCAPurchase) error {
	rows := make([][]any, len(purchases))
	bySymbol := make(map[string][][]any)
	var order []string
	for i, p := range purchases {
		rows[i] = s.fmt.dca(p)
		if _, ok := bySymbol[p.Symbol]; !ok {
			order = append(order, p.Symbol)
		}
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], rows[i])
	}

	if err := s.write(DCAFile, dcaHeader, rows); err != nil {
		return err
	}
	if !s.PerSymbol {
		return nil
	}
	for _, sym := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(strings.ToUpper(sym)+"-data-dca.csv", dcaHeader, bySymbol[sym]); err != nil {
			return err
		}
	}
	return nil
}

// WriteHistory writes etl-data-proc.csv and, when Raw is set, one raw file per
// symbol in the layout downloader.CSVProvider reads back.
func (s *CSVSink) WriteHistory(ctx context.Context, run models.RunInfo, bars []models.DailyBar) error {
	proc := make([][]any, len(bars))
	raw := make(map[string][][]any)
	var order []string
	for i, b := range bars {
		proc[i] = s.fmt.processed(b)
		if _, ok := raw[b.Symbol]; !ok {
			order = append(order, b.Symbol)
		}
		raw[b.Symbol] = append(raw[b.Symbol], s.fmt.raw(b))
	}

	if err := s.write(ProcessFile, procHeader, proc); err != nil {
		return err
	}
	if !s.Raw {
		return nil
	}
	for _, sym := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(downloader.RawFileName(sym), rawHeader, raw[sym]); err != nil {
			return err
		}
	}
	return nil
}

func (s *CSVSink) Close() error { return nil }

// write replaces name with header and rows via a temp file and rename.
func (s *CSVSink) write(name string, header []string, rows [][]any) error {
	path := filepath.Join(s.Dir, name)
	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(stringRow(r)); err != nil {
			tmp.Close()
			return fmt.Errorf("写入CSV记录失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
