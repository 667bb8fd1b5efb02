package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dipsim/internal/models"

	"github.com/xuri/excelize/v2"
)

// Sheet names in the workbook.
const (
	SheetEvents  = "Buy_on_Dip"
	SheetDCA     = "DCA"
	SheetHistory = "History"
)

// XLSXSink writes every result table as a sheet of one workbook, saved on Close.
type XLSXSink struct {
	path  string
	file  *excelize.File
	fmt   rowFormatter
	first bool
}

// NewXLSXSink prepares a workbook that Close saves to dir/name, creating dir
// if needed.
func NewXLSXSink(dir, name, weekScheme string) (*XLSXSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建目录 %s: %w", dir, err)
	}
	return &XLSXSink{
		path:  filepath.Join(dir, name),
		file:  excelize.NewFile(),
		fmt:   rowFormatter{weekScheme: weekScheme},
		first: true,
	}, nil
}

func (s *XLSXSink) Name() string { return "xlsx" }

func (s *XLSXSink) WriteEvents(ctx context.Context, run models.RunInfo, events []models.DipEvent) error {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = s.fmt.event(e)
	}
	return s.writeSheet(SheetEvents, eventHeader, rows)
}

func (s *XLSXSink) WriteDCA(ctx context.Context, run models.RunInfo, purchases []models.DCAPurchase) error {
	rows := make([][]any, len(purchases))
	for i, p := range purchases {
		rows[i] = s.fmt.dca(p)
	}
	return s.writeSheet(SheetDCA, dcaHeader, rows)
}

func (s *XLSXSink) WriteHistory(ctx context.Context, run models.RunInfo, bars []models.DailyBar) error {
	rows := make([][]any, len(bars))
	for i, b := range bars {
		rows[i] = s.fmt.processed(b)
	}
	return s.writeSheet(SheetHistory, procHeader, rows)
}

// Close saves the workbook.
func (s *XLSXSink) Close() error {
	defer s.file.Close()
	if s.first {
		return nil
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}

// writeSheet streams header and rows into a new sheet. The default sheet is
// renamed for the first table.
func (s *XLSXSink) writeSheet(name string, header []string, rows [][]any) error {
	if s.first {
		if err := s.file.SetSheetName(s.file.GetSheetName(0), name); err != nil {
			return err
		}
		s.first = false
	} else if _, err := s.file.NewSheet(name); err != nil {
		return err
	}

	sw, err := s.file.NewStreamWriter(name)
	if err != nil {
		return err
	}
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := sw.SetRow("A1", head); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, r); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", name, i+2, err)
		}
	}
	return sw.Flush()
}
