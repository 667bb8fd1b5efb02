// Package exporter writes simulation results to files and databases.
package exporter

import (
	"context"
	"errors"
	"fmt"

	"dipsim/internal/models"
)

// Sink receives the results of one run.
type Sink interface {
	Name() string
	WriteEvents(ctx context.Context, run models.RunInfo, events []models.DipEvent) error
	WriteDCA(ctx context.Context, run models.RunInfo, purchases []models.DCAPurchase) error
	Close() error
}

// HistorySink is implemented by sinks that also export the processed daily history.
type HistorySink interface {
	WriteHistory(ctx context.Context, run models.RunInfo, bars []models.DailyBar) error
}

// Multi fans every write out to a list of sinks and stops at the first error.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) WriteEvents(ctx context.Context, run models.RunInfo, events []models.DipEvent) error {
	for _, s := range m {
		if err := s.WriteEvents(ctx, run, events); err != nil {
			return fmt.Errorf("%s: write events: %w", s.Name(), err)
		}
	}
	return nil
}

func (m Multi) WriteDCA(ctx context.Context, run models.RunInfo, purchases []models.DCAPurchase) error {
	for _, s := range m {
		if err := s.WriteDCA(ctx, run, purchases); err != nil {
			return fmt.Errorf("%s: write dca: %w", s.Name(), err)
		}
	}
	return nil
}

// WriteHistory forwards to the sinks that implement HistorySink.
func (m Multi) WriteHistory(ctx context.Context, run models.RunInfo, bars []models.DailyBar) error {
	for _, s := range m {
		hs, ok := s.(HistorySink)
		if !ok {
			continue
		}
		if err := hs.WriteHistory(ctx, run, bars); err != nil {
			return fmt.Errorf("%s: write history: %w", s.Name(), err)
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
