// Package simulator implements the buy-on-dip event simulation: dip level
// generation, per-day trigger evaluation and the per-symbol cumulative fold.
package simulator

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"dipsim/internal/models"

	"github.com/shopspring/decimal"
)

// ErrInvalidDipConfig is returned for any dip level configuration that cannot
// produce a usable level set. It is fatal to a run.
var ErrInvalidDipConfig = errors.New("invalid dip level config")

var hundred = decimal.NewFromInt(100)

// GenerateLevels returns the strictly ascending, distinct set of dip levels
// (percent, each in (0, 100]) described by cfg.
func GenerateLevels(cfg models.DipLevelConfig) ([]float64, error) {
	switch cfg.Mode {
	case models.DipModeList:
		return listLevels(cfg.Levels)
	case models.DipModeRange, "":
		return rangeLevels(cfg.Min, cfg.Step, cfg.Max)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidDipConfig, cfg.Mode)
	}
}

func listLevels(in []float64) ([]float64, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: level list is empty", ErrInvalidDipConfig)
	}
	levels := make([]float64, 0, len(in))
	for _, l := range in {
		if err := checkLevel(l); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	sort.Float64s(levels)

	out := levels[:1]
	for _, l := range levels[1:] {
		if l != out[len(out)-1] {
			out = append(out, l)
		}
	}
	return out, nil
}

func rangeLevels(minLevel, step, maxLevel float64) ([]float64, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: step must be positive, got %v", ErrInvalidDipConfig, step)
	}
	if maxLevel < step {
		return nil, fmt.Errorf("%w: max %v is below step %v", ErrInvalidDipConfig, maxLevel, step)
	}
	if minLevel == 0 {
		minLevel = step
	}
	if minLevel > maxLevel {
		return nil, fmt.Errorf("%w: min %v is above max %v", ErrInvalidDipConfig, minLevel, maxLevel)
	}
	if err := checkLevel(minLevel); err != nil {
		return nil, err
	}
	if err := checkLevel(maxLevel); err != nil {
		return nil, err
	}

	// Decimal steps keep 0.1 + 0.1 + 0.1 equal to 0.3.
	dStep := decimal.NewFromFloat(step)
	dMax := decimal.NewFromFloat(maxLevel)
	var levels []float64
	for l := decimal.NewFromFloat(minLevel); l.LessThanOrEqual(dMax); l = l.Add(dStep) {
		levels = append(levels, l.InexactFloat64())
	}
	return levels, nil
}

func checkLevel(l float64) error {
	if math.IsNaN(l) || l <= 0 || l > 100 {
		return fmt.Errorf("%w: level %v outside (0, 100]", ErrInvalidDipConfig, l)
	}
	return nil
}
