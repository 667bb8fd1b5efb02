package simulator

import "dipsim/internal/models"

// SimulateDay evaluates every level against one bar and returns the fills in
// ascending level order. levels must already be ascending (GenerateLevels).
// An unusable bar yields nil.
func SimulateDay(bar models.DailyBar, levels []float64) []Fill {
	if !DayUsable(bar) {
		return nil
	}
	var fills []Fill
	for _, level := range levels {
		if fill, ok := EvaluateTrigger(bar, level); ok {
			fills = append(fills, fill)
		}
	}
	return fills
}
