package downloader

import (
	"context"
	"fmt"
	"time"

	"dipsim/internal/models"
	"dipsim/internal/persistence"

	"go.uber.org/zap"
)

// Provider supplies daily bars for one symbol in [start, end). Bars may come
// back in any order; history.Store sorts and de-duplicates them.
type Provider interface {
	Name() string
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error)
}

// CachedProvider serves bars from a local repository when a previous fetch
// already covered the requested window, and fetches and stores otherwise.
type CachedProvider struct {
	inner  Provider
	repo   persistence.BarRepository
	logger *zap.Logger
}

// NewCachedProvider wraps inner with repo.
func NewCachedProvider(inner Provider, repo persistence.BarRepository, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, repo: repo, logger: logger}
}

func (p *CachedProvider) Name() string { return p.inner.Name() + "+cache" }

// FetchDaily 如果缓存已覆盖请求区间，则直接使用缓存，跳过下载。
func (p *CachedProvider) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	cached, err := p.repo.LoadBars(p.inner.Name(), symbol)
	if err != nil {
		p.logger.Warn("bar cache read failed, fetching", zap.String("symbol", symbol), zap.Error(err))
	} else if cached != nil && cached.Covers(start, end) {
		p.logger.Debug("serving bars from cache", zap.String("symbol", symbol), zap.Int("bars", len(cached.Bars)))
		return filterRange(cached.Bars, start, end), nil
	}

	bars, err := p.inner.FetchDaily(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	series := &models.CachedSeries{
		Source:    p.inner.Name(),
		Symbol:    symbol,
		Start:     start,
		End:       end,
		FetchedAt: time.Now().UTC(),
		Bars:      bars,
	}
	if err := p.repo.SaveBars(series); err != nil {
		p.logger.Warn("bar cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return bars, nil
}

func filterRange(bars []models.DailyBar, start, end time.Time) []models.DailyBar {
	out := make([]models.DailyBar, 0, len(bars))
	for _, b := range bars {
		if b.Date.Before(start) || !b.Date.Before(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// dayOf truncates a timestamp to its UTC calendar date.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ErrNoData is returned when a provider answers but has no bars for a symbol.
type ErrNoData struct {
	Provider string
	Symbol   string
}

func (e *ErrNoData) Error() string {
	return fmt.Sprintf("%s: no data for %s", e.Provider, e.Symbol)
}
