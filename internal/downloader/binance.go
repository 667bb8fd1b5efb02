package downloader

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"dipsim/internal/models"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// binanceKlineLimit is the most klines Binance returns per request.
const binanceKlineLimit = 1000

// BinanceProvider fetches daily spot klines from Binance.
type BinanceProvider struct {
	client *binance.Client
	pause  time.Duration
	logger *zap.Logger
}

// NewBinanceProvider creates a provider; keys may be empty since klines are public.
func NewBinanceProvider(apiKey, secretKey string, logger *zap.Logger) *BinanceProvider {
	return &BinanceProvider{
		client: binance.NewClient(apiKey, secretKey),
		pause:  200 * time.Millisecond,
		logger: logger,
	}
}

func (p *BinanceProvider) Name() string { return "binance" }

// FetchDaily pages through 1d klines from start until end.
func (p *BinanceProvider) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	var bars []models.DailyBar

	for t := start; t.Before(end); {
		klines, err := p.client.NewKlinesService().
			Symbol(symbol).
			Interval("1d").
			StartTime(t.UnixMilli()).
			EndTime(end.UnixMilli() - 1).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bars = append(bars, models.DailyBar{
				Symbol: symbol,
				Date:   dayOf(time.UnixMilli(k.OpenTime).UTC()),
				Open:   parsePrice(k.Open),
				High:   parsePrice(k.High),
				Low:    parsePrice(k.Low),
				Close:  parsePrice(k.Close),
				Volume: parsePrice(k.Volume),
			})
		}

		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		p.logger.Debug("downloaded klines", zap.String("symbol", symbol), zap.Time("until", t))
		if len(klines) < binanceKlineLimit {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pause):
		}
	}

	if len(bars) == 0 {
		return nil, &ErrNoData{Provider: p.Name(), Symbol: symbol}
	}
	return bars, nil
}

// parsePrice converts a Binance decimal string; unparsable values become NaN.
func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
