package exchange

import (
	"context"
	"fmt"

	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/service"
	"github.com/bandchart/bandchart/storage"
	"github.com/bandchart/bandchart/tools/log"
)

const (
	DefaultMinCandles     = 200
	DefaultFallbackCount  = 240
	DefaultFallbackPeriod = "1m"
)

// Fallback 在主数据源出错或者K线太少时改用合成数据，图表总有东西可画
type Fallback struct {
	Primary    service.Loader
	Secondary  service.Loader
	MinCandles int
}

// NewFallback 创建带合成数据兜底的数据源，minCandles 为 0 时使用默认的 200
func NewFallback(primary service.Loader, minCandles int, seed int64) (*Fallback, error) {
	synthetic, err := NewSynthetic(DefaultFallbackCount, DefaultFallbackPeriod, seed)
	if err != nil {
		return nil, err
	}
	if minCandles <= 0 {
		minCandles = DefaultMinCandles
	}
	return &Fallback{
		Primary:    primary,
		Secondary:  synthetic,
		MinCandles: minCandles,
	}, nil
}

func (f *Fallback) Load(ctx context.Context, pair string) ([]model.Candle, error) {
	candles, err := f.Primary.Load(ctx, pair)
	switch {
	case err != nil:
		log.WithField("pair", pair).Warnf("load candles failed, using synthetic data: %v", err)
	case len(candles) < f.MinCandles:
		log.WithField("pair", pair).Warnf("%v: got %d candles, need %d, using synthetic data",
			ErrInsufficientData, len(candles), f.MinCandles)
	default:
		return candles, nil
	}
	return f.Secondary.Load(ctx, pair)
}

// Cached 先查本地缓存，缓存里没有时才访问数据源并写回缓存
type Cached struct {
	Loader service.Loader
	Store  storage.CandleStore
}

func NewCached(loader service.Loader, store storage.CandleStore) *Cached {
	return &Cached{Loader: loader, Store: store}
}

func (c *Cached) Load(ctx context.Context, pair string) ([]model.Candle, error) {
	candles, err := c.Store.Candles(pair)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if len(candles) > 0 {
		log.WithField("pair", pair).Debugf("loaded %d candles from cache", len(candles))
		return candles, nil
	}

	candles, err = c.Loader.Load(ctx, pair)
	if err != nil {
		return nil, err
	}

	if err := c.Store.SaveCandles(pair, candles); err != nil {
		return nil, fmt.Errorf("write cache: %w", err)
	}
	return candles, nil
}
