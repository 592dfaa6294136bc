package bandchart

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bandchart/bandchart/exchange"
	"github.com/bandchart/bandchart/indicator"
	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/plot"
	"github.com/bandchart/bandchart/service"
	"github.com/bandchart/bandchart/storage"
	"github.com/bandchart/bandchart/tools/log"
	"github.com/bandchart/bandchart/tools/metrics"
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04",
	})
}

// BandChart 按交易对加载K线，交给图表和统计使用
type BandChart struct {
	mu       sync.Mutex
	settings model.Settings
	loader   service.Loader
	chart    *plot.Chart
	sinks    []service.Sink

	candles map[string][]model.Candle
}

type Option func(*BandChart)

// WithChart 把K线推送给图表服务，Run 会启动它
func WithChart(chart *plot.Chart) Option {
	return func(b *BandChart) {
		b.chart = chart
		b.sinks = append(b.sinks, chart)
	}
}

// WithSink 添加一个接收K线的渲染端
func WithSink(sink service.Sink) Option {
	return func(b *BandChart) {
		b.sinks = append(b.sinks, sink)
	}
}

// WithLogLevel 设置日志级别
func WithLogLevel(level log.Level) Option {
	return func(_ *BandChart) {
		log.SetLevel(level)
	}
}

func New(settings model.Settings, loader service.Loader, options ...Option) *BandChart {
	settings.Inputs = settings.Inputs.Normalize()
	b := &BandChart{
		settings: settings,
		loader:   loader,
		candles:  make(map[string][]model.Candle),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// Load 依次加载每个交易对的K线并推送给渲染端，任何一个交易对失败都会返回错误
func (b *BandChart) Load(ctx context.Context) (map[string][]model.Candle, error) {
	loaded := make(map[string][]model.Candle, len(b.settings.Pairs))
	for _, pair := range b.settings.Pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candles, err := b.loader.Load(ctx, pair)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", pair, err)
		}
		for i := range candles {
			candles[i].Pair = pair
		}

		log.WithFields(log.Fields{
			"pair":    pair,
			"candles": len(candles),
		}).Info("candles loaded")

		for _, candle := range candles {
			for _, sink := range b.sinks {
				sink.OnCandle(candle)
			}
		}
		loaded[pair] = candles
	}

	b.mu.Lock()
	for pair, candles := range loaded {
		b.candles[pair] = candles
	}
	b.mu.Unlock()
	return loaded, nil
}

// Candles 返回已经加载的K线
func (b *BandChart) Candles(pair string) []model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.candles[pair]
}

// Bands 用启动参数计算已经加载的交易对的布林带
func (b *BandChart) Bands(pair string) []model.BandPoint {
	return indicator.Bands(b.Candles(pair), b.settings.Inputs)
}

// Summary 输出每个交易对的统计表和带宽分布
func (b *BandChart) Summary(w io.Writer) error {
	summaries := make([]metrics.Summary, 0, len(b.settings.Pairs))
	for _, pair := range b.settings.Pairs {
		candles := b.Candles(pair)
		points := indicator.Bands(candles, b.settings.Inputs)
		summaries = append(summaries, metrics.Summarize(pair, candles, points, b.settings.Inputs.Source))
	}

	fmt.Fprintf(w, "-- BOLL(%d, %g) %s --\n", b.settings.Inputs.Length,
		b.settings.Inputs.StdDevMultiplier, b.settings.Inputs.Source)
	metrics.RenderTable(w, summaries)

	for _, summary := range summaries {
		if len(summary.Bandwidths) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n-- %s BANDWIDTH (%%) --\n", summary.Pair)
		if err := metrics.RenderHistogram(w, summary, 10); err != nil {
			return err
		}
	}
	return nil
}

// Run 加载K线后启动图表服务，ctx 结束时关闭服务
func (b *BandChart) Run(ctx context.Context) error {
	if _, err := b.Load(ctx); err != nil {
		return err
	}

	if b.chart == nil {
		<-ctx.Done()
		return nil
	}

	errs := make(chan error, 1)
	go func() {
		errs <- b.chart.Start()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.chart.Shutdown(shutdownCtx)
}

// OpenStore 按文件扩展名打开K线缓存：.sqlite/.sqlite3 使用 SQLite，其他使用 buntdb
func OpenStore(path string) (storage.CandleStore, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sqlite", ".sqlite3":
		store, err := storage.FromSQL(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := storage.FromFile(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// NewLoader 根据数据源设置创建 Loader。
// store 不为空时原始数据会被缓存；json 数据源或者设置了 MinCandles 时，数据不足会退回到合成数据，合成数据不会写进缓存。
func NewLoader(ctx context.Context, settings model.Settings, store storage.CandleStore) (service.Loader, error) {
	data := settings.Data

	var (
		loader service.Loader
		err    error
	)
	switch data.Kind {
	case "csv":
		feeds := make([]exchange.PairFeed, 0, len(settings.Pairs))
		for _, pair := range settings.Pairs {
			feeds = append(feeds, exchange.PairFeed{
				Pair:      pair,
				File:      strings.ReplaceAll(data.Path, "{pair}", pair),
				Timeframe: data.Timeframe,
			})
		}
		loader, err = exchange.NewCSVFeed(data.Timeframe, feeds...)
	case "json":
		loader = exchange.NewJSONFeed(data.Path)
	case "binance":
		loader, err = exchange.NewBinance(ctx, exchange.WithBinanceLoad(data.Timeframe, data.Limit))
	case "synthetic", "":
		timeframe := data.Timeframe
		if timeframe == "" {
			timeframe = exchange.DefaultFallbackPeriod
		}
		synthetic, err := exchange.NewSynthetic(exchange.DefaultFallbackCount, timeframe, time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
		return synthetic, nil
	default:
		return nil, fmt.Errorf("unknown data kind %q", data.Kind)
	}
	if err != nil {
		return nil, err
	}

	if store != nil {
		loader = exchange.NewCached(loader, store)
	}
	if data.Kind == "json" || data.MinCandles > 0 {
		return exchange.NewFallback(loader, data.MinCandles, time.Now().UnixNano())
	}
	return loader, nil
}
