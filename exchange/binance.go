package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"

	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/tools/log"
)

// Binance 通过币安的公开K线接口拉取历史数据，不需要下单权限
type Binance struct {
	client     *binance.Client
	assetsInfo map[string]model.AssetInfo

	APIKey    string
	APISecret string
	BaseURL   string // 为空时使用 SDK 默认地址

	Timeframe string // Load 使用的时间间隔
	Limit     int    // Load 拉取最近多少根K线
	Retries   int    // 请求失败后的重试次数
}

// BinanceOption 定义了一个函数类型，用于通过不同的配置选项来定制化Binance实例。
type BinanceOption func(*Binance)

// WithBinanceCredentials 设置 API 密钥，拉K线本身不需要，但可以提高限频额度
func WithBinanceCredentials(key, secret string) BinanceOption {
	return func(b *Binance) {
		b.APIKey = key
		b.APISecret = secret
	}
}

// WithTestNet 启用Binance的测试网络。
func WithTestNet() BinanceOption {
	return func(b *Binance) {
		binance.UseTestnet = true
	}
}

// WithBinanceBaseURL 替换接口地址，测试和自建代理时使用
func WithBinanceBaseURL(url string) BinanceOption {
	return func(b *Binance) {
		b.BaseURL = url
	}
}

// WithBinanceLoad 设置 Load 拉取的时间间隔和数量
func WithBinanceLoad(timeframe string, limit int) BinanceOption {
	return func(b *Binance) {
		b.Timeframe = timeframe
		b.Limit = limit
	}
}

// NewBinance 创建币安数据源，会先 ping 一次并拉取交易对精度信息
func NewBinance(ctx context.Context, options ...BinanceOption) (*Binance, error) {
	exchange := &Binance{
		Timeframe: "1m",
		Limit:     500,
		Retries:   3,
	}
	for _, option := range options {
		option(exchange)
	}

	exchange.client = binance.NewClient(exchange.APIKey, exchange.APISecret)
	if exchange.BaseURL != "" {
		exchange.client.BaseURL = exchange.BaseURL
	}

	if err := exchange.client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance ping fail: %w", err)
	}

	results, err := exchange.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}

	exchange.assetsInfo = make(map[string]model.AssetInfo)
	for _, info := range results.Symbols {
		exchange.assetsInfo[info.Symbol] = model.AssetInfo{
			BaseAsset:          info.BaseAsset,
			QuoteAsset:         info.QuoteAsset,
			BaseAssetPrecision: info.BaseAssetPrecision,
			QuotePrecision:     info.QuotePrecision,
		}
	}

	log.Info("[SETUP] Using Binance exchange")
	return exchange, nil
}

// AssetsInfo 返回交易对的精度信息，交易所没有返回的交易对按默认精度处理
func (b *Binance) AssetsInfo(pair string) model.AssetInfo {
	if info, ok := b.assetsInfo[pair]; ok {
		return info
	}
	return assetsInfo(pair)
}

// withRetry 在网络错误时按指数退避重试
func (b *Binance) withRetry(ctx context.Context, fn func() error) error {
	ba := &backoff.Backoff{
		Min: 200 * time.Millisecond,
		Max: 5 * time.Second,
	}

	var err error
	for attempt := 0; attempt <= b.Retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == b.Retries {
			break
		}

		wait := ba.Duration()
		log.WithField("attempt", attempt+1).Warnf("binance request failed: %v, retrying in %s", err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// CandlesByLimit 获取最近 limit 根已经收盘的K线
func (b *Binance) CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]model.Candle, error) {
	var data []*binance.Kline
	err := b.withRetry(ctx, func() (err error) {
		// 多要一根，最后一根可能还没收盘
		data, err = b.client.NewKlinesService().
			Symbol(pair).
			Interval(period).
			Limit(limit + 1).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(data))
	for _, d := range data {
		candles = append(candles, CandleFromKline(pair, *d))
	}
	if len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}

	return sortCandles(candles), nil
}

// CandlesByPeriod 方法用于获取指定交易对、周期、时间范围内的 K 线数据。
func (b *Binance) CandlesByPeriod(ctx context.Context, pair, period string,
	start, end time.Time) ([]model.Candle, error) {
	var data []*binance.Kline
	err := b.withRetry(ctx, func() (err error) {
		data, err = b.client.NewKlinesService().
			Symbol(pair).
			Interval(period).
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(data))
	for _, d := range data {
		candles = append(candles, CandleFromKline(pair, *d))
	}

	return sortCandles(candles), nil
}

// Load 实现 service.Loader，拉取最近 Limit 根K线
func (b *Binance) Load(ctx context.Context, pair string) ([]model.Candle, error) {
	return b.CandlesByLimit(ctx, pair, b.Timeframe, b.Limit)
}

// CandleFromKline 将binance.Kline类型的数据转换为model.Candle类型。
func CandleFromKline(pair string, k binance.Kline) model.Candle {
	candle := model.Candle{Pair: pair, Timestamp: k.OpenTime}
	candle.Open, _ = strconv.ParseFloat(k.Open, 64)
	candle.Close, _ = strconv.ParseFloat(k.Close, 64)
	candle.High, _ = strconv.ParseFloat(k.High, 64)
	candle.Low, _ = strconv.ParseFloat(k.Low, 64)
	candle.Volume, _ = strconv.ParseFloat(k.Volume, 64)
	return candle
}
