package service

import (
	"context"
	"time"

	"github.com/bandchart/bandchart/model"
)

//go:generate mockery --name=Feeder --output=../mocks
//go:generate mockery --name=Loader --output=../mocks

// Feeder 可以按时间段拉取历史K线，下载器通过它分批下载。
type Feeder interface {
	AssetsInfo(pair string) model.AssetInfo
	CandlesByPeriod(ctx context.Context, pair, timeframe string, start, end time.Time) ([]model.Candle, error)
}

// Loader 一次性加载某个交易对的全部K线，返回的序列按时间戳严格递增。
// 布林带计算器并不关心K线是从文件、网络还是合成出来的。
type Loader interface {
	Load(ctx context.Context, pair string) ([]model.Candle, error)
}

// LoaderFunc 让普通函数实现 Loader
type LoaderFunc func(ctx context.Context, pair string) ([]model.Candle, error)

func (f LoaderFunc) Load(ctx context.Context, pair string) ([]model.Candle, error) {
	return f(ctx, pair)
}

// Sink 是渲染端，只负责接收K线，布林带由它自己按当前参数重新计算
type Sink interface {
	OnCandle(candle model.Candle)
}
