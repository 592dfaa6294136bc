package storage

import (
	"time"

	"github.com/bandchart/bandchart/model"
)

// CandleStore 缓存下载过的K线，避免每次启动都重新访问数据源。
// 只缓存行情数据，指标参数和样式不会落盘。
type CandleStore interface {
	SaveCandles(pair string, candles []model.Candle) error              // 写入K线，同一时间戳会被覆盖
	Candles(pair string, filters ...CandleFilter) ([]model.Candle, error) // 按时间戳升序返回K线
}

// Query 是过滤条件合并后的查询，零值表示不限制
type Query struct {
	Start int64 // 毫秒时间戳，包含
	End   int64 // 毫秒时间戳，包含
	Limit int   // 只返回最后 Limit 根
}

// CandleFilter 修改查询条件
type CandleFilter func(*Query)

// WithTimeRange 只返回 [start, end] 区间内的K线
func WithTimeRange(start, end time.Time) CandleFilter {
	return func(q *Query) {
		q.Start = start.UnixMilli()
		q.End = end.UnixMilli()
	}
}

// WithLimit 只返回最近的 limit 根K线
func WithLimit(limit int) CandleFilter {
	return func(q *Query) {
		q.Limit = limit
	}
}

func buildQuery(filters []CandleFilter) Query {
	var q Query
	for _, filter := range filters {
		filter(&q)
	}
	return q
}

func (q Query) match(timestamp int64) bool {
	if q.Start != 0 && timestamp < q.Start {
		return false
	}
	if q.End != 0 && timestamp > q.End {
		return false
	}
	return true
}

func (q Query) tail(candles []model.Candle) []model.Candle {
	if q.Limit > 0 && len(candles) > q.Limit {
		return candles[len(candles)-q.Limit:]
	}
	return candles
}
