package exchange

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/xhit/go-str2duration/v2"

	"github.com/bandchart/bandchart/model"
)

const (
	syntheticStartPrice = 100.0
	syntheticMaxChange  = 0.4 // 每根K线收盘价变化的最大幅度
	syntheticMaxWick    = 0.6 // 上下影线的最大长度
	syntheticMinPrice   = 1.0
)

// Synthetic 生成随机游走的K线，没有真实数据时用来演示
type Synthetic struct {
	Count    int
	Interval time.Duration
	Now      func() time.Time

	mu     sync.Mutex
	random *rand.Rand
}

// NewSynthetic 创建合成数据源，timeframe 使用 1m、4h、1d 这样的写法
func NewSynthetic(count int, timeframe string, seed int64) (*Synthetic, error) {
	interval, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return nil, err
	}
	return &Synthetic{
		Count:    count,
		Interval: interval,
		Now:      time.Now,
		random:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Generate 生成 Count 根K线，最后一根在当前时间之前
func (s *Synthetic) Generate(pair string) []model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Count <= 0 {
		return []model.Candle{}
	}

	step := s.Interval.Milliseconds()
	start := s.Now().UnixMilli() - int64(s.Count)*step
	price := syntheticStartPrice

	candles := make([]model.Candle, 0, s.Count)
	for i := 0; i < s.Count; i++ {
		change := (s.random.Float64() - 0.5) * 2 * syntheticMaxChange
		open := price
		price = math.Max(syntheticMinPrice, price+change)
		candles = append(candles, model.Candle{
			Pair:      pair,
			Timestamp: start + int64(i)*step,
			Open:      open,
			Close:     price,
			High:      math.Max(open, price) + s.random.Float64()*syntheticMaxWick,
			Low:       math.Min(open, price) - s.random.Float64()*syntheticMaxWick,
			Volume:    1000 + s.random.Float64()*500,
		})
	}
	return candles
}

// Load 实现 service.Loader
func (s *Synthetic) Load(_ context.Context, pair string) ([]model.Candle, error) {
	return s.Generate(pair), nil
}

// WriteCSV 按下载器的格式写出K线
func WriteCSV(w io.Writer, candles []model.Candle, precision int) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(model.CSVHeader()); err != nil {
		return err
	}
	for _, candle := range candles {
		if err := writer.Write(candle.ToSlice(precision)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON 写出 JSONFeed 能读取的K线数组
func WriteJSON(w io.Writer, candles []model.Candle) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(candles)
}
