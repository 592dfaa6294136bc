package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/xhit/go-str2duration/v2"

	"github.com/bandchart/bandchart/model"
)

// PairFeed 描述一个交易对的 CSV 数据文件
type PairFeed struct {
	Pair      string // 交易对名称，如"BTCUSDT"
	File      string // CSV 文件路径
	Timeframe string // 文件里K线的时间间隔，如 1m、1h
}

// CSVFeed 保存了从 CSV 读出来并重采样到目标时间间隔的K线
type CSVFeed struct {
	Feeds               map[string]PairFeed
	CandlePairTimeFrame map[string][]model.Candle // 键为 "交易对--时间间隔"
	timeframe           string
}

// AssetsInfo 返回交易对的资产信息，精度固定为 8 位
func (c CSVFeed) AssetsInfo(pair string) model.AssetInfo {
	return assetsInfo(pair)
}

// parseHeaders 根据表头确定每个字段所在的列。第一列能解析成数字说明文件没有表头，使用默认列顺序。
func parseHeaders(headers []string) (index map[string]int, ok bool) {
	headerMap := map[string]int{
		"time": 0, "open": 1, "close": 2, "low": 3, "high": 4, "volume": 5,
	}

	if len(headers) == 0 {
		return headerMap, false
	}
	if _, err := strconv.ParseInt(headers[0], 10, 64); err == nil {
		return headerMap, false
	}

	headerMap = make(map[string]int, len(headers))
	for index, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "timestamp" {
			h = "time"
		}
		headerMap[h] = index
	}

	return headerMap, true
}

// ReadCSV 从 reader 读取K线，时间戳可以是秒或者毫秒，成交量列可以不存在
func ReadCSV(reader io.Reader, pair string) ([]model.Candle, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvLines, err := csvReader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(csvLines) == 0 {
		return []model.Candle{}, nil
	}

	headerMap, hasHeaders := parseHeaders(csvLines[0])
	if hasHeaders {
		csvLines = csvLines[1:]
	}

	candles := make([]model.Candle, 0, len(csvLines))
	for line, row := range csvLines {
		field := func(name string) (float64, error) {
			idx, ok := headerMap[name]
			if !ok || idx >= len(row) {
				return 0, nil
			}
			v, err := strconv.ParseFloat(row[idx], 64)
			if err != nil {
				return 0, fmt.Errorf("line %d, column %s: %w", line+1, name, err)
			}
			return v, nil
		}

		timestamp, err := field("time")
		if err != nil {
			return nil, err
		}

		candle := model.Candle{Pair: pair, Timestamp: normalizeTimestamp(int64(timestamp))}
		if candle.Open, err = field("open"); err != nil {
			return nil, err
		}
		if candle.Close, err = field("close"); err != nil {
			return nil, err
		}
		if candle.Low, err = field("low"); err != nil {
			return nil, err
		}
		if candle.High, err = field("high"); err != nil {
			return nil, err
		}
		if candle.Volume, err = field("volume"); err != nil {
			return nil, err
		}

		candles = append(candles, candle)
	}

	return sortCandles(candles), nil
}

// NewCSVFeed 读取 CSV 文件并把K线重采样到 targetTimeframe
func NewCSVFeed(targetTimeframe string, feeds ...PairFeed) (*CSVFeed, error) {
	csvFeed := &CSVFeed{
		Feeds:               make(map[string]PairFeed),
		CandlePairTimeFrame: make(map[string][]model.Candle),
		timeframe:           targetTimeframe,
	}

	for _, feed := range feeds {
		csvFeed.Feeds[feed.Pair] = feed

		csvFile, err := os.Open(feed.File)
		if err != nil {
			return nil, err
		}

		candles, err := ReadCSV(csvFile, feed.Pair)
		csvFile.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", feed.File, err)
		}

		csvFeed.CandlePairTimeFrame[csvFeed.feedTimeframeKey(feed.Pair, feed.Timeframe)] = candles
		if targetTimeframe == "" || targetTimeframe == feed.Timeframe {
			continue
		}

		if err := csvFeed.resample(feed.Pair, feed.Timeframe, targetTimeframe); err != nil {
			return nil, err
		}
	}

	return csvFeed, nil
}

func (c CSVFeed) feedTimeframeKey(pair, timeframe string) string {
	return fmt.Sprintf("%s--%s", pair, timeframe)
}

func (c CSVFeed) timeframeFor(pair string) string {
	if c.timeframe != "" {
		return c.timeframe
	}
	return c.Feeds[pair].Timeframe
}

// Load 返回交易对在目标时间间隔上的全部K线
func (c CSVFeed) Load(_ context.Context, pair string) ([]model.Candle, error) {
	if _, ok := c.Feeds[pair]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	candles := c.CandlePairTimeFrame[c.feedTimeframeKey(pair, c.timeframeFor(pair))]
	return append([]model.Candle(nil), candles...), nil
}

// CandlesByPeriod 返回 [start, end] 区间内的K线
func (c CSVFeed) CandlesByPeriod(_ context.Context, pair, timeframe string,
	start, end time.Time) ([]model.Candle, error) {
	key := c.feedTimeframeKey(pair, timeframe)
	return lo.Filter(c.CandlePairTimeFrame[key], func(candle model.Candle, _ int) bool {
		t := candle.Time()
		return !t.Before(start) && !t.After(end)
	}), nil
}

// Limit 只保留最近 duration 时间内的K线
func (c *CSVFeed) Limit(duration time.Duration) *CSVFeed {
	for key, candles := range c.CandlePairTimeFrame {
		if len(candles) == 0 {
			continue
		}
		start := candles[len(candles)-1].Time().Add(-duration)
		c.CandlePairTimeFrame[key] = lo.Filter(candles, func(candle model.Candle, _ int) bool {
			return candle.Time().After(start)
		})
	}
	return c
}

func isFirstCandlePeriod(t time.Time, fromTimeframe, targetTimeframe string) (bool, error) {
	fromDuration, err := str2duration.ParseDuration(fromTimeframe)
	if err != nil {
		return false, err
	}

	prev := t.Add(-fromDuration).UTC()
	return isLastCandlePeriod(prev, fromTimeframe, targetTimeframe)
}

// isLastCandlePeriod 判断 t 这根K线是否是目标时间间隔里的最后一根
func isLastCandlePeriod(t time.Time, fromTimeframe, targetTimeframe string) (bool, error) {
	if fromTimeframe == targetTimeframe {
		return true, nil
	}

	fromDuration, err := str2duration.ParseDuration(fromTimeframe)
	if err != nil {
		return false, err
	}

	next := t.Add(fromDuration).UTC()

	switch targetTimeframe {
	case "1m":
		return next.Second()%60 == 0, nil
	case "5m":
		return next.Minute()%5 == 0, nil
	case "10m":
		return next.Minute()%10 == 0, nil
	case "15m":
		return next.Minute()%15 == 0, nil
	case "30m":
		return next.Minute()%30 == 0, nil
	case "1h":
		return next.Minute()%60 == 0, nil
	case "2h":
		return next.Minute() == 0 && next.Hour()%2 == 0, nil
	case "4h":
		return next.Minute() == 0 && next.Hour()%4 == 0, nil
	case "12h":
		return next.Minute() == 0 && next.Hour()%12 == 0, nil
	case "1d":
		return next.Minute() == 0 && next.Hour()%24 == 0, nil
	case "1w":
		return next.Minute() == 0 && next.Hour()%24 == 0 && next.Weekday() == time.Sunday, nil
	}

	return false, fmt.Errorf("invalid timeframe: %s", targetTimeframe)
}

// resample 把源时间间隔的K线合并成目标时间间隔，最后一根不完整的K线会被丢弃
func (c *CSVFeed) resample(pair, sourceTimeframe, targetTimeframe string) error {
	sourceKey := c.feedTimeframeKey(pair, sourceTimeframe)
	targetKey := c.feedTimeframeKey(pair, targetTimeframe)
	source := c.CandlePairTimeFrame[sourceKey]

	var i int
	for ; i < len(source); i++ {
		if ok, err := isFirstCandlePeriod(source[i].Time(), sourceTimeframe, targetTimeframe); err != nil {
			return err
		} else if ok {
			break
		}
	}

	candles := make([]model.Candle, 0)
	open := false // 最后一根合并中的K线还没有结束
	for ; i < len(source); i++ {
		candle := source[i]
		last, err := isLastCandlePeriod(candle.Time(), sourceTimeframe, targetTimeframe)
		if err != nil {
			return err
		}

		if lastIndex := len(candles) - 1; lastIndex >= 0 && open {
			merged := candles[lastIndex]
			merged.Close = candle.Close
			merged.High = math.Max(merged.High, candle.High)
			merged.Low = math.Min(merged.Low, candle.Low)
			merged.Volume += candle.Volume
			candles[lastIndex] = merged
		} else {
			candles = append(candles, candle)
		}
		open = !last
	}

	if open && len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}

	c.CandlePairTimeFrame[targetKey] = candles
	return nil
}
