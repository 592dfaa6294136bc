package download

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/xhit/go-str2duration/v2"

	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/service"
	"github.com/bandchart/bandchart/tools/log"
)

// 每次请求最多拉取的K线数量，币安单次上限是 1000
const batchSize = 500

// Downloader 把历史K线分批拉下来写成 CSV，写出的文件可以直接给 CSVFeed 读取
type Downloader struct {
	exchange service.Feeder
	now      func() time.Time
}

func NewDownloader(exchange service.Feeder) Downloader {
	return Downloader{
		exchange: exchange,
		now:      time.Now,
	}
}

// Parameters 下载的时间区间
type Parameters struct {
	Start time.Time
	End   time.Time
	Quiet bool // 不显示进度条
}

type Option func(*Parameters)

// WithInterval 下载 [start, end] 区间
func WithInterval(start, end time.Time) Option {
	return func(parameters *Parameters) {
		parameters.Start = start
		parameters.End = end
	}
}

// WithDays 下载最近 days 天
func WithDays(days int) Option {
	return func(parameters *Parameters) {
		parameters.Start = time.Now().AddDate(0, 0, -days)
		parameters.End = time.Now()
	}
}

// WithQuiet 关闭进度条
func WithQuiet() Option {
	return func(parameters *Parameters) {
		parameters.Quiet = true
	}
}

func candlesCount(start, end time.Time, timeframe string) (int, time.Duration, error) {
	totalDuration := end.Sub(start)
	interval, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, 0, err
	}
	if interval <= 0 {
		return 0, 0, fmt.Errorf("invalid timeframe: %s", timeframe)
	}
	return int(totalDuration / interval), interval, nil
}

// Download 下载交易对的K线到 output，默认下载最近一个月。
// 开始时间对齐到当天零点，结束时间在过去时同样对齐到零点。
func (d Downloader) Download(ctx context.Context, pair, timeframe string, output string, options ...Option) error {
	now := d.now()
	parameters := &Parameters{
		Start: now.AddDate(0, -1, 0),
		End:   now,
	}

	for _, option := range options {
		option(parameters)
	}

	parameters.Start = time.Date(parameters.Start.Year(), parameters.Start.Month(), parameters.Start.Day(),
		0, 0, 0, 0, time.UTC)

	if now.Sub(parameters.End) > 0 {
		parameters.End = time.Date(parameters.End.Year(), parameters.End.Month(), parameters.End.Day(),
			0, 0, 0, 0, time.UTC)
	} else {
		parameters.End = now
	}

	candlesCount, interval, err := candlesCount(parameters.Start, parameters.End, timeframe)
	if err != nil {
		return err
	}
	candlesCount++

	recordFile, err := os.Create(output)
	if err != nil {
		return err
	}
	defer recordFile.Close()

	log.WithField("pair", pair).Infof("Downloading %d candles of %s", candlesCount, timeframe)
	info := d.exchange.AssetsInfo(pair)
	writer := csv.NewWriter(recordFile)

	var progressBar *progressbar.ProgressBar
	if parameters.Quiet {
		progressBar = progressbar.DefaultSilent(int64(candlesCount))
	} else {
		progressBar = progressbar.Default(int64(candlesCount))
	}

	lostData := 0
	isLastLoop := false

	if err = writer.Write(model.CSVHeader()); err != nil {
		return err
	}

	var lastTimestamp int64
	for begin := parameters.Start; begin.Before(parameters.End); begin = begin.Add(interval * batchSize) {
		end := begin.Add(interval * batchSize)
		if end.Before(parameters.End) {
			end = end.Add(-1 * time.Second)
		} else {
			end = parameters.End
			isLastLoop = true
		}

		candles, err := d.exchange.CandlesByPeriod(ctx, pair, timeframe, begin, end)
		if err != nil {
			return err
		}

		for _, candle := range candles {
			// 批次边界上可能重复返回同一根K线
			if candle.Timestamp <= lastTimestamp {
				continue
			}
			lastTimestamp = candle.Timestamp

			if err := writer.Write(candle.ToSlice(info.QuotePrecision)); err != nil {
				return err
			}
		}

		countCandles := len(candles)
		if !isLastLoop {
			lostData += batchSize - countCandles
		}
		if err = progressBar.Add(countCandles); err != nil {
			log.Warnf("update progresbar fail: %s", err.Error())
		}
	}

	if err = progressBar.Close(); err != nil {
		log.Warnf("close progresbar fail: %s", err.Error())
	}

	if lostData > 0 {
		log.Warnf("%d missing candles", lostData)
	}

	writer.Flush()
	log.Info("Done!")
	return writer.Error()
}
