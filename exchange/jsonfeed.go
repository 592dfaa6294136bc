package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/tools/log"
)

// flexNumber 接受数字或者数字字符串
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*n = flexNumber(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = flexNumber(v)
	return nil
}

// flexTime 接受毫秒时间戳或者日期字符串，数字原样当作毫秒，不做秒级换算
type flexTime int64

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = flexTime(ms)
			return nil
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				*t = flexTime(parsed.UnixMilli())
				return nil
			}
		}
		return fmt.Errorf("invalid timestamp %q", s)
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = flexTime(int64(v))
	return nil
}

type jsonCandle struct {
	Timestamp *flexTime  `json:"timestamp"`
	Open      flexNumber `json:"open"`
	High      flexNumber `json:"high"`
	Low       flexNumber `json:"low"`
	Close     flexNumber `json:"close"`
	Volume    flexNumber `json:"volume"`
}

// DecodeJSON 解析K线数组，缺少时间戳的行会报错
func DecodeJSON(reader io.Reader, pair string) ([]model.Candle, error) {
	var rows []jsonCandle
	if err := json.NewDecoder(reader).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if row.Timestamp == nil {
			return nil, fmt.Errorf("row %d: missing timestamp", i)
		}
		candles = append(candles, model.Candle{
			Pair:      pair,
			Timestamp: int64(*row.Timestamp),
			Open:      float64(row.Open),
			High:      float64(row.High),
			Low:       float64(row.Low),
			Close:     float64(row.Close),
			Volume:    float64(row.Volume),
		})
	}

	return sortCandles(candles), nil
}

// JSONFeed 从本地文件或者 http(s) 地址读取K线数组。
// Source 里的 {pair} 会被替换成交易对名称，一个地址可以服务多个交易对。
type JSONFeed struct {
	Source  string
	Client  *http.Client
	Retries int

	limiter *rate.Limiter
}

// JSONFeedOption 定制 JSONFeed
type JSONFeedOption func(*JSONFeed)

// WithHTTPClient 替换默认的 http 客户端
func WithHTTPClient(client *http.Client) JSONFeedOption {
	return func(f *JSONFeed) {
		f.Client = client
	}
}

// WithRateLimit 限制每秒请求数
func WithRateLimit(perSecond float64, burst int) JSONFeedOption {
	return func(f *JSONFeed) {
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetries 设置服务端错误时的重试次数
func WithRetries(retries int) JSONFeedOption {
	return func(f *JSONFeed) {
		f.Retries = retries
	}
}

func NewJSONFeed(source string, options ...JSONFeedOption) *JSONFeed {
	feed := &JSONFeed{
		Source:  source,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retries: 3,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, option := range options {
		option(feed)
	}
	return feed
}

func (f *JSONFeed) location(pair string) string {
	return strings.ReplaceAll(f.Source, "{pair}", pair)
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Load 实现 service.Loader
func (f *JSONFeed) Load(ctx context.Context, pair string) ([]model.Candle, error) {
	location := f.location(pair)
	if !isRemote(location) {
		file, err := os.Open(location)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return DecodeJSON(file, pair)
	}

	body, err := f.fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return DecodeJSON(bytes.NewReader(body), pair)
}

// retryableError 表示可以重试的错误，网络错误和 5xx
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func (f *JSONFeed) fetch(ctx context.Context, url string) ([]byte, error) {
	ba := &backoff.Backoff{
		Min: 100 * time.Millisecond,
		Max: 3 * time.Second,
	}

	for attempt := 0; ; attempt++ {
		body, err := f.get(ctx, url)
		if err == nil {
			return body, nil
		}

		var retryable retryableError
		if !errors.As(err, &retryable) || attempt >= f.Retries {
			return nil, err
		}

		wait := ba.Duration()
		log.WithFields(log.Fields{"url": url, "attempt": attempt + 1}).
			Warnf("fetch candles failed: %v, retrying in %s", err, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (f *JSONFeed) get(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryableError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryableError{err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, retryableError{err: fmt.Errorf("GET %s: status %d", url, resp.StatusCode)}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return body, nil
}
