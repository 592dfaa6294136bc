package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonCandles = `[
  {"timestamp": "2024-01-01T00:01:00Z", "open": "2", "high": "3.5", "low": "1.5", "close": "3"},
  {"timestamp": 1704067200000, "open": 1, "high": 2.5, "low": 0.5, "close": 2, "volume": 10},
  {"timestamp": "2024-01-02", "open": 5, "high": 6, "low": 4, "close": 5.5, "volume": "7.5"}
]`

func TestDecodeJSON(t *testing.T) {
	candles, err := DecodeJSON(strings.NewReader(jsonCandles), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, int64(1704067200000), candles[0].Timestamp)
	assert.Equal(t, 10.0, candles[0].Volume)

	assert.Equal(t, int64(1704067260000), candles[1].Timestamp)
	assert.Equal(t, 3.0, candles[1].Close)
	assert.Zero(t, candles[1].Volume)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(), candles[2].Timestamp)
	assert.Equal(t, 7.5, candles[2].Volume)
	assert.Equal(t, "BTCUSDT", candles[2].Pair)
}

func TestDecodeJSON_Milliseconds(t *testing.T) {
	data := `[
  {"timestamp": 946684800000, "open": 1, "high": 1, "low": 1, "close": 1},
  {"timestamp": "60000", "open": 2, "high": 2, "low": 2, "close": 2}
]`
	candles, err := DecodeJSON(strings.NewReader(data), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// 2001 年之前的毫秒时间戳不能被当成秒
	assert.Equal(t, int64(60000), candles[0].Timestamp)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), candles[1].Timestamp)
}

func TestDecodeJSON_Errors(t *testing.T) {
	tt := map[string]string{
		"not an array":      `{"timestamp": 1}`,
		"missing timestamp": `[{"open": 1}]`,
		"bad date":          `[{"timestamp": "yesterday"}]`,
		"bad number":        `[{"timestamp": 1704067200000, "close": "abc"}]`,
	}
	for name, data := range tt {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeJSON(strings.NewReader(data), "BTCUSDT")
			assert.Error(t, err)
		})
	}
}

func TestJSONFeed_File(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTCUSDT.json"), []byte(jsonCandles), 0o600))

	feed := NewJSONFeed(filepath.Join(dir, "{pair}.json"))

	candles, err := feed.Load(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, candles, 3)

	_, err = feed.Load(context.Background(), "ETHUSDT")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestJSONFeed_HTTP(t *testing.T) {
	t.Run("retry on server error", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			assert.Equal(t, "/candles/BTCUSDT", r.URL.Path)
			_, _ = w.Write([]byte(jsonCandles))
		}))
		defer server.Close()

		feed := NewJSONFeed(server.URL+"/candles/{pair}", WithRateLimit(1000, 10), WithRetries(3))
		candles, err := feed.Load(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Len(t, candles, 3)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		feed := NewJSONFeed(server.URL, WithRateLimit(1000, 10))
		_, err := feed.Load(context.Background(), "BTCUSDT")
		assert.ErrorContains(t, err, "status 404")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("gives up after retries", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		feed := NewJSONFeed(server.URL, WithRateLimit(1000, 10), WithRetries(1))
		_, err := feed.Load(context.Background(), "BTCUSDT")
		assert.ErrorContains(t, err, "status 503")
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}
