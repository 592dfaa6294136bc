package exchange

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/service"
	"github.com/bandchart/bandchart/storage"
)

func fixedSynthetic(t *testing.T, count int, seed int64) *Synthetic {
	t.Helper()
	synthetic, err := NewSynthetic(count, "1m", seed)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	synthetic.Now = func() time.Time { return now }
	return synthetic
}

func TestSynthetic(t *testing.T) {
	synthetic := fixedSynthetic(t, 240, 42)
	candles := synthetic.Generate("BTCUSDT")
	require.Len(t, candles, 240)

	end := time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, end-240*60_000, candles[0].Timestamp)
	assert.Equal(t, 100.0, candles[0].Open)

	for i, c := range candles {
		if i > 0 {
			assert.Equal(t, int64(60_000), c.Timestamp-candles[i-1].Timestamp)
			assert.Equal(t, candles[i-1].Close, c.Open)
		}
		assert.LessOrEqual(t, c.Close-c.Open, syntheticMaxChange+1e-9)
		assert.GreaterOrEqual(t, c.Close, syntheticMinPrice)
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
		assert.GreaterOrEqual(t, c.Volume, 1000.0)
		assert.Less(t, c.Volume, 1500.0)
	}

	// 同一个种子生成同样的数据
	again := fixedSynthetic(t, 240, 42).Generate("BTCUSDT")
	assert.Equal(t, candles, again)
}

func TestSynthetic_InvalidTimeframe(t *testing.T) {
	_, err := NewSynthetic(10, "one minute", 1)
	assert.Error(t, err)
}

func TestWriteCSV_ReadCSV(t *testing.T) {
	candles := fixedSynthetic(t, 5, 7).Generate("BTCUSDT")

	buffer := bytes.NewBuffer(nil)
	require.NoError(t, WriteCSV(buffer, candles, 8))

	read, err := ReadCSV(buffer, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, read, 5)
	for i := range candles {
		assert.Equal(t, candles[i].Timestamp, read[i].Timestamp)
		assert.InDelta(t, candles[i].Close, read[i].Close, 1e-8)
	}
}

type countingLoader struct {
	calls   int
	candles []model.Candle
	err     error
}

func (c *countingLoader) Load(_ context.Context, _ string) ([]model.Candle, error) {
	c.calls++
	return c.candles, c.err
}

func TestFallback(t *testing.T) {
	full := fixedSynthetic(t, 250, 1).Generate("BTCUSDT")

	tt := []struct {
		name     string
		primary  service.Loader
		expected int
	}{
		{"enough candles", &countingLoader{candles: full}, 250},
		{"too few candles", &countingLoader{candles: full[:199]}, DefaultFallbackCount},
		{"exactly the minimum", &countingLoader{candles: full[:200]}, 200},
		{"loader error", &countingLoader{err: errors.New("missing data")}, DefaultFallbackCount},
		{"canceled fetch", service.LoaderFunc(func(_ context.Context, _ string) ([]model.Candle, error) {
			return nil, context.Canceled
		}), DefaultFallbackCount},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			fallback, err := NewFallback(tc.primary, 0, 3)
			require.NoError(t, err)

			candles, err := fallback.Load(context.Background(), "BTCUSDT")
			require.NoError(t, err)
			assert.Len(t, candles, tc.expected)
		})
	}
}

func TestCached(t *testing.T) {
	store, err := storage.FromMemory()
	require.NoError(t, err)
	defer store.Close()

	loader := &countingLoader{candles: fixedSynthetic(t, 10, 5).Generate("BTCUSDT")}
	cached := NewCached(loader, store)

	first, err := cached.Load(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	second, err := cached.Load(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, first, second)

	t.Run("loader error is not cached", func(t *testing.T) {
		failing := NewCached(&countingLoader{err: errors.New("offline")}, store)
		_, err := failing.Load(context.Background(), "ETHUSDT")
		assert.Error(t, err)

		candles, err := store.Candles("ETHUSDT")
		require.NoError(t, err)
		assert.Empty(t, candles)
	})
}
