package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandchart/bandchart/model"
)

func candlesFromCloses(closes ...float64) []model.Candle {
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{
			Timestamp: int64(i+1) * 60_000,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
		}
	}
	return candles
}

func randomCloses(n int) []float64 {
	r := rand.New(rand.NewSource(42))
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		price += (r.Float64() - 0.5) * 0.8
		closes[i] = price
	}
	return closes
}

func TestCompute(t *testing.T) {
	t.Run("known values", func(t *testing.T) {
		points := Compute(candlesFromCloses(1, 2, 3, 4, 5), model.Inputs{Length: 3, StdDevMultiplier: 2})
		require.Len(t, points, 5)

		assert.False(t, points[0].Defined())
		assert.False(t, points[1].Defined())
		assert.False(t, points[1].Upper.Valid)
		assert.False(t, points[1].Lower.Valid)

		assert.InDelta(t, 2.0, points[2].Basis.Value, 1e-12)
		assert.InDelta(t, 4.0, points[2].Upper.Value, 1e-12)
		assert.InDelta(t, 0.0, points[2].Lower.Value, 1e-12)

		assert.InDelta(t, 3.0, points[3].Basis.Value, 1e-12)
		assert.InDelta(t, 4.0, points[4].Basis.Value, 1e-12)
		assert.InDelta(t, 6.0, points[4].Upper.Value, 1e-12)
	})

	t.Run("empty input", func(t *testing.T) {
		points := Compute(nil, model.DefaultInputs())
		require.NotNil(t, points)
		assert.Empty(t, points)
		assert.Empty(t, Bands([]model.Candle{}, model.Inputs{Length: 3, Offset: 2}))
	})

	t.Run("length coerced to one", func(t *testing.T) {
		for _, length := range []int{0, -5} {
			candles := candlesFromCloses(3, 7, 1, 9)
			points := Compute(candles, model.Inputs{Length: length, StdDevMultiplier: 2})
			require.Len(t, points, len(candles))
			for i, p := range points {
				assert.Equal(t, candles[i].Close, p.Basis.Value)
				assert.Equal(t, p.Basis, p.Upper)
				assert.Equal(t, p.Basis, p.Lower)
			}
		}
	})

	t.Run("zero multiplier collapses the bands", func(t *testing.T) {
		points := Compute(candlesFromCloses(randomCloses(50)...), model.Inputs{Length: 10})
		for _, p := range points[9:] {
			assert.Equal(t, p.Basis, p.Upper)
			assert.Equal(t, p.Basis, p.Lower)
		}
	})

	t.Run("timestamps follow candles", func(t *testing.T) {
		candles := candlesFromCloses(randomCloses(30)...)
		for i, p := range Compute(candles, model.DefaultInputs()) {
			assert.Equal(t, candles[i].Timestamp, p.Timestamp)
		}
	})

	t.Run("other sources", func(t *testing.T) {
		candles := candlesFromCloses(1, 2, 3)
		points := Compute(candles, model.Inputs{Length: 3, Source: model.SourceHigh, StdDevMultiplier: 1})
		assert.InDelta(t, 3.0, points[2].Basis.Value, 1e-12)
		assert.InDelta(t, 4.0, points[2].Upper.Value, 1e-12)
	})

	t.Run("non finite values propagate", func(t *testing.T) {
		points := Compute(candlesFromCloses(1, math.NaN(), 3, 4, 5, 6), model.Inputs{Length: 2, StdDevMultiplier: 2})
		assert.True(t, points[1].Basis.Valid)
		assert.True(t, math.IsNaN(points[1].Basis.Value))
		assert.False(t, points[2].Upper.Finite())
		// 累加和一旦混入 NaN 就一直是 NaN
		assert.True(t, points[5].Basis.Valid)
		assert.False(t, points[5].Basis.Finite())
	})
}

func TestComputeProperties(t *testing.T) {
	closes := randomCloses(200)
	candles := candlesFromCloses(closes...)

	for _, length := range []int{1, 2, 5, 20, 199, 200, 250} {
		inputs := model.Inputs{Length: length, StdDevMultiplier: 2.5}
		points := Compute(candles, inputs)
		require.Len(t, points, len(candles))

		for i, p := range points {
			if i < length-1 {
				assert.False(t, p.Defined(), "length %d index %d", length, i)
				continue
			}

			window := closes[i-length+1 : i+1]
			var sum float64
			for _, v := range window {
				sum += v
			}
			assert.InDelta(t, sum/float64(length), p.Basis.Value, 1e-9)

			upperDist := p.Upper.Value - p.Basis.Value
			lowerDist := p.Basis.Value - p.Lower.Value
			assert.InDelta(t, upperDist, lowerDist, 1e-9)
			assert.InDelta(t, 2.5*SampleStdDev(window), upperDist, 1e-9)
		}
	}
}

func TestSMAMatchesTalib(t *testing.T) {
	closes := randomCloses(120)
	for _, length := range []int{2, 5, 14, 30} {
		expected := talib.Sma(closes, length)
		got := SMA(closes, length)
		for i := length - 1; i < len(closes); i++ {
			assert.InDelta(t, expected[i], got[i].Value, 1e-9, "length %d index %d", length, i)
		}
	}
}

func TestSampleStdDev(t *testing.T) {
	assert.Equal(t, 0.0, SampleStdDev(nil))
	assert.Equal(t, 0.0, SampleStdDev([]float64{42}))
	assert.InDelta(t, 1.0, SampleStdDev([]float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, math.Sqrt(2), SampleStdDev([]float64{1, 3}), 1e-12)
	assert.InDelta(t, 2.138089935, SampleStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}

func TestShift(t *testing.T) {
	candles := candlesFromCloses(randomCloses(40)...)
	unshifted := Compute(candles, model.Inputs{Length: 5, StdDevMultiplier: 2})

	t.Run("zero offset", func(t *testing.T) {
		assert.Equal(t, unshifted, Shift(unshifted, 0))
	})

	for _, k := range []int{1, 3, 39, 40, 55} {
		shifted := Shift(unshifted, k)
		require.Len(t, shifted, len(unshifted))
		for j := range shifted {
			assert.Equal(t, candles[j].Timestamp, shifted[j].Timestamp)
			if j < k {
				assert.False(t, shifted[j].Basis.Valid)
				assert.False(t, shifted[j].Upper.Valid)
				assert.False(t, shifted[j].Lower.Valid)
				continue
			}
			assert.Equal(t, unshifted[j-k].Basis, shifted[j].Basis)
			assert.Equal(t, unshifted[j-k].Upper, shifted[j].Upper)
		}
	}

	for _, k := range []int{-1, -4, -40, -41} {
		shifted := Shift(unshifted, k)
		require.Len(t, shifted, len(unshifted))
		for i := range unshifted {
			j := i + k
			if j >= 0 {
				assert.Equal(t, unshifted[i].Basis, shifted[j].Basis)
				assert.Equal(t, unshifted[i].Lower, shifted[j].Lower)
			}
		}
		tail := -k
		if tail > len(unshifted) {
			tail = len(unshifted)
		}
		for j := len(unshifted) - tail; j < len(unshifted); j++ {
			assert.False(t, shifted[j].Basis.Valid)
			assert.Equal(t, candles[j].Timestamp, shifted[j].Timestamp)
		}
	}
}

func TestBandsAppliesOffset(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)
	points := Bands(candles, model.Inputs{Length: 3, StdDevMultiplier: 2, Offset: 1})
	require.Len(t, points, 5)
	assert.False(t, points[2].Defined())
	assert.InDelta(t, 2.0, points[3].Basis.Value, 1e-12)
	assert.Equal(t, candles[3].Timestamp, points[3].Timestamp)
}
