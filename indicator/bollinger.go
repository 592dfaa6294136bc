// Package indicator 计算布林带。
//
// 中轨是长度为 Length 的简单移动平均，上下轨是中轨加减 StdDevMultiplier 倍的样本标准差（分母 n-1）。
// 输出和输入的K线一一对应，历史不足 Length 根的位置三条线都没有值。
package indicator

import (
	"gonum.org/v1/gonum/stat"

	"github.com/bandchart/bandchart/model"
)

// Compute 在整个K线序列上重新计算布林带，结果和 candles 按下标对齐（还没有平移）。
// 空输入返回空切片，任何数值都不会导致错误或 panic。
func Compute(candles []model.Candle, inputs model.Inputs) []model.BandPoint {
	inputs = inputs.Normalize()
	length := inputs.Length
	multiplier := inputs.StdDevMultiplier

	values := make(model.Series[float64], len(candles))
	for i, candle := range candles {
		values[i] = inputs.Source.Value(candle)
	}

	basis := SMA(values, length)
	points := make([]model.BandPoint, len(candles))
	for i, candle := range candles {
		points[i].Timestamp = candle.Timestamp
		if !basis[i].Valid {
			continue
		}

		stdDev := SampleStdDev(values.Window(i, length))
		points[i].Basis = basis[i]
		points[i].Upper = model.Some(basis[i].Value + multiplier*stdDev)
		points[i].Lower = model.Some(basis[i].Value - multiplier*stdDev)
	}

	return points
}

// Bands 计算布林带并按 inputs.Offset 平移
func Bands(candles []model.Candle, inputs model.Inputs) []model.BandPoint {
	return Shift(Compute(candles, inputs), inputs.Offset)
}

// SMA 用累加和计算简单移动平均，时间复杂度 O(n)。
// 前 length-1 个位置没有值；length 小于 1 时按 1 处理。
func SMA(values []float64, length int) []model.Level {
	if length < 1 {
		length = 1
	}

	out := make([]model.Level, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= length {
			sum -= values[i-length]
		}
		if i >= length-1 {
			out[i] = model.Some(sum / float64(length))
		}
	}
	return out
}

// SampleStdDev 返回窗口的样本标准差（除以 n-1）。窗口只有 0 或 1 个值时约定为 0。
func SampleStdDev(window []float64) float64 {
	if len(window) <= 1 {
		return 0
	}
	// gonum 的 StdDev 本身就是无偏估计，分母为 n-1
	return stat.StdDev(window, nil)
}
