package metrics

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval 是自助法得到的置信区间，Mean 和 StdDev 是重抽样统计量的均值和标准差
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	StdDev float64
	Mean   float64
}

// Mean 计算均值，作为 BootstrapSeeded 的统计量使用
func Mean(values []float64) float64 {
	return stat.Mean(values, nil)
}

// BootstrapSeeded 对 values 做 sampleSize 次有放回抽样，每次抽取 len(values) 个样本并用 measure 计算统计量，
// 再取 confidence 对应的分位数作为区间上下限。固定种子，结果可以复现；values 少于两个时区间退化为这个值本身。
func BootstrapSeeded(values []float64, measure func([]float64) float64, sampleSize int,
	confidence float64, seed int64) BootstrapInterval {
	switch len(values) {
	case 0:
		return BootstrapInterval{}
	case 1:
		return BootstrapInterval{Lower: values[0], Upper: values[0], Mean: values[0]}
	}

	random := rand.New(rand.NewSource(seed))
	data := make([]float64, 0, sampleSize)
	for i := 0; i < sampleSize; i++ {
		samples := make([]float64, len(values))
		for j := range samples {
			samples[j] = values[random.Intn(len(values))]
		}
		data = append(data, measure(samples))
	}

	return interval(data, confidence)
}

func interval(data []float64, confidence float64) BootstrapInterval {
	if len(data) == 0 {
		return BootstrapInterval{}
	}

	tail := 1 - confidence
	sort.Float64s(data)
	mean, stdDev := stat.MeanStdDev(data, nil)
	upper := stat.Quantile(1-tail/2, stat.LinInterp, data, nil)
	lower := stat.Quantile(tail/2, stat.LinInterp, data, nil)

	return BootstrapInterval{
		Lower:  lower,
		Upper:  upper,
		StdDev: stdDev,
		Mean:   mean,
	}
}
