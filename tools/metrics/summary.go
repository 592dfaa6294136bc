package metrics

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"

	"github.com/bandchart/bandchart/model"
)

// Summary 是一个交易对布林带的统计结果
type Summary struct {
	Pair       string
	Candles    int
	Defined    int // 有完整上中下轨的点数
	AboveUpper int // 取值高于上轨的次数
	BelowLower int // 取值低于下轨的次数

	MeanBandwidth float64     // (上轨-下轨)/中轨 的均值
	PercentB      model.Level // 最后一根K线的 %B
	Bandwidth     BootstrapInterval

	Bandwidths []float64
}

// 统计时的重抽样次数
const bootstrapSamples = 2000

// Summarize 按位置对齐K线和布林带点，points 需要和 candles 一样长。
// 取值使用 source，越过轨道的判断只看有定义且有限的点。
func Summarize(pair string, candles []model.Candle, points []model.BandPoint, source model.Source) Summary {
	summary := Summary{
		Pair:       pair,
		Candles:    len(candles),
		Bandwidths: make([]float64, 0, len(points)),
	}

	n := len(candles)
	if len(points) < n {
		n = len(points)
	}

	for i := 0; i < n; i++ {
		point := points[i]
		if !point.Defined() || !point.Upper.Finite() || !point.Lower.Finite() || !point.Basis.Finite() {
			continue
		}
		summary.Defined++

		value := source.Value(candles[i])
		switch {
		case value > point.Upper.Value:
			summary.AboveUpper++
		case value < point.Lower.Value:
			summary.BelowLower++
		}

		if width := point.Width(); width.Finite() {
			summary.Bandwidths = append(summary.Bandwidths, width.Value)
		}
	}

	if len(summary.Bandwidths) > 0 {
		summary.MeanBandwidth = Mean(summary.Bandwidths)
		summary.Bandwidth = BootstrapSeeded(summary.Bandwidths, Mean, bootstrapSamples, 0.95, 1)
	}

	if n > 0 {
		summary.PercentB = PercentB(source.Value(candles[n-1]), points[n-1])
	}

	return summary
}

// PercentB 计算价格在带内的相对位置，下轨为 0，上轨为 1，带宽为 0 时没有定义
func PercentB(value float64, point model.BandPoint) model.Level {
	if !point.Upper.Finite() || !point.Lower.Finite() {
		return model.None()
	}
	width := point.Upper.Value - point.Lower.Value
	if width == 0 {
		return model.None()
	}
	return model.Some((value - point.Lower.Value) / width)
}

func formatLevel(level model.Level, precision int) string {
	if !level.Finite() {
		return "-"
	}
	return strconv.FormatFloat(level.Value, 'f', precision, 64)
}

// RenderTable 把多个交易对的统计结果画成表格
func RenderTable(w io.Writer, summaries []Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Pair", "Candles", "Defined", "Above", "Below", "Bandwidth", "95% CI", "%B"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)

	var candles, defined, above, below int
	for _, summary := range summaries {
		table.Append([]string{
			summary.Pair,
			strconv.Itoa(summary.Candles),
			strconv.Itoa(summary.Defined),
			strconv.Itoa(summary.AboveUpper),
			strconv.Itoa(summary.BelowLower),
			fmt.Sprintf("%.4f", summary.MeanBandwidth),
			fmt.Sprintf("%.4f - %.4f", summary.Bandwidth.Lower, summary.Bandwidth.Upper),
			formatLevel(summary.PercentB, 2),
		})
		candles += summary.Candles
		defined += summary.Defined
		above += summary.AboveUpper
		below += summary.BelowLower
	}

	table.SetFooter([]string{
		"TOTAL",
		strconv.Itoa(candles),
		strconv.Itoa(defined),
		strconv.Itoa(above),
		strconv.Itoa(below),
		"", "", "",
	})
	table.Render()
}

// RenderHistogram 画出带宽分布，没有数据时什么都不写
func RenderHistogram(w io.Writer, summary Summary, bins int) error {
	if len(summary.Bandwidths) == 0 {
		return nil
	}

	values := make([]float64, 0, len(summary.Bandwidths))
	for _, v := range summary.Bandwidths {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			values = append(values, v*100)
		}
	}

	hist := histogram.Hist(bins, values)
	return histogram.Fprint(w, hist, histogram.Linear(10))
}
