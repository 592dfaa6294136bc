package plot

import (
	"fmt"
	"strconv"

	"github.com/bandchart/bandchart/indicator"
	"github.com/bandchart/bandchart/model"
)

// Bollinger 是图表上的布林带，保存一个交易对的参数、样式和计算结果。
// 每次加载数据或者修改参数都会在整个序列上重新计算，不做增量更新。
type Bollinger struct {
	inputs  model.Inputs
	style   model.Style
	enabled bool

	candles []model.Candle
	points  []model.BandPoint
}

// NewBollinger 创建布林带，默认已经添加到图表上
func NewBollinger(inputs model.Inputs, style model.Style) *Bollinger {
	return &Bollinger{
		inputs:  inputs.Normalize(),
		style:   style.Normalize(),
		enabled: true,
		points:  make([]model.BandPoint, 0),
	}
}

func (b *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d, %s)", b.inputs.Length, formatMultiplier(b.inputs.StdDevMultiplier))
}

func (b *Bollinger) Overlay() bool {
	return true
}

func (b *Bollinger) Warmup() int {
	return b.inputs.Length
}

// Load 用新的数据帧替换K线并重新计算
func (b *Bollinger) Load(dataframe *model.Dataframe) {
	if dataframe == nil {
		b.candles = nil
	} else {
		b.candles = dataframe.Candles()
	}
	b.recompute()
}

func (b *Bollinger) recompute() {
	b.points = indicator.Bands(b.candles, b.inputs)
}

func (b *Bollinger) Inputs() model.Inputs {
	return b.inputs
}

// SetInputs 校验并应用新的参数，校验失败时保持原来的参数不变
func (b *Bollinger) SetInputs(inputs model.Inputs) error {
	if err := inputs.Validate(); err != nil {
		return err
	}
	b.inputs = inputs.Normalize()
	b.recompute()
	return nil
}

func (b *Bollinger) Style() model.Style {
	return b.style
}

// SetStyle 只影响绘制，不需要重新计算
func (b *Bollinger) SetStyle(style model.Style) {
	b.style = style.Normalize()
}

func (b *Bollinger) Enabled() bool {
	return b.enabled
}

// SetEnabled 对应界面上的添加和移除指标
func (b *Bollinger) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// Series 返回平移之后的布林带，和K线一一对应
func (b *Bollinger) Series() []model.BandPoint {
	return b.points
}

// Metrics 只返回可见的线，指标被移除时为空
func (b *Bollinger) Metrics() []IndicatorMetric {
	metrics := make([]IndicatorMetric, 0, 3)
	if !b.enabled {
		return metrics
	}

	lines := []struct {
		name  string
		style model.LineStyle
		value func(model.BandPoint) model.Level
	}{
		{"basis", b.style.Basis, func(p model.BandPoint) model.Level { return p.Basis }},
		{"upper", b.style.Upper, func(p model.BandPoint) model.Level { return p.Upper }},
		{"lower", b.style.Lower, func(p model.BandPoint) model.Level { return p.Lower }},
	}

	for _, line := range lines {
		if !line.style.Visible {
			continue
		}

		metric := IndicatorMetric{
			Name:   line.name,
			Color:  line.style.Color,
			Style:  string(line.style.Dash),
			Width:  line.style.Width,
			Values: make([]model.Level, len(b.points)),
			Time:   make([]int64, len(b.points)),
		}
		for i, point := range b.points {
			metric.Values[i] = line.value(point)
			metric.Time[i] = point.Timestamp
		}
		metrics = append(metrics, metric)
	}

	return metrics
}

// PolygonPoint 是填充多边形的一个顶点，没有值的顶点由前端跳过
type PolygonPoint struct {
	Timestamp int64       `json:"timestamp"`
	Value     model.Level `json:"value"`
}

// Polygon 返回上下轨之间的填充区域：先按时间顺序走上轨，再倒序走下轨
func (b *Bollinger) Polygon() []PolygonPoint {
	if !b.enabled || !b.style.Background {
		return []PolygonPoint{}
	}

	polygon := make([]PolygonPoint, 0, 2*len(b.points))
	for _, point := range b.points {
		polygon = append(polygon, PolygonPoint{Timestamp: point.Timestamp, Value: point.Upper})
	}
	for i := len(b.points) - 1; i >= 0; i-- {
		polygon = append(polygon, PolygonPoint{Timestamp: b.points[i].Timestamp, Value: b.points[i].Lower})
	}
	return polygon
}

// Tooltip 返回十字光标所在K线的布林带数值，找不到这根K线时返回空字符串
func (b *Bollinger) Tooltip(timestamp int64) string {
	if !b.enabled {
		return ""
	}

	for _, point := range b.points {
		if point.Timestamp != timestamp {
			continue
		}
		return fmt.Sprintf("BOLL(%d, %s)  Basis: %s  Upper: %s  Lower: %s",
			b.inputs.Length, formatMultiplier(b.inputs.StdDevMultiplier),
			formatLevel(point.Basis), formatLevel(point.Upper), formatLevel(point.Lower))
	}
	return ""
}

func formatMultiplier(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatLevel(level model.Level) string {
	if !level.Finite() {
		return "-"
	}
	return strconv.FormatFloat(level.Value, 'f', 2, 64)
}
