package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrUnknownMAType = errors.New("unknown moving average type")
)

// Source 选择从K线的哪个字段取值。这是一个封闭的集合，新增字段只需要在这里加一个分支。
type Source string

const (
	SourceOpen  Source = "open"
	SourceHigh  Source = "high"
	SourceLow   Source = "low"
	SourceClose Source = "close"
)

// Sources 返回所有支持的取值字段
func Sources() []Source {
	return []Source{SourceOpen, SourceHigh, SourceLow, SourceClose}
}

// ParseSource 把字符串解析成 Source，大小写不敏感，空字符串视为 close
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceClose:
		return SourceClose, nil
	case SourceOpen:
		return SourceOpen, nil
	case SourceHigh:
		return SourceHigh, nil
	case SourceLow:
		return SourceLow, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Value 取出K线中对应字段的值，零值 Source 按 close 处理
func (s Source) Value(c Candle) float64 {
	switch s {
	case SourceOpen:
		return c.Open
	case SourceHigh:
		return c.High
	case SourceLow:
		return c.Low
	default:
		return c.Close
	}
}

// MAType 是中轨使用的移动平均类型，目前只有 SMA
type MAType string

const MATypeSMA MAType = "SMA"

// ParseMAType 解析移动平均类型，空字符串视为 SMA
func ParseMAType(s string) (MAType, error) {
	switch MAType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", MATypeSMA:
		return MATypeSMA, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMAType, s)
}

// DefaultInputs 返回布林带的默认参数 BB(20, 2)
func DefaultInputs() Inputs {
	return Inputs{
		Length:           20,
		MAType:           MATypeSMA,
		Source:           SourceClose,
		StdDevMultiplier: 2,
		Offset:           0,
	}
}

// NormalizeLength 把任意数值的窗口长度变成 >= 1 的整数，小数向下取整
func NormalizeLength(length float64) int {
	if math.IsNaN(length) || length < 1 {
		return 1
	}
	if length > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(length))
}

// Normalize 返回规范化后的参数：长度至少为 1，类型和字段统一大小写，空值用默认值。倍数原样保留，可以是 0。
func (in Inputs) Normalize() Inputs {
	if in.Length < 1 {
		in.Length = 1
	}
	if maType, err := ParseMAType(string(in.MAType)); err == nil {
		in.MAType = maType
	}
	if source, err := ParseSource(string(in.Source)); err == nil {
		in.Source = source
	}
	return in
}

// Validate 检查枚举字段是否合法
func (in Inputs) Validate() error {
	if _, err := ParseSource(string(in.Source)); err != nil {
		return err
	}
	if _, err := ParseMAType(string(in.MAType)); err != nil {
		return err
	}
	return nil
}

// Level 是一个可能不存在的数值。Valid 为 false 表示历史数据不够，不应该被绘制。
// Valid 只表示“有值”，源数据本身是 NaN 时会得到 Valid 但非有限的值。
type Level struct {
	Value float64
	Valid bool
}

// Some 返回一个有值的 Level
func Some(v float64) Level {
	return Level{Value: v, Valid: true}
}

// None 返回一个没有值的 Level
func None() Level {
	return Level{}
}

// Finite 表示这个值可以被绘制
func (l Level) Finite() bool {
	return l.Valid && !math.IsNaN(l.Value) && !math.IsInf(l.Value, 0)
}

// MarshalJSON 没有值或者不是有限数时输出 null
func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Finite() {
		return []byte("null"), nil
	}
	return json.Marshal(l.Value)
}

// UnmarshalJSON null 解析为没有值
func (l *Level) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*l = Some(v)
	return nil
}

// BandPoint 是某个时间点上的布林带三条线
type BandPoint struct {
	Timestamp int64 `json:"timestamp"`
	Basis     Level `json:"basis"`
	Upper     Level `json:"upper"`
	Lower     Level `json:"lower"`
}

// Defined 表示中轨有值
func (p BandPoint) Defined() bool {
	return p.Basis.Valid
}

// Width 返回带宽 (upper-lower)/basis，中轨不可用或者为 0 时没有值
func (p BandPoint) Width() Level {
	if !p.Basis.Finite() || !p.Upper.Finite() || !p.Lower.Finite() || p.Basis.Value == 0 {
		return None()
	}
	return Some((p.Upper.Value - p.Lower.Value) / p.Basis.Value)
}
