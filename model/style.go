package model

import (
	"fmt"
	"math"
	"regexp"
)

// LineDash 是指标线的线型
type LineDash string

const (
	DashSolid  LineDash = "solid"
	DashDashed LineDash = "dashed"
)

const (
	MinLineWidth = 1
	MaxLineWidth = 5
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// LineStyle 是单条线的样式
type LineStyle struct {
	Visible bool     `json:"visible"`
	Color   string   `json:"color"`
	Width   int      `json:"width"`
	Dash    LineDash `json:"dash"`
}

// Style 是布林带三条线以及背景填充的样式
type Style struct {
	Basis             LineStyle `json:"basis"`
	Upper             LineStyle `json:"upper"`
	Lower             LineStyle `json:"lower"`
	Background        bool      `json:"background"`
	BackgroundOpacity float64   `json:"backgroundOpacity"`
}

// DefaultStyle 中轨绿色，上轨蓝色，下轨红色，灰色半透明背景
func DefaultStyle() Style {
	return Style{
		Basis:             LineStyle{Visible: true, Color: "#22c55e", Width: 2, Dash: DashSolid},
		Upper:             LineStyle{Visible: true, Color: "#3b82f6", Width: 2, Dash: DashSolid},
		Lower:             LineStyle{Visible: true, Color: "#ef4444", Width: 2, Dash: DashSolid},
		Background:        true,
		BackgroundOpacity: 0.12,
	}
}

func (l LineStyle) normalize(fallback LineStyle) LineStyle {
	if l.Width < MinLineWidth {
		l.Width = MinLineWidth
	}
	if l.Width > MaxLineWidth {
		l.Width = MaxLineWidth
	}
	if l.Dash != DashDashed {
		l.Dash = DashSolid
	}
	if !hexColor.MatchString(l.Color) {
		l.Color = fallback.Color
	}
	return l
}

// Normalize 把宽度限制在 1..5，透明度限制在 0..1，非法的颜色和线型用默认值
func (s Style) Normalize() Style {
	def := DefaultStyle()
	s.Basis = s.Basis.normalize(def.Basis)
	s.Upper = s.Upper.normalize(def.Upper)
	s.Lower = s.Lower.normalize(def.Lower)
	s.BackgroundOpacity = clamp01(s.BackgroundOpacity)
	return s
}

// BackgroundColor 返回背景填充色
func (s Style) BackgroundColor() string {
	return fmt.Sprintf("rgba(153,153,153,%g)", clamp01(s.BackgroundOpacity))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
