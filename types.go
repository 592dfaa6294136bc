package bandchart

import (
	"github.com/bandchart/bandchart/model"
)

// 常用类型的别名，调用方只引入根包就够用
type (
	Settings     = model.Settings
	DataSettings = model.DataSettings
	Candle       = model.Candle
	Inputs       = model.Inputs
	Style        = model.Style
	LineStyle    = model.LineStyle
	BandPoint    = model.BandPoint
	Level        = model.Level
	Dataframe    = model.Dataframe
	Series       = model.Series[float64]
	Source       = model.Source
)

var (
	SourceOpen  = model.SourceOpen
	SourceHigh  = model.SourceHigh
	SourceLow   = model.SourceLow
	SourceClose = model.SourceClose
)
