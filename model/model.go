// 定义模型包
package model

import (
	"fmt"
	"strconv"
	"time"
)

// DataSettings 描述K线数据从哪里来
type DataSettings struct {
	Kind       string // 数据源类型: csv, json, synthetic, binance
	Path       string // 文件路径或者 http(s) URL
	Timeframe  string // 合成数据或币安数据的时间间隔，如 1m
	Limit      int    // 币安数据加载最近多少根K线
	MinCandles int    // 少于这个数量时退回到合成数据，0 表示不退回
}

// Settings 定义了整个应用的设置
// 指标参数和样式只作为启动时的默认值，运行中的修改不会被保存。
type Settings struct {
	Pairs    []string     // 交易对列表
	Data     DataSettings // 数据源
	Inputs   Inputs       // 布林带计算参数
	Style    Style        // 布林带绘制样式
	Port     int          // 图表服务端口
	Cache    string       // K线缓存文件，空字符串表示不缓存
	LogLevel string       // 日志级别
}

// Inputs 是布林带的计算参数，规范化见 Inputs.Normalize 和 NormalizeLength
type Inputs struct {
	Length           int     `json:"length"`           // 窗口长度
	MAType           MAType  `json:"maType"`           // 移动平均类型
	Source           Source  `json:"source"`           // 取值字段
	StdDevMultiplier float64 `json:"stdDevMultiplier"` // 标准差倍数
	Offset           int     `json:"offset"`           // 正数向右平移，负数向左平移
}

// AssetInfo 定义了交易对的资产信息，下载时用报价精度格式化价格
type AssetInfo struct {
	BaseAsset  string // 基础资产，如 BTC
	QuoteAsset string // 报价资产，如 USDT

	QuotePrecision     int // 价格的小数位数
	BaseAssetPrecision int // 数量的小数位数
}

// Dataframe 定义了数据帧的结构，用于存储和处理时间序列数据，可以根据每个时间点给出这个交易对的数据，如最高价，最低价，交易量等
type Dataframe struct {
	Pair string // 交易对

	Close  Series[float64] // 收盘价序列
	Open   Series[float64] // 开盘价序列
	High   Series[float64] // 最高价序列
	Low    Series[float64] // 最低价序列
	Volume Series[float64] // 成交量序列

	Time       []int64   // 毫秒时间戳序列
	LastUpdate time.Time // 最后更新时间
}

// NewDataframe 把一组K线按列展开
func NewDataframe(pair string, candles []Candle) *Dataframe {
	df := &Dataframe{
		Pair:   pair,
		Close:  make(Series[float64], 0, len(candles)),
		Open:   make(Series[float64], 0, len(candles)),
		High:   make(Series[float64], 0, len(candles)),
		Low:    make(Series[float64], 0, len(candles)),
		Volume: make(Series[float64], 0, len(candles)),
		Time:   make([]int64, 0, len(candles)),
	}
	for _, candle := range candles {
		df.Append(candle)
	}
	return df
}

// Append 在数据帧末尾追加一根K线
func (df *Dataframe) Append(candle Candle) {
	df.Close = append(df.Close, candle.Close)
	df.Open = append(df.Open, candle.Open)
	df.High = append(df.High, candle.High)
	df.Low = append(df.Low, candle.Low)
	df.Volume = append(df.Volume, candle.Volume)
	df.Time = append(df.Time, candle.Timestamp)
	df.LastUpdate = candle.Time()
}

// Len 返回数据帧里K线的数量
func (df *Dataframe) Len() int {
	return len(df.Time)
}

// Candles 把数据帧还原成K线切片
func (df *Dataframe) Candles() []Candle {
	candles := make([]Candle, df.Len())
	for i := range df.Time {
		candles[i] = Candle{
			Pair:      df.Pair,
			Timestamp: df.Time[i],
			Open:      df.Open[i],
			High:      df.High[i],
			Low:       df.Low[i],
			Close:     df.Close[i],
			Volume:    df.Volume[i],
		}
	}
	return candles
}

// Candle 定义了K线的结构，生成之后不再修改
type Candle struct {
	Pair      string  `json:"pair,omitempty"`
	Timestamp int64   `json:"timestamp"` // 毫秒时间戳，序列内严格递增
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"` // 没有成交量时为 0
}

// Time 返回K线的开始时间（UTC）
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// ToSlice 方法将Candle的数据转换成字符串切片，列的顺序和 CSV 表头一致
func (c Candle) ToSlice(precision int) []string {
	return []string{
		fmt.Sprintf("%d", c.Timestamp),
		strconv.FormatFloat(c.Open, 'f', precision, 64),
		strconv.FormatFloat(c.Close, 'f', precision, 64),
		strconv.FormatFloat(c.Low, 'f', precision, 64),
		strconv.FormatFloat(c.High, 'f', precision, 64),
		strconv.FormatFloat(c.Volume, 'f', precision, 64),
	}
}

// CSVHeader 是 ToSlice 对应的表头
func CSVHeader() []string {
	return []string{"time", "open", "close", "low", "high", "volume"}
}
