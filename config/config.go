// Package config 用 viper 读取 YAML 配置文件，环境变量可以覆盖文件里的值。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/bandchart/bandchart/model"
)

const EnvPrefix = "BANDCHART"

type Config struct {
	Pairs  []string     `mapstructure:"pairs"`
	Data   DataConfig   `mapstructure:"data"`
	Bands  BandsConfig  `mapstructure:"bands"`
	Style  StyleConfig  `mapstructure:"style"`
	Server ServerConfig `mapstructure:"server"`
	Cache  string       `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
}

type DataConfig struct {
	Kind       string `mapstructure:"kind"` // csv, json, synthetic, binance
	Path       string `mapstructure:"path"`
	Timeframe  string `mapstructure:"timeframe"`
	Limit      int    `mapstructure:"limit"`
	MinCandles int    `mapstructure:"min_candles"`
}

type BandsConfig struct {
	Length           float64 `mapstructure:"length"`
	MAType           string  `mapstructure:"ma_type"`
	Source           string  `mapstructure:"source"`
	StdDevMultiplier float64 `mapstructure:"stddev"`
	Offset           int     `mapstructure:"offset"`
}

type LineConfig struct {
	Visible bool   `mapstructure:"visible"`
	Color   string `mapstructure:"color"`
	Width   int    `mapstructure:"width"`
	Dash    string `mapstructure:"dash"`
}

type StyleConfig struct {
	Basis      LineConfig `mapstructure:"basis"`
	Upper      LineConfig `mapstructure:"upper"`
	Lower      LineConfig `mapstructure:"lower"`
	Background bool       `mapstructure:"background"`
	Opacity    float64    `mapstructure:"opacity"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	inputs := model.DefaultInputs()
	style := model.DefaultStyle()

	v.SetDefault("pairs", []string{"BTCUSDT"})
	v.SetDefault("data.kind", "synthetic")
	v.SetDefault("data.path", "")
	v.SetDefault("data.timeframe", "1m")
	v.SetDefault("data.limit", 500)
	v.SetDefault("data.min_candles", 0)

	v.SetDefault("bands.length", inputs.Length)
	v.SetDefault("bands.ma_type", string(inputs.MAType))
	v.SetDefault("bands.source", string(inputs.Source))
	v.SetDefault("bands.stddev", inputs.StdDevMultiplier)
	v.SetDefault("bands.offset", inputs.Offset)

	for name, line := range map[string]model.LineStyle{
		"basis": style.Basis,
		"upper": style.Upper,
		"lower": style.Lower,
	} {
		v.SetDefault("style."+name+".visible", line.Visible)
		v.SetDefault("style."+name+".color", line.Color)
		v.SetDefault("style."+name+".width", line.Width)
		v.SetDefault("style."+name+".dash", string(line.Dash))
	}
	v.SetDefault("style.background", style.Background)
	v.SetDefault("style.opacity", style.BackgroundOpacity)

	v.SetDefault("server.port", 8080)
	v.SetDefault("cache", "")
	v.SetDefault("log.level", "info")
}

// Load 读取配置文件，path 为空时只使用默认值和环境变量。
// 环境变量使用 BANDCHART_ 前缀，层级用下划线连接，如 BANDCHART_BANDS_LENGTH。
func Load(path string) (model.Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return model.Settings{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return model.Settings{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg.Settings()
}

// Settings 把配置转换成应用设置，非法的数据源和指标参数返回错误
func (c Config) Settings() (model.Settings, error) {
	switch c.Data.Kind {
	case "csv", "json", "synthetic", "binance":
	default:
		return model.Settings{}, fmt.Errorf("unknown data kind %q", c.Data.Kind)
	}
	if (c.Data.Kind == "csv" || c.Data.Kind == "json") && c.Data.Path == "" {
		return model.Settings{}, fmt.Errorf("data kind %s requires a path", c.Data.Kind)
	}

	inputs := model.Inputs{
		Length:           model.NormalizeLength(c.Bands.Length),
		MAType:           model.MAType(c.Bands.MAType),
		Source:           model.Source(c.Bands.Source),
		StdDevMultiplier: c.Bands.StdDevMultiplier,
		Offset:           c.Bands.Offset,
	}
	if err := inputs.Validate(); err != nil {
		return model.Settings{}, err
	}

	return model.Settings{
		Pairs: c.Pairs,
		Data: model.DataSettings{
			Kind:       c.Data.Kind,
			Path:       c.Data.Path,
			Timeframe:  c.Data.Timeframe,
			Limit:      c.Data.Limit,
			MinCandles: c.Data.MinCandles,
		},
		Inputs: inputs.Normalize(),
		Style: model.Style{
			Basis:             c.Style.Basis.lineStyle(),
			Upper:             c.Style.Upper.lineStyle(),
			Lower:             c.Style.Lower.lineStyle(),
			Background:        c.Style.Background,
			BackgroundOpacity: c.Style.Opacity,
		}.Normalize(),
		Port:     c.Server.Port,
		Cache:    c.Cache,
		LogLevel: c.Log.Level,
	}, nil
}

func (l LineConfig) lineStyle() model.LineStyle {
	return model.LineStyle{
		Visible: l.Visible,
		Color:   l.Color,
		Width:   l.Width,
		Dash:    model.LineDash(l.Dash),
	}
}
