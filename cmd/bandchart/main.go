package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/bandchart/bandchart"
	"github.com/bandchart/bandchart/config"
	"github.com/bandchart/bandchart/download"
	"github.com/bandchart/bandchart/exchange"
	"github.com/bandchart/bandchart/indicator"
	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/plot"
	"github.com/bandchart/bandchart/storage"
	"github.com/bandchart/bandchart/tools/log"
)

// loadSettings 读取配置文件，再用命令行参数覆盖
func loadSettings(c *cli.Context) (model.Settings, error) {
	settings, err := config.Load(c.String("config"))
	if err != nil {
		return settings, err
	}

	if c.IsSet("log-level") {
		settings.LogLevel = c.String("log-level")
	}
	log.SetLevel(log.ParseLevel(settings.LogLevel))

	if c.IsSet("pair") {
		settings.Pairs = c.StringSlice("pair")
	}
	if c.IsSet("data") {
		settings.Data.Kind = c.String("data")
	}
	if c.IsSet("path") {
		settings.Data.Path = c.String("path")
	}
	if c.IsSet("timeframe") {
		settings.Data.Timeframe = c.String("timeframe")
	}
	if c.IsSet("min-candles") {
		settings.Data.MinCandles = c.Int("min-candles")
	}
	if c.IsSet("cache") {
		settings.Cache = c.String("cache")
	}

	if c.IsSet("length") {
		settings.Inputs.Length = model.NormalizeLength(c.Float64("length"))
	}
	if c.IsSet("mult") {
		settings.Inputs.StdDevMultiplier = c.Float64("mult")
	}
	if c.IsSet("offset") {
		settings.Inputs.Offset = c.Int("offset")
	}
	if c.IsSet("source") {
		source, err := model.ParseSource(c.String("source"))
		if err != nil {
			return settings, err
		}
		settings.Inputs.Source = source
	}
	if c.IsSet("port") {
		settings.Port = c.Int("port")
	}
	return settings, nil
}

func openBandChart(c *cli.Context, settings model.Settings, options ...bandchart.Option) (*bandchart.BandChart, func(), error) {
	var store storage.CandleStore
	if settings.Cache != "" {
		var err error
		store, err = bandchart.OpenStore(settings.Cache)
		if err != nil {
			return nil, nil, err
		}
	}

	loader, err := bandchart.NewLoader(c.Context, settings, store)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if closer, ok := store.(io.Closer); ok {
			log.CheckErr(log.WarnLevel, closer.Close())
		}
	}
	return bandchart.New(settings, loader, options...), cleanup, nil
}

var dataFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:    "pair",
		Aliases: []string{"p"},
		Usage:   "eg. BTCUSDT",
	},
	&cli.StringFlag{
		Name:  "data",
		Usage: "csv, json, synthetic or binance",
	},
	&cli.StringFlag{
		Name:  "path",
		Usage: "eg. ./data/{pair}.csv or https://example.com/{pair}.json",
	},
	&cli.StringFlag{
		Name:    "timeframe",
		Aliases: []string{"t"},
		Usage:   "eg. 1h",
	},
	&cli.IntFlag{
		Name:  "min-candles",
		Usage: "use synthetic candles when fewer are loaded",
	},
	&cli.StringFlag{
		Name:  "cache",
		Usage: "eg. ./candles.db or ./candles.sqlite",
	},
}

var bandFlags = []cli.Flag{
	&cli.Float64Flag{
		Name:    "length",
		Aliases: []string{"l"},
		Usage:   "moving average length (default 20)",
	},
	&cli.Float64Flag{
		Name:    "mult",
		Aliases: []string{"m"},
		Usage:   "standard deviation multiplier (default 2)",
	},
	&cli.IntFlag{
		Name:  "offset",
		Usage: "shift bands to the right (positive) or left (negative)",
	},
	&cli.StringFlag{
		Name:  "source",
		Usage: "open, high, low or close (default close)",
	},
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	all := make([]cli.Flag, 0)
	for _, group := range groups {
		all = append(all, group...)
	}
	return all
}

func formatLevel(level model.Level) string {
	if !level.Finite() {
		return ""
	}
	return strconv.FormatFloat(level.Value, 'f', 4, 64)
}

// writeBands 输出一个交易对的布林带，format 为 table、csv 或 json
func writeBands(w io.Writer, format string, candles []model.Candle, points []model.BandPoint, source model.Source) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(points)
	case "csv":
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"time", "basis", "upper", "lower"}); err != nil {
			return err
		}
		for _, point := range points {
			err := writer.Write([]string{
				strconv.FormatInt(point.Timestamp, 10),
				formatLevel(point.Basis),
				formatLevel(point.Upper),
				formatLevel(point.Lower),
			})
			if err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	case "table", "":
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Time", string(source), "Basis", "Upper", "Lower"})
		for i, point := range points {
			table.Append([]string{
				time.UnixMilli(point.Timestamp).UTC().Format("2006-01-02 15:04"),
				strconv.FormatFloat(source.Value(candles[i]), 'f', 4, 64),
				formatLevel(point.Basis),
				formatLevel(point.Upper),
				formatLevel(point.Lower),
			})
		}
		table.Render()
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

func outputFile(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

func main() {
	app := &cli.App{
		Name:     "bandchart",
		HelpName: "bandchart",
		Usage:    "Bollinger Bands over candle data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "eg. ./bandchart.yaml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:     "bands",
				HelpName: "bands",
				Usage:    "Compute Bollinger Bands",
				Flags: flags(dataFlags, bandFlags, []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "table, csv or json",
						Value:   "table",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "eg. ./bands.csv (default stdout)",
					},
					&cli.BoolFlag{
						Name:  "summary",
						Usage: "print statistics instead of band values",
					},
				}),
				Action: func(c *cli.Context) error {
					settings, err := loadSettings(c)
					if err != nil {
						return err
					}

					bc, cleanup, err := openBandChart(c, settings)
					if err != nil {
						return err
					}
					defer cleanup()

					if _, err := bc.Load(c.Context); err != nil {
						return err
					}

					output, err := outputFile(c.String("output"))
					if err != nil {
						return err
					}
					if output != os.Stdout {
						defer output.Close()
					}

					if c.Bool("summary") {
						return bc.Summary(output)
					}

					for _, pair := range settings.Pairs {
						candles := bc.Candles(pair)
						points := indicator.Bands(candles, settings.Inputs)
						if err := writeBands(output, c.String("format"), candles, points, settings.Inputs.Source); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Name:     "serve",
				HelpName: "serve",
				Usage:    "Start the chart server",
				Flags: flags(dataFlags, bandFlags, []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "eg. 8080",
					},
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "serve unminified chart script",
					},
				}),
				Action: func(c *cli.Context) error {
					settings, err := loadSettings(c)
					if err != nil {
						return err
					}

					options := []plot.Option{
						plot.WithPort(settings.Port),
						plot.WithInputs(settings.Inputs),
						plot.WithStyle(settings.Style),
					}
					if c.Bool("debug") {
						options = append(options, plot.WithDebug())
					}
					chart, err := plot.NewChart(options...)
					if err != nil {
						return err
					}

					bc, cleanup, err := openBandChart(c, settings, bandchart.WithChart(chart))
					if err != nil {
						return err
					}
					defer cleanup()

					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()

					return bc.Run(ctx)
				},
			},
			{
				Name:     "download",
				HelpName: "download",
				Usage:    "Download historical data",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "pair",
						Aliases:  []string{"p"},
						Usage:    "eg. BTCUSDT",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "days",
						Aliases: []string{"d"},
						Usage:   "eg. 100 (default 30 days)",
					},
					&cli.TimestampFlag{
						Name:    "start",
						Aliases: []string{"s"},
						Usage:   "eg. 2021-12-01",
						Layout:  "2006-01-02",
					},
					&cli.TimestampFlag{
						Name:    "end",
						Aliases: []string{"e"},
						Usage:   "eg. 2020-12-31",
						Layout:  "2006-01-02",
					},
					&cli.StringFlag{
						Name:     "timeframe",
						Aliases:  []string{"t"},
						Usage:    "eg. 1h",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "eg. ./btc.csv",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "hide the progress bar",
					},
				},
				Action: func(c *cli.Context) error {
					binance, err := exchange.NewBinance(c.Context)
					if err != nil {
						return err
					}

					var options []download.Option
					if days := c.Int("days"); days > 0 {
						options = append(options, download.WithDays(days))
					}

					start := c.Timestamp("start")
					end := c.Timestamp("end")
					if start != nil && end != nil && !start.IsZero() && !end.IsZero() {
						options = append(options, download.WithInterval(*start, *end))
					} else if start != nil || end != nil {
						return fmt.Errorf("START and END must be informed together")
					}
					if c.Bool("quiet") {
						options = append(options, download.WithQuiet())
					}

					return download.NewDownloader(binance).Download(c.Context, c.String("pair"),
						c.String("timeframe"), c.String("output"), options...)
				},
			},
			{
				Name:     "synth",
				HelpName: "synth",
				Usage:    "Write synthetic candles",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "pair",
						Aliases: []string{"p"},
						Value:   "BTCUSDT",
					},
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Value:   exchange.DefaultFallbackCount,
					},
					&cli.StringFlag{
						Name:    "timeframe",
						Aliases: []string{"t"},
						Value:   exchange.DefaultFallbackPeriod,
					},
					&cli.Int64Flag{
						Name:  "seed",
						Usage: "random seed (default current time)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "csv or json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "eg. ./synthetic.csv (default stdout)",
					},
				},
				Action: func(c *cli.Context) error {
					seed := c.Int64("seed")
					if !c.IsSet("seed") {
						seed = time.Now().UnixNano()
					}

					synthetic, err := exchange.NewSynthetic(c.Int("count"), c.String("timeframe"), seed)
					if err != nil {
						return err
					}
					candles := synthetic.Generate(c.String("pair"))

					output, err := outputFile(c.String("output"))
					if err != nil {
						return err
					}
					if output != os.Stdout {
						defer output.Close()
					}

					switch c.String("format") {
					case "json":
						return exchange.WriteJSON(output, candles)
					case "csv":
						return exchange.WriteCSV(output, candles, 2)
					}
					return fmt.Errorf("unknown format %q", c.String("format"))
				},
			},
		},
	}

	ctx := context.Background()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
