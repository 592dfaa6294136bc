package plot

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/bandchart/bandchart/exchange"
	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/tools/log"
)

var (
	//go:embed assets
	staticFiles embed.FS
)

// Chart 是图表服务，按交易对保存K线和布林带。
// 所有状态都由互斥锁保护，HTTP 请求和 OnCandle 可以并发调用。
type Chart struct {
	sync.Mutex
	port  int
	debug bool

	candles   map[string][]Candle
	dataframe map[string]*model.Dataframe
	pairs     *set.LinkedHashSetString // 按第一次出现的顺序保存交易对
	studies   map[string]*Bollinger
	dirty     map[string]bool // 有新K线，下次读取前需要重新计算

	inputs model.Inputs // 新交易对使用的默认参数
	style  model.Style

	scriptContent string
	indexHTML     *template.Template
	lastUpdate    time.Time
	metrics       *chartMetrics
	server        *http.Server
}

// Candle 是发给前端的K线，时间是毫秒时间戳
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume float64 `json:"volume"`
}

type plotIndicator struct {
	Name    string            `json:"name"`
	Overlay bool              `json:"overlay"`
	Metrics []IndicatorMetric `json:"metrics"`
	Warmup  int               `json:"warmup"` // 前端初始视图从第一根有值的K线开始
}

// Indicator 是可以画在图表上的指标
type Indicator interface {
	Name() string
	Overlay() bool
	Warmup() int
	Metrics() []IndicatorMetric
	Load(dataframe *model.Dataframe)
}

var _ Indicator = (*Bollinger)(nil)

// IndicatorMetric 是指标中的一条线，没有值的位置为 null
type IndicatorMetric struct {
	Name   string        `json:"name"`
	Color  string        `json:"color"`
	Style  string        `json:"style"` // solid 或者 dashed
	Width  int           `json:"width"`
	Values []model.Level `json:"value"`
	Time   []int64       `json:"time"`
}

// OnCandle 添加一根K线，时间戳不比最后一根新的K线会被忽略
func (c *Chart) OnCandle(candle model.Candle) {
	c.Lock()
	defer c.Unlock()

	candles := c.candles[candle.Pair]
	if len(candles) > 0 && candle.Timestamp <= candles[len(candles)-1].Time {
		return
	}

	c.candles[candle.Pair] = append(candles, Candle{
		Time:   candle.Timestamp,
		Open:   candle.Open,
		Close:  candle.Close,
		High:   candle.High,
		Low:    candle.Low,
		Volume: candle.Volume,
	})

	if c.dataframe[candle.Pair] == nil {
		c.dataframe[candle.Pair] = model.NewDataframe(candle.Pair, nil)
		c.studies[candle.Pair] = NewBollinger(c.inputs, c.style)
		c.pairs.Add(candle.Pair)
	}
	c.dataframe[candle.Pair].Append(candle)
	c.dirty[candle.Pair] = true
	c.lastUpdate = time.Now()
	c.metrics.Candles.WithLabelValues(candle.Pair).Set(float64(len(c.candles[candle.Pair])))
}

// study 返回交易对的布林带，必要时重新计算，调用方需要持有锁
func (c *Chart) study(pair string) (*Bollinger, bool) {
	study, ok := c.studies[pair]
	if !ok {
		return nil, false
	}
	if c.dirty[pair] {
		c.recompute(pair, func() { study.Load(c.dataframe[pair]) })
		c.dirty[pair] = false
	}
	return study, true
}

func (c *Chart) recompute(pair string, fn func()) {
	start := time.Now()
	fn()
	c.metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	c.metrics.RecomputeTotal.WithLabelValues(pair).Inc()
}

// Pairs 按添加顺序返回交易对
func (c *Chart) Pairs() []string {
	c.Lock()
	defer c.Unlock()
	return c.pairList()
}

func (c *Chart) pairList() []string {
	pairs := make([]string, 0, c.pairs.Length())
	for pair := range c.pairs.Iter() {
		pairs = append(pairs, pair)
	}
	return pairs
}

// Series 返回交易对当前参数下的布林带
func (c *Chart) Series(pair string) []model.BandPoint {
	c.Lock()
	defer c.Unlock()

	study, ok := c.study(pair)
	if !ok {
		return []model.BandPoint{}
	}
	return study.Series()
}

// activeIndicators 返回图表上已经添加的指标，被移除的布林带不参与绘制
func activeIndicators(study *Bollinger) []Indicator {
	if !study.Enabled() {
		return nil
	}
	return []Indicator{study}
}

func plotIndicators(indicators []Indicator) []plotIndicator {
	plots := make([]plotIndicator, 0, len(indicators))
	for _, item := range indicators {
		plots = append(plots, plotIndicator{
			Name:    item.Name(),
			Overlay: item.Overlay(),
			Warmup:  item.Warmup(),
			Metrics: item.Metrics(),
		})
	}
	return plots
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Error(err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (c *Chart) handleHealth(w http.ResponseWriter, _ *http.Request) {
	c.Lock()
	pairs, lastUpdate := c.pairs.Length(), c.lastUpdate
	c.Unlock()

	if pairs == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no candles loaded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(lastUpdate.UTC().Format(time.RFC3339)))
}

func (c *Chart) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	pairs := c.Pairs()
	pair := r.URL.Query().Get("pair")
	if pair == "" && len(pairs) > 0 {
		http.Redirect(w, r, fmt.Sprintf("/?pair=%s", pairs[0]), http.StatusFound)
		return
	}

	w.Header().Add("Content-Type", "text/html")
	err := c.indexHTML.Execute(w, map[string]interface{}{
		"pair":    pair,
		"pairs":   pairs,
		"sources": model.Sources(),
	})
	if err != nil {
		log.Error(err)
	}
}

func (c *Chart) handleData(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")

	c.Lock()
	defer c.Unlock()

	study, ok := c.study(pair)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	asset, quote := exchange.SplitAssetQuote(pair)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candles":    c.candles[pair],
		"indicators": plotIndicators(activeIndicators(study)),
		"bands":      study.Series(),
		"polygon":    study.Polygon(),
		"background": study.Style().BackgroundColor(),
		"settings":   settingsOf(study),
		"asset":      asset,
		"quote":      quote,
	})
}

// settingsPayload 是设置面板读写的内容
type settingsPayload struct {
	Inputs  model.Inputs `json:"inputs"`
	Style   model.Style  `json:"style"`
	Enabled bool         `json:"enabled"`
}

func settingsOf(study *Bollinger) settingsPayload {
	return settingsPayload{
		Inputs:  study.Inputs(),
		Style:   study.Style(),
		Enabled: study.Enabled(),
	}
}

// inputsRequest 里的字段都可以省略，省略的字段保持当前值。长度可以是小数，会向下取整。
type inputsRequest struct {
	Length           *float64 `json:"length"`
	MAType           *string  `json:"maType"`
	Source           *string  `json:"source"`
	StdDevMultiplier *float64 `json:"stdDevMultiplier"`
	Offset           *float64 `json:"offset"`
}

type settingsRequest struct {
	Inputs  *inputsRequest `json:"inputs"`
	Style   *model.Style   `json:"style"`
	Enabled *bool          `json:"enabled"`
}

func (r inputsRequest) apply(current model.Inputs) (model.Inputs, error) {
	if r.Length != nil {
		current.Length = model.NormalizeLength(*r.Length)
	}
	if r.MAType != nil {
		maType, err := model.ParseMAType(*r.MAType)
		if err != nil {
			return current, err
		}
		current.MAType = maType
	}
	if r.Source != nil {
		source, err := model.ParseSource(*r.Source)
		if err != nil {
			return current, err
		}
		current.Source = source
	}
	if r.StdDevMultiplier != nil {
		current.StdDevMultiplier = *r.StdDevMultiplier
	}
	if r.Offset != nil {
		current.Offset = int(math.Trunc(*r.Offset))
	}
	return current, nil
}

func (c *Chart) handleSettings(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")

	c.Lock()
	defer c.Unlock()

	study, ok := c.study(pair)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, settingsOf(study))
		return
	case http.MethodPut, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var request settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		c.metrics.SettingsUpdates.WithLabelValues(pair, "invalid").Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// 先校验参数，失败时什么都不改
	var inputs *model.Inputs
	if request.Inputs != nil {
		updated, err := request.Inputs.apply(study.Inputs())
		if err == nil {
			err = updated.Validate()
		}
		if err != nil {
			c.metrics.SettingsUpdates.WithLabelValues(pair, "invalid").Inc()
			log.WithField("pair", pair).Warnf("invalid settings: %v", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		inputs = &updated
	}

	if inputs != nil {
		var err error
		c.recompute(pair, func() { err = study.SetInputs(*inputs) })
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if request.Style != nil {
		study.SetStyle(*request.Style)
	}
	if request.Enabled != nil {
		study.SetEnabled(*request.Enabled)
	}

	c.metrics.SettingsUpdates.WithLabelValues(pair, "ok").Inc()
	log.WithField("pair", pair).Debugf("settings updated: %s", study.Name())
	writeJSON(w, http.StatusOK, settingsOf(study))
}

func (c *Chart) handleTooltip(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	timestamp, err := strconv.ParseInt(r.URL.Query().Get("t"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid timestamp"))
		return
	}

	c.Lock()
	defer c.Unlock()

	study, ok := c.study(pair)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": study.Tooltip(timestamp)})
}

// Handler 返回图表服务的全部路由
func (c *Chart) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/assets/chart.js", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-type", "application/javascript")
		fmt.Fprint(w, c.scriptContent)
	})
	mux.Handle("/assets/", http.FileServer(http.FS(staticFiles)))
	mux.HandleFunc("/health", c.handleHealth)
	mux.HandleFunc("/data", c.handleData)
	mux.HandleFunc("/settings", c.handleSettings)
	mux.HandleFunc("/tooltip", c.handleTooltip)
	mux.Handle("/metrics", c.metrics.handler())
	mux.HandleFunc("/", c.handleIndex)
	return mux
}

// Start 启动 HTTP 服务，直到 Shutdown 被调用
func (c *Chart) Start() error {
	c.Lock()
	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.port),
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := c.server
	c.Unlock()

	log.Infof("Chart available at http://localhost:%d", c.port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止 HTTP 服务
func (c *Chart) Shutdown(ctx context.Context) error {
	c.Lock()
	server := c.server
	c.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

type Option func(*Chart)

func WithPort(port int) Option {
	return func(chart *Chart) {
		chart.port = port
	}
}

// WithDebug 不压缩前端脚本
func WithDebug() Option {
	return func(chart *Chart) {
		chart.debug = true
	}
}

// WithInputs 设置新交易对的默认参数
func WithInputs(inputs model.Inputs) Option {
	return func(chart *Chart) {
		chart.inputs = inputs.Normalize()
	}
}

// WithStyle 设置新交易对的默认样式
func WithStyle(style model.Style) Option {
	return func(chart *Chart) {
		chart.style = style.Normalize()
	}
}

func NewChart(options ...Option) (*Chart, error) {
	chart := &Chart{
		port:      8080,
		candles:   make(map[string][]Candle),
		dataframe: make(map[string]*model.Dataframe),
		pairs:     set.NewLinkedHashSetString(),
		studies:   make(map[string]*Bollinger),
		dirty:     make(map[string]bool),
		inputs:    model.DefaultInputs(),
		style:     model.DefaultStyle(),
		metrics:   newChartMetrics(),
	}

	for _, option := range options {
		option(chart)
	}

	chartJS, err := staticFiles.ReadFile("assets/chart.js")
	if err != nil {
		return nil, err
	}

	chart.indexHTML, err = template.ParseFS(staticFiles, "assets/chart.html")
	if err != nil {
		return nil, err
	}

	transpileChartJS := api.Transform(string(chartJS), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            api.ES2015,
		MinifySyntax:      !chart.debug,
		MinifyIdentifiers: !chart.debug,
		MinifyWhitespace:  !chart.debug,
	})

	if len(transpileChartJS.Errors) > 0 {
		return nil, fmt.Errorf("chart script failed with: %v", transpileChartJS.Errors)
	}

	chart.scriptContent = string(transpileChartJS.Code)

	return chart, nil
}
