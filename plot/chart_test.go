package plot

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandchart/bandchart/model"
)

type dataResponse struct {
	Candles    []Candle          `json:"candles"`
	Indicators []plotIndicator   `json:"indicators"`
	Bands      []model.BandPoint `json:"bands"`
	Polygon    []PolygonPoint    `json:"polygon"`
	Background string            `json:"background"`
	Settings   settingsPayload   `json:"settings"`
	Asset      string            `json:"asset"`
	Quote      string            `json:"quote"`
}

func newTestChart(t *testing.T, length int, closes ...float64) *Chart {
	t.Helper()
	inputs := model.DefaultInputs()
	inputs.Length = length

	chart, err := NewChart(WithInputs(inputs), WithDebug())
	require.NoError(t, err)
	for _, candle := range candlesFromCloses(closes...) {
		chart.OnCandle(candle)
	}
	return chart
}

func do(t *testing.T, handler http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func fetchData(t *testing.T, handler http.Handler, pair string) dataResponse {
	t.Helper()
	rec := do(t, handler, http.MethodGet, "/data?pair="+pair, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data dataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	return data
}

func TestChart_OnCandle(t *testing.T) {
	chart := newTestChart(t, 3, 1, 2, 3)

	// 更旧或者重复的K线被忽略
	chart.OnCandle(model.Candle{Pair: "BTCUSDT", Timestamp: 120000, Close: 100})
	chart.OnCandle(model.Candle{Pair: "BTCUSDT", Timestamp: 180000, Close: 100})
	chart.OnCandle(model.Candle{Pair: "ETHUSDT", Timestamp: 60000, Close: 10})

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, chart.Pairs())
	series := chart.Series("BTCUSDT")
	require.Len(t, series, 3)
	assert.Equal(t, model.Some(2), series[2].Basis)

	chart.OnCandle(model.Candle{Pair: "BTCUSDT", Timestamp: 240000, Close: 4})
	series = chart.Series("BTCUSDT")
	require.Len(t, series, 4)
	assert.Equal(t, model.Some(3), series[3].Basis)

	assert.Empty(t, chart.Series("XRPUSDT"))
}

func TestChart_Data(t *testing.T) {
	chart := newTestChart(t, 3, 1, 2, 3, 4, 5)
	handler := chart.Handler()

	data := fetchData(t, handler, "BTCUSDT")
	assert.Len(t, data.Candles, 5)
	assert.Equal(t, int64(60000), data.Candles[0].Time)
	require.Len(t, data.Bands, 5)
	assert.False(t, data.Bands[1].Basis.Valid)
	assert.Equal(t, model.Some(3), data.Bands[3].Basis)
	assert.Len(t, data.Polygon, 10)
	assert.Equal(t, "rgba(153,153,153,0.12)", data.Background)
	assert.Equal(t, "BTC", data.Asset)
	assert.Equal(t, "USDT", data.Quote)

	require.Len(t, data.Indicators, 1)
	assert.Equal(t, "BB(3, 2)", data.Indicators[0].Name)
	assert.True(t, data.Indicators[0].Overlay)
	assert.Equal(t, 3, data.Indicators[0].Warmup)
	assert.Len(t, data.Indicators[0].Metrics, 3)

	assert.Equal(t, 3, data.Settings.Inputs.Length)
	assert.True(t, data.Settings.Enabled)

	rec := do(t, handler, http.MethodGet, "/data?pair=XRPUSDT", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChart_Settings(t *testing.T) {
	chart := newTestChart(t, 3, 1, 2, 3, 4, 5)
	handler := chart.Handler()

	t.Run("get", func(t *testing.T) {
		rec := do(t, handler, http.MethodGet, "/settings?pair=BTCUSDT", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var settings settingsPayload
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
		assert.Equal(t, 3, settings.Inputs.Length)
		assert.Equal(t, model.SourceClose, settings.Inputs.Source)
		assert.Equal(t, model.DefaultStyle(), settings.Style)
	})

	t.Run("unknown source", func(t *testing.T) {
		body := bytes.NewBufferString(`{"inputs": {"length": 2, "source": "volume"}}`)
		rec := do(t, handler, http.MethodPut, "/settings?pair=BTCUSDT", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown source")

		data := fetchData(t, handler, "BTCUSDT")
		assert.Equal(t, 3, data.Settings.Inputs.Length)
		assert.False(t, data.Bands[1].Basis.Valid)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, handler, http.MethodPut, "/settings?pair=BTCUSDT", bytes.NewBufferString(`{`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update inputs", func(t *testing.T) {
		body := bytes.NewBufferString(`{"inputs": {"length": 2.7, "source": "Open", "offset": 1.9}}`)
		rec := do(t, handler, http.MethodPut, "/settings?pair=BTCUSDT", body)
		require.Equal(t, http.StatusOK, rec.Code)

		data := fetchData(t, handler, "BTCUSDT")
		assert.Equal(t, 2, data.Settings.Inputs.Length)
		assert.Equal(t, model.SourceOpen, data.Settings.Inputs.Source)
		assert.Equal(t, 1, data.Settings.Inputs.Offset)
		assert.Equal(t, 2.0, data.Settings.Inputs.StdDevMultiplier)

		// 长度 2 时第二根K线有值，再向右平移一位
		assert.False(t, data.Bands[1].Basis.Valid)
		assert.Equal(t, model.Some(1.5), data.Bands[2].Basis)
		assert.Equal(t, int64(180000), data.Bands[2].Timestamp)
	})

	t.Run("update style", func(t *testing.T) {
		style := model.DefaultStyle()
		style.Basis.Visible = false
		style.Background = false
		content, err := json.Marshal(map[string]interface{}{"style": style})
		require.NoError(t, err)

		rec := do(t, handler, http.MethodPost, "/settings?pair=BTCUSDT", bytes.NewReader(content))
		require.Equal(t, http.StatusOK, rec.Code)

		data := fetchData(t, handler, "BTCUSDT")
		assert.Len(t, data.Indicators[0].Metrics, 2)
		assert.Empty(t, data.Polygon)
	})

	t.Run("remove indicator", func(t *testing.T) {
		rec := do(t, handler, http.MethodPut, "/settings?pair=BTCUSDT", bytes.NewBufferString(`{"enabled": false}`))
		require.Equal(t, http.StatusOK, rec.Code)

		data := fetchData(t, handler, "BTCUSDT")
		assert.False(t, data.Settings.Enabled)
		assert.Empty(t, data.Indicators)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := do(t, handler, http.MethodDelete, "/settings?pair=BTCUSDT", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("unknown pair", func(t *testing.T) {
		rec := do(t, handler, http.MethodGet, "/settings?pair=XRPUSDT", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChart_Tooltip(t *testing.T) {
	chart := newTestChart(t, 3, 1, 2, 3)
	handler := chart.Handler()

	rec := do(t, handler, http.MethodGet, "/tooltip?pair=BTCUSDT&t=180000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text": "BOLL(3, 2)  Basis: 2.00  Upper: 4.00  Lower: 0.00"}`, rec.Body.String())

	rec = do(t, handler, http.MethodGet, "/tooltip?pair=BTCUSDT&t=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/tooltip?pair=XRPUSDT&t=180000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChart_Health(t *testing.T) {
	chart, err := NewChart()
	require.NoError(t, err)
	handler := chart.Handler()

	rec := do(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	chart.OnCandle(model.Candle{Pair: "BTCUSDT", Timestamp: 60000, Close: 1})
	rec = do(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChart_Index(t *testing.T) {
	chart := newTestChart(t, 3, 1, 2, 3)
	handler := chart.Handler()

	rec := do(t, handler, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?pair=BTCUSDT", rec.Header().Get("Location"))

	rec = do(t, handler, http.MethodGet, "/?pair=BTCUSDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-pair="BTCUSDT"`)
	assert.Contains(t, rec.Body.String(), `<option value="high">high</option>`)

	rec = do(t, handler, http.MethodGet, "/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodGet, "/assets/chart.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/data?pair=")
}

func TestChart_Metrics(t *testing.T) {
	chart := newTestChart(t, 3, 1, 2, 3)
	handler := chart.Handler()

	_ = fetchData(t, handler, "BTCUSDT")
	do(t, handler, http.MethodPut, "/settings?pair=BTCUSDT", bytes.NewBufferString(`{"inputs": {"source": "hl2"}}`))

	rec := do(t, handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `bandchart_recompute_total{pair="BTCUSDT"} 1`)
	assert.Contains(t, body, `bandchart_candles{pair="BTCUSDT"} 3`)
	assert.Contains(t, body, `bandchart_settings_updates_total{pair="BTCUSDT",result="invalid"} 1`)
}
