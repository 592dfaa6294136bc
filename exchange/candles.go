package exchange

import (
	"errors"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/bandchart/bandchart/model"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrUnknownPair      = errors.New("unknown pair")
)

// CSV 里小于这个值的时间戳按秒处理，JSON 不做这个换算
const secondsThreshold = 1_000_000_000_000

func normalizeTimestamp(ts int64) int64 {
	if ts > -secondsThreshold && ts < secondsThreshold {
		return ts * 1000
	}
	return ts
}

// sortCandles 按时间戳排序并去掉重复时间戳（保留先出现的），保证序列严格递增
func sortCandles(candles []model.Candle) []model.Candle {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
	return lo.UniqBy(candles, func(c model.Candle) int64 {
		return c.Timestamp
	})
}

// SplitAssetQuote 把 BTCUSDT 这样的交易对拆成基础资产和报价资产，识别不了时报价资产为空
func SplitAssetQuote(pair string) (asset string, quote string) {
	pair = strings.ToUpper(pair)
	if parts := strings.FieldsFunc(pair, func(r rune) bool { return r == '/' || r == '-' }); len(parts) == 2 {
		return parts[0], parts[1]
	}
	for _, q := range []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB", "USD", "EUR"} {
		if strings.HasSuffix(pair, q) && len(pair) > len(q) {
			return strings.TrimSuffix(pair, q), q
		}
	}
	return pair, ""
}

func assetsInfo(pair string) model.AssetInfo {
	asset, quote := SplitAssetQuote(pair)
	return model.AssetInfo{
		BaseAsset:          asset,
		QuoteAsset:         quote,
		QuotePrecision:     8,
		BaseAssetPrecision: 8,
	}
}
