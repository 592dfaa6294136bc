package storage

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/buntdb"

	"github.com/bandchart/bandchart/model"
	"github.com/bandchart/bandchart/tools/log"
)

// Bunt 把K线以 JSON 形式存进 buntdb，键是 "candle:交易对:补零的时间戳"，
// 键的字典序就是时间顺序，按键遍历即可得到升序结果。
type Bunt struct {
	db *buntdb.DB
}

// FromMemory 创建内存里的 buntdb，进程退出后数据就没了，测试时使用
func FromMemory() (*Bunt, error) {
	return newBunt(":memory:")
}

// FromFile 函数允许通过指定文件路径来创建一个持久化的buntdb数据库实例。
func FromFile(file string) (*Bunt, error) {
	return newBunt(file)
}

func newBunt(sourceFile string) (*Bunt, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, err
	}

	// 按 pair 字段建索引，用来列出缓存里的交易对
	err = db.CreateIndex("pair_index", "candle:*", buntdb.IndexJSON("pair"))
	if err != nil {
		return nil, err
	}

	return &Bunt{db: db}, nil
}

func candleKey(pair string, timestamp int64) string {
	return fmt.Sprintf("candle:%s:%020d", pair, timestamp)
}

func (b *Bunt) SaveCandles(pair string, candles []model.Candle) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		for _, candle := range candles {
			candle.Pair = pair
			content, err := json.Marshal(candle)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set(candleKey(pair, candle.Timestamp), string(content), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bunt) Candles(pair string, filters ...CandleFilter) ([]model.Candle, error) {
	query := buildQuery(filters)
	candles := make([]model.Candle, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(fmt.Sprintf("candle:%s:*", pair), func(key, value string) bool {
			var candle model.Candle
			if err := json.Unmarshal([]byte(value), &candle); err != nil {
				log.WithField("key", key).Warn(err)
				return true
			}
			if query.match(candle.Timestamp) {
				candles = append(candles, candle)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}

	return query.tail(candles), nil
}

// Pairs 返回缓存里出现过的交易对，按名称排序
func (b *Bunt) Pairs() ([]string, error) {
	pairs := make([]string, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		var last string
		return tx.Ascend("pair_index", func(_, value string) bool {
			var candle model.Candle
			if err := json.Unmarshal([]byte(value), &candle); err != nil {
				return true
			}
			if candle.Pair != last {
				pairs = append(pairs, candle.Pair)
				last = candle.Pair
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

func (b *Bunt) Close() error {
	return b.db.Close()
}
