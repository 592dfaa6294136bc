package storage

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bandchart/bandchart/model"
)

// candleRecord 是K线在数据库里的表结构，(pair, timestamp) 唯一
type candleRecord struct {
	Pair      string `gorm:"primaryKey;size:32"`
	Timestamp int64  `gorm:"primaryKey;autoIncrement:false"`
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

func (candleRecord) TableName() string {
	return "candles"
}

// SQL 用 gorm 缓存K线，任何 gorm 支持的数据库都可以
type SQL struct {
	db *gorm.DB
}

// FromSQL 打开数据库并建表，测试里用 sqlite 的 :memory:
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (*SQL, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&candleRecord{}); err != nil {
		return nil, err
	}

	return &SQL{db: db}, nil
}

// SaveCandles 批量写入，已经存在的时间戳直接覆盖
func (s *SQL) SaveCandles(pair string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	records := lo.Map(candles, func(c model.Candle, _ int) candleRecord {
		return candleRecord{
			Pair:      pair,
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	})

	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "pair"},
			{Name: "timestamp"},
		},
		UpdateAll: true,
	}).CreateInBatches(records, 500).Error
}

func (s *SQL) Candles(pair string, filters ...CandleFilter) ([]model.Candle, error) {
	query := buildQuery(filters)

	tx := s.db.Where("pair = ?", pair)
	if query.Start != 0 {
		tx = tx.Where("timestamp >= ?", query.Start)
	}
	if query.End != 0 {
		tx = tx.Where("timestamp <= ?", query.End)
	}

	records := make([]candleRecord, 0)
	if query.Limit > 0 {
		// 先倒序取最后 Limit 条，再翻转回升序
		if err := tx.Order("timestamp desc").Limit(query.Limit).Find(&records).Error; err != nil {
			return nil, err
		}
		records = lo.Reverse(records)
	} else if err := tx.Order("timestamp asc").Find(&records).Error; err != nil {
		return nil, err
	}

	return lo.Map(records, func(r candleRecord, _ int) model.Candle {
		return model.Candle{
			Pair:      r.Pair,
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}), nil
}
