package dao

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/utrading/utrading-pod-stream/internal/models"
)

// BidDAO archives CLOB and auction bids. Inserts skip rows whose tx hash is
// already stored.
type BidDAO struct {
	db *gorm.DB
}

func NewBidDAO(db *gorm.DB) *BidDAO {
	return &BidDAO{db: db}
}

func (d *BidDAO) BatchInsertClobBids(rows []*models.ClobBidRecord) error {
	if len(rows) == 0 {
		return nil
	}
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error
}

func (d *BidDAO) BatchInsertAuctionBids(rows []*models.AuctionBidRecord) error {
	if len(rows) == 0 {
		return nil
	}
	return d.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 100).Error
}

// DeleteOlderThan removes rows archived before cutoff from both tables.
func (d *BidDAO) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := d.db.Where("created_at < ?", cutoff).Delete(&models.ClobBidRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	deleted := res.RowsAffected

	res = d.db.Where("created_at < ?", cutoff).Delete(&models.AuctionBidRecord{})
	if res.Error != nil {
		return deleted, res.Error
	}
	return deleted + res.RowsAffected, nil
}

// TxHashesSince lists tx hashes archived after since, for warming the
// dedup cache on startup.
func (d *BidDAO) TxHashesSince(since time.Time) ([]string, error) {
	var clob, auction []string
	if err := d.db.Model(&models.ClobBidRecord{}).Where("created_at >= ?", since).Pluck("tx_hash", &clob).Error; err != nil {
		return nil, err
	}
	if err := d.db.Model(&models.AuctionBidRecord{}).Where("created_at >= ?", since).Pluck("tx_hash", &auction).Error; err != nil {
		return nil, err
	}
	return append(clob, auction...), nil
}

func (d *BidDAO) CountClobBids() (int64, error) {
	var n int64
	err := d.db.Model(&models.ClobBidRecord{}).Count(&n).Error
	return n, err
}

func (d *BidDAO) CountAuctionBids() (int64, error) {
	var n int64
	err := d.db.Model(&models.AuctionBidRecord{}).Count(&n).Error
	return n, err
}
