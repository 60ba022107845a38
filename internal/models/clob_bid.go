package models

import "time"

// ClobBidRecord is one archived CLOB bid. Amounts are stored as decimal
// strings so no precision is lost.
type ClobBidRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	TxHash  string `gorm:"type:varchar(66);not null;uniqueIndex:uk_clob_tx_hash" json:"tx_hash"`
	ClobID  string `gorm:"type:varchar(66);not null;index:idx_clob" json:"clob_id"`
	Bidder  string `gorm:"type:varchar(42);not null;index:idx_clob_bidder" json:"bidder"`
	Side    string `gorm:"type:varchar(4);not null" json:"side"`
	Price   string `gorm:"type:varchar(78);not null" json:"price"`
	Volume  string `gorm:"type:varchar(78);not null" json:"volume"`
	StartTs uint64 `gorm:"not null" json:"start_ts"`
	EndTs   uint64 `gorm:"not null" json:"end_ts"`
	Nonce   uint64 `gorm:"not null" json:"nonce"`

	EventTs   uint64    `gorm:"not null" json:"event_ts"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_clob_created" json:"created_at"`
}

func (ClobBidRecord) TableName() string {
	return "pod_clob_bids"
}
