package models

import "time"

// AuctionBidRecord is one archived auction bid.
type AuctionBidRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	TxHash    string `gorm:"type:varchar(66);not null;uniqueIndex:uk_auction_tx_hash" json:"tx_hash"`
	AuctionID string `gorm:"type:varchar(78);not null;index:idx_auction" json:"auction_id"`
	Bidder    string `gorm:"type:varchar(42);not null;index:idx_auction_bidder" json:"bidder"`
	Value     string `gorm:"type:varchar(78);not null" json:"value"`
	Data      string `gorm:"type:text" json:"data"`
	Deadline  uint64 `gorm:"not null" json:"deadline"`

	EventTs   uint64    `gorm:"not null" json:"event_ts"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_auction_created" json:"created_at"`
}

func (AuctionBidRecord) TableName() string {
	return "pod_auction_bids"
}
