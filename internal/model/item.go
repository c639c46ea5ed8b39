package model

import (
	"time"
)

// MediaItem 用户收藏的图书/影音条目
type MediaItem struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	OwnerID   int64     `gorm:"not null;index" json:"owner_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Barcode   string    `gorm:"size:64" json:"barcode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (MediaItem) TableName() string {
	return "media_items"
}
