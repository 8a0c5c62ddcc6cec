package models

import "time"

const (
	ItemNameMaxLen     = 100
	ItemCategoryMaxLen = 50
)

// Item 购物清单条目
type Item struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"size:100;not null;index" json:"name"`
	Category *string `gorm:"size:50;index" json:"category"`
	RoomID   uint    `gorm:"not null;index" json:"room_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (Item) TableName() string {
	return "shopping_items"
}

// CategoryOr 返回分类，未设置时返回 fallback
func (i *Item) CategoryOr(fallback string) string {
	if i.Category == nil || *i.Category == "" {
		return fallback
	}
	return *i.Category
}
