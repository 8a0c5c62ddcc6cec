package models

import "time"

const (
	RoomNameMinLen = 3
	RoomNameMaxLen = 30
)

// Room 房间模型。OwnerID 创建后不可转移，InviteCode 全局唯一且不可变
type Room struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Name       string `gorm:"size:30;not null;index" json:"name"`
	OwnerID    uint   `gorm:"not null;index" json:"owner_id"`
	InviteCode string `gorm:"size:32;uniqueIndex;not null" json:"invite_code"`

	Owner   *User        `gorm:"foreignKey:OwnerID" json:"-"`
	Members []Membership `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
	Items   []Item       `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

func (Room) TableName() string {
	return "rooms"
}
