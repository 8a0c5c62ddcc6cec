package models

import "time"

// Membership 房间成员中间表，(room_id, user_id) 唯一
type Membership struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	RoomID uint `gorm:"not null;uniqueIndex:unique_room_user" json:"room_id"`
	UserID uint `gorm:"not null;uniqueIndex:unique_room_user;index" json:"user_id"`

	User *User `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

func (Membership) TableName() string {
	return "room_users"
}
