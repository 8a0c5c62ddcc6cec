package models

import "time"

// User 用户模型，首次通过外部渠道 (Telegram) 访问时创建
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ExternalID string `gorm:"column:external_id;uniqueIndex;not null;size:64" json:"external_id"` // 例如 telegram id
	UserName   string `gorm:"column:username;size:64" json:"username"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
