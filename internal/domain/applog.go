package domain

import "time"

// 审计动作常量
const (
	ActionRoomCreated = "room_created"
	ActionRoomDeleted = "room_deleted"
)

// AppLog 是追加写的审计记录。details 为自由格式字符串（通常是 JSON）。
type AppLog struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index"`
	Username  string    `gorm:"type:varchar(64)"`
	Action    string    `gorm:"type:varchar(32);index;not null"`
	Details   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AppLog) TableName() string {
	return "app_logs"
}
