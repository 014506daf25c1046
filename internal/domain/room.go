package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 房间隐私模式常量
const (
	PrivacyOpen    = "open"
	PrivacyPrivate = "private"
)

// 房间容量与标题的硬性边界
const (
	MinUserLimit = 2
	MaxUserLimit = 12
	MaxTitleLen  = 32
)

// SecondsByUser 是 用户ID -> 累计秒数 的映射，持久化为 JSON 列。
// rooms.visitors 和 rooms.screen_time 两个统计字段共用此类型。
type SecondsByUser map[uint]int64

// Value 实现 driver.Valuer，序列化为 JSON 存入数据库。
func (s SecondsByUser) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal seconds map: %w", err)
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner，从 JSON 列反序列化。
func (s *SecondsByUser) Scan(src interface{}) error {
	if src == nil {
		*s = SecondsByUser{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("domain: cannot scan %T into SecondsByUser", src)
	}
	if len(data) == 0 {
		*s = SecondsByUser{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Merge 按 key 合并 other，other 的值覆盖已有值（热存储是权威来源）。
func (s SecondsByUser) Merge(other SecondsByUser) {
	for uid, sec := range other {
		s[uid] = sec
	}
}

// GameParams 描述一局对局的配置，对引擎而言是不透明的值对象。
type GameParams struct {
	RolePickSeconds int `json:"role_pick_seconds"`
	MinReadyPlayers int `json:"min_ready_players"`
}

// Room 是关系库中的房间行。房间存活期间热存储是成员关系的权威，
// 该行仅在 GC 提交时回写访问/屏幕共享时长并标记 deleted_at。
type Room struct {
	ID          uint          `gorm:"primaryKey"`
	Title       string        `gorm:"type:varchar(32);not null"`
	UserLimit   int           `gorm:"not null"`
	Privacy     string        `gorm:"type:varchar(10);not null;default:'open'"`
	CreatorID   uint          `gorm:"index;not null"`
	CreatorName string        `gorm:"type:varchar(64)"`
	GameParams  string        `gorm:"type:json"`
	Visitors    SecondsByUser `gorm:"type:json"`
	ScreenTime  SecondsByUser `gorm:"type:json"`
	CreatedAt   time.Time     `gorm:"autoCreateTime"`
	DeletedAt   *time.Time    `gorm:"index"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomBrief 是房间的对外简要视图，rooms_upsert 事件与 GET /rooms 共用。
type RoomBrief struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	UserLimit   int    `json:"user_limit"`
	Privacy     string `json:"privacy"`
	Creator     uint   `json:"creator"`
	CreatorName string `json:"creator_name"`
	CreatedAt   int64  `json:"created_at"`
	Occupancy   int    `json:"occupancy"`
}

// Brief 由关系行构造简要视图（occupancy 由调用方补充）。
func (r *Room) Brief(occupancy int) RoomBrief {
	return RoomBrief{
		ID:          r.ID,
		Title:       r.Title,
		UserLimit:   r.UserLimit,
		Privacy:     r.Privacy,
		Creator:     r.CreatorID,
		CreatorName: r.CreatorName,
		CreatedAt:   r.CreatedAt.UTC().Unix(),
		Occupancy:   occupancy,
	}
}
