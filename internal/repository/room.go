package repository

import (
	"context"
	"time"

	"github.com/wi1ex/mafia-sub000/internal/domain"
)

// FinalizeOutcome 描述一次 GC 终结事务对 rooms 行的处置结果。
type FinalizeOutcome struct {
	// Found 为 false 表示行已不存在（此前的 GC 周期已处理），终结为空操作。
	Found bool
	// Deleted 为 true 表示唯一访客数 <= 1，行被直接删除；
	// 否则行被软删除（deleted_at 置位，计数列按 key 合并）。
	Deleted        bool
	CreatorID      uint
	Title          string
	UserLimit      int
	UniqueVisitors int
}

// RoomRepository 定义房间行的持久化操作。
// 终结只允许经由 GC 路径调用（见 service 层的垃圾回收器）。
type RoomRepository interface {
	// Create 插入新的房间行并回填 ID/CreatedAt。
	Create(ctx context.Context, room *domain.Room) error

	// FindByID 按 ID 查找房间行，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindAllActive 返回所有 deleted_at IS NULL 的行，用于启动时回灌热存储。
	FindAllActive(ctx context.Context) ([]domain.Room, error)

	// Finalize 在单个事务内终结房间行：唯一访客数 <= 1 时删除行，
	// 否则合并 visitors/screen_time JSON 列并置 deleted_at，
	// 并在同一事务内追加 action=room_deleted 的审计记录。幂等。
	Finalize(ctx context.Context, roomID uint, visitors, screenTime domain.SecondsByUser, now time.Time) (*FinalizeOutcome, error)
}

// AppLogRepository 定义审计日志的追加写入。
type AppLogRepository interface {
	Append(ctx context.Context, entry *domain.AppLog) error
}
