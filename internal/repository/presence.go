package repository

import (
	"context"
	"time"

	"github.com/wi1ex/mafia-sub000/internal/domain"
)

// PresenceRepository 定义房间在线真相的全部热存储操作，由 Redis 实现。
// Join/Leave/ClaimScreen/ReleaseScreen 必须是单次原子脚本执行；
// 其余读路径允许 pipeline 聚合。
type PresenceRepository interface {
	// === 房间登记与索引 ===

	// RegisterRoom 写入 room:R:params 并将 R 加入 rooms:index（幂等）。
	RegisterRoom(ctx context.Context, room *domain.Room) error

	// InIndex 报告 R 是否在 rooms:index 中。
	InIndex(ctx context.Context, roomID uint) (bool, error)

	// RoomIDs 按创建时间倒序返回至多 limit 个活跃房间 ID。
	RoomIDs(ctx context.Context, limit int64) ([]uint, error)

	// RoomBrief 由 params hash 与成员基数组装简要视图。
	// params 缺失时返回 ErrRoomNotFound。
	RoomBrief(ctx context.Context, roomID uint) (*domain.RoomBrief, error)

	// AddCreatorRoom / RemoveCreatorRoom 维护 user:U:rooms 集合。
	AddCreatorRoom(ctx context.Context, creatorID, roomID uint) error
	RemoveCreatorRoom(ctx context.Context, creatorID, roomID uint) error

	// === 加入/离开（原子脚本） ===

	// Join 执行 JOIN 脚本。now 为 UTC 秒。
	Join(ctx context.Context, roomID, userID uint, baseRole string, now int64) (*domain.JoinResult, error)

	// Leave 执行 LEAVE 脚本。now 为 UTC 秒。
	Leave(ctx context.Context, roomID, userID uint, now int64) (*domain.LeaveResult, error)

	// === 成员读路径 ===

	Occupancy(ctx context.Context, roomID uint) (int, error)
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
	MemberRole(ctx context.Context, roomID, userID uint) (string, error)

	// Snapshot 以 pipeline 聚合读出房间的完整观测真相。
	// forUserID 的 block/state 被填入 SelfBlocked/SelfState。
	Snapshot(ctx context.Context, roomID, forUserID uint) (*domain.RoomSnapshot, error)

	// === 软状态 ===

	// SeedState 仅为尚未存储的键写入初始值（HSETNX 语义）。
	SeedState(ctx context.Context, roomID, userID uint, state map[string]string) error
	GetState(ctx context.Context, roomID, userID uint) (map[string]string, error)
	SetState(ctx context.Context, roomID, userID uint, fields map[string]string) error
	GetReady(ctx context.Context, roomID, userID uint) (string, error)
	SetReady(ctx context.Context, roomID, userID uint, ready string) error

	// === 封禁 ===

	GetBlocks(ctx context.Context, roomID, userID uint) (map[string]string, error)
	SetBlocks(ctx context.Context, roomID, userID uint, fields map[string]string) error

	// === 屏幕共享 ===

	// ClaimScreen 原子抢占屏幕所有权。失败时返回当前持有者。
	ClaimScreen(ctx context.Context, roomID, userID uint, now int64) (ok bool, owner uint, err error)

	// ReleaseScreen 在 userID 为持有者时累加 screen_time 并清除所有权。
	ReleaseScreen(ctx context.Context, roomID, userID uint, now int64) (bool, error)

	// ScreenOwner 返回当前持有者；无人持有时 ok 为 false。
	ScreenOwner(ctx context.Context, roomID uint) (owner uint, ok bool, err error)

	// FlushScreenAccounting 在 GC 提交前兜底结算仍在进行的共享时长。
	FlushScreenAccounting(ctx context.Context, roomID uint, now int64) error

	// === GC 控制面 ===

	// EmptySince 返回 room:R:empty_since；未置位时 ok 为 false。
	EmptySince(ctx context.Context, roomID uint) (since int64, ok bool, err error)

	// GCSeq 返回 room:R:gc_seq（缺失视为 0）。
	GCSeq(ctx context.Context, roomID uint) (int64, error)

	// AcquireGCLock 以 owner 标识尝试获取 room:R:gc_lock（SET NX + TTL）。
	AcquireGCLock(ctx context.Context, roomID uint, owner string, ttl time.Duration) (bool, error)

	// ReleaseGCLock 仅在当前持有者为 owner 时释放锁。
	ReleaseGCLock(ctx context.Context, roomID uint, owner string) error

	// Visitors / ScreenTime 解析计数 hash 为整型映射。
	Visitors(ctx context.Context, roomID uint) (domain.SecondsByUser, error)
	ScreenTime(ctx context.Context, roomID uint) (domain.SecondsByUser, error)

	// PurgeRoom 扫描删除 room:R:* 全部键并将 R 移出 rooms:index。
	PurgeRoom(ctx context.Context, roomID uint) error
}
