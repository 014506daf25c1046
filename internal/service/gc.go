package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
)

// gc_lock 的 TTL。锁的释放在提交或任意中止路径上都必须发生。
const gcLockTTL = 20 * time.Second

// GCService 执行空房的延迟终结：序列校验、计数器回写、热键清扫。
// 这是热存储到关系存储的唯一转移路径。
type GCService struct {
	presence repository.PresenceRepository
	rooms    repository.RoomRepository
	fanout   Fanout

	now func() int64
}

// NewGCService 创建 GCService 实例。
func NewGCService(presence repository.PresenceRepository, rooms repository.RoomRepository, fanout Fanout) *GCService {
	if presence == nil {
		panic("PresenceRepository cannot be nil for GCService")
	}
	if rooms == nil {
		panic("RoomRepository cannot be nil for GCService")
	}
	if fanout == nil {
		panic("Fanout cannot be nil for GCService")
	}
	return &GCService{
		presence: presence,
		rooms:    rooms,
		fanout:   fanout,
		now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

// Collect 执行一次 GC 检查。排期时捕获的 (empty_since, gc_seq) 与当前值
// 任一不符即中止——说明房间在延迟窗口内复活过。中止不是错误。
// 返回 error 仅当本轮应当由任务队列重试。
func (s *GCService) Collect(ctx context.Context, roomID uint, emptySinceCap, gcSeqCap int64) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":    roomID,
		"gc_seq_cap": gcSeqCap,
		"component":  "room_gc",
	})

	// 1-2. empty_since 必须仍然存在且与捕获值一致
	since, ok, err := s.presence.EmptySince(ctx, roomID)
	if err != nil {
		return err
	}
	if !ok {
		logCtx.Debug("GC aborted: empty_since cleared, room is live again")
		return nil
	}
	if since != emptySinceCap {
		logCtx.Debug("GC aborted: empty_since changed, a newer cycle owns this room")
		return nil
	}

	// 3. gc_seq 必须与捕获值一致
	seq, err := s.presence.GCSeq(ctx, roomID)
	if err != nil {
		return err
	}
	if seq != gcSeqCap {
		logCtx.WithField("gc_seq", seq).Debug("GC aborted: gc_seq mismatch")
		return nil
	}

	// 4. 房间必须仍然为空
	occupancy, err := s.presence.Occupancy(ctx, roomID)
	if err != nil {
		return err
	}
	if occupancy != 0 {
		logCtx.WithField("occupancy", occupancy).Debug("GC aborted: room is occupied")
		return nil
	}

	// 5. 抢占跨副本互斥锁；抢不到说明别的副本在干同一件事
	lockOwner := uuid.NewString()
	acquired, err := s.presence.AcquireGCLock(ctx, roomID, lockOwner, gcLockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		logCtx.Debug("GC aborted: lock held by another replica")
		return nil
	}
	// 此后任何路径都必须释放锁
	defer func() {
		if err := s.presence.ReleaseGCLock(ctx, roomID, lockOwner); err != nil {
			logCtx.WithError(err).Error("Failed to release gc lock")
		}
	}()

	// 6. 兜底结算仍挂着的屏幕共享（尽力而为）
	now := s.now()
	if err := s.presence.FlushScreenAccounting(ctx, roomID, now); err != nil {
		logCtx.WithError(err).Warn("Screen accounting flush failed")
	}

	// 7. 读出累计计数
	visitors, err := s.presence.Visitors(ctx, roomID)
	if err != nil {
		return err
	}
	screenTime, err := s.presence.ScreenTime(ctx, roomID)
	if err != nil {
		return err
	}

	// 8. 单个关系事务内终结房间行并写审计
	outcome, err := s.rooms.Finalize(ctx, roomID, visitors, screenTime, time.Unix(now, 0).UTC())
	if err != nil {
		return err
	}
	if outcome.Found {
		if err := s.presence.RemoveCreatorRoom(ctx, outcome.CreatorID, roomID); err != nil {
			logCtx.WithError(err).Warn("Failed to remove room from creator set")
		}
	}

	// 9. 事务提交后清扫热命名空间并摘索引。此处失败可重试：
	// 关系侧删除幂等，下一轮空房周期会重新走到这里。
	if err := s.presence.PurgeRoom(ctx, roomID); err != nil {
		return err
	}
	s.fanout.ToLobby(domain.EventRoomsRemove, domain.RoomsRemovePayload{ID: roomID})

	logCtx.WithFields(logrus.Fields{
		"row_found":       outcome.Found,
		"row_deleted":     outcome.Deleted,
		"unique_visitors": outcome.UniqueVisitors,
	}).Info("Room GC committed")
	return nil
}
