package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
)

// PresenceService 是房间在线与生命周期引擎的入口：
// 成员加入/离开、座位压缩的广播驱动、软状态合并与空房 GC 排期。
// 所有多键变更都经由热存储的原子脚本，本层只做编排与扇出。
type PresenceService struct {
	presence  repository.PresenceRepository
	fanout    Fanout
	scheduler GCScheduler

	// 便于测试注入确定性时钟
	now func() int64
}

// NewPresenceService 创建 PresenceService 实例。
func NewPresenceService(presence repository.PresenceRepository, fanout Fanout, scheduler GCScheduler) *PresenceService {
	if presence == nil {
		panic("PresenceRepository cannot be nil for PresenceService")
	}
	if fanout == nil {
		panic("Fanout cannot be nil for PresenceService")
	}
	if scheduler == nil {
		panic("GCScheduler cannot be nil for PresenceService")
	}
	return &PresenceService{
		presence:  presence,
		fanout:    fanout,
		scheduler: scheduler,
		now:       func() int64 { return time.Now().UTC().Unix() },
	}
}

// Join 让用户加入房间并返回完整快照。
// initState 是客户端携带的初始偏好，只为尚未存储的键播种。
// 广播顺序固定：occupancy -> member_joined -> positions；加入者本人只拿快照。
func (s *PresenceService) Join(ctx context.Context, roomID, userID uint, baseRole string, initState map[string]interface{}) (*domain.RoomSnapshot, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "operation": "join"})

	seed := domain.DefaultState()
	if len(initState) > 0 {
		state, _, err := domain.NormalizeStateInput(initState)
		if err != nil {
			logCtx.WithError(err).Warn("Join rejected: bad initial state")
			return nil, ErrValidation
		}
		for k, v := range state {
			seed[k] = v
		}
	}

	res, err := s.presence.Join(ctx, roomID, userID, baseRole, s.now())
	if err != nil {
		logCtx.WithError(err).Error("Join script failed")
		return nil, ErrInternal
	}
	switch res.Status {
	case domain.JoinNotFound:
		return nil, ErrRoomNotFound
	case domain.JoinFull:
		logCtx.WithField("occupancy", res.Occupancy).Info("Join rejected: room is full")
		return nil, ErrRoomFull
	}

	// 初始状态播种在脚本提交之后：HSETNX 保证重入不覆盖既有值。
	// 被封禁位不允许经播种变成 "1"。
	blocks, err := s.presence.GetBlocks(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to read blocks while seeding state")
		return nil, ErrInternal
	}
	for k, v := range blocks {
		if v == "1" {
			seed[k] = "0"
		}
	}
	if err := s.presence.SeedState(ctx, roomID, userID, seed); err != nil {
		logCtx.WithError(err).Error("Failed to seed initial state")
		return nil, ErrInternal
	}

	if !res.AlreadyMember {
		state, stateErr := s.presence.GetState(ctx, roomID, userID)
		if stateErr != nil || len(state) == 0 {
			state = domain.DefaultState()
		}
		role, roleErr := s.presence.MemberRole(ctx, roomID, userID)
		if roleErr != nil {
			role = baseRole
		}
		s.fanout.ToLobby(domain.EventRoomsOccupancy, domain.RoomsOccupancyPayload{ID: roomID, Occupancy: res.Occupancy})
		s.fanout.ToRoom(roomID, domain.EventMemberJoined, domain.MemberJoinedPayload{
			UserID:   userID,
			State:    state,
			Position: res.Position,
			Role:     role,
		}, userID)
		if len(res.Shifts) > 0 {
			s.fanout.ToRoom(roomID, domain.EventPositions, domain.PositionsPayload{Updates: res.Shifts}, 0)
		}
		logCtx.WithFields(logrus.Fields{"position": res.Position, "occupancy": res.Occupancy}).Info("User joined room")
	} else {
		// 重复投递的 join：不广播，只返回对账快照
		if len(res.Shifts) > 0 {
			// 座位修复属于异常恢复，仍需通知其余成员
			s.fanout.ToRoom(roomID, domain.EventPositions, domain.PositionsPayload{Updates: res.Shifts}, 0)
			logCtx.WithField("shifts", len(res.Shifts)).Warn("Rejoin repaired an inconsistent seat layout")
		}
		logCtx.Debug("Duplicate join, returning snapshot only")
	}

	snap, err := s.presence.Snapshot(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to assemble snapshot after join")
		return nil, ErrInternal
	}
	return snap, nil
}

// Leave 让用户离开房间。持有屏幕共享时先结算并释放；
// 房间变空时带捕获的 gc_seq 排期延迟清扫。
// 广播顺序固定：occupancy -> member_left -> positions -> screen_changed。
func (s *PresenceService) Leave(ctx context.Context, roomID, userID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "operation": "leave"})
	now := s.now()

	released, err := s.presence.ReleaseScreen(ctx, roomID, userID, now)
	if err != nil {
		// 共享结算失败不阻塞离开，GC 还有兜底结算
		logCtx.WithError(err).Warn("Screen release on leave failed")
	}

	res, err := s.presence.Leave(ctx, roomID, userID, now)
	if err != nil {
		logCtx.WithError(err).Error("Leave script failed")
		return ErrInternal
	}
	switch res.Status {
	case domain.LeaveNotFound:
		return ErrRoomNotFound
	case domain.LeaveNotMember:
		// 重复投递的 leave：无写入、无广播
		logCtx.Debug("Leave ignored: user is not a member")
		return ErrUserNotInRoom
	}

	s.fanout.ToLobby(domain.EventRoomsOccupancy, domain.RoomsOccupancyPayload{ID: roomID, Occupancy: res.Occupancy})
	s.fanout.ToRoom(roomID, domain.EventMemberLeft, domain.MemberLeftPayload{UserID: userID}, 0)
	if len(res.Shifts) > 0 {
		s.fanout.ToRoom(roomID, domain.EventPositions, domain.PositionsPayload{Updates: res.Shifts}, 0)
	}
	if released {
		s.fanout.ToRoom(roomID, domain.EventScreenChanged, domain.ScreenChangedPayload{Owner: nil}, 0)
	}

	if res.Occupancy == 0 {
		if err := s.scheduler.ScheduleRoomGC(roomID, now, res.GCSeq); err != nil {
			// 排期失败不回滚离开；empty_since 的保险 TTL 最终仍会兜底
			logCtx.WithError(err).Error("Failed to schedule room GC")
		} else {
			logCtx.WithField("gc_seq", res.GCSeq).Info("Room empty, GC scheduled")
		}
	}
	logCtx.WithField("occupancy", res.Occupancy).Info("User left room")
	return nil
}

// UpdateState 合并一组软状态变更并广播真正发生变化的键。
// 被封禁的键被静默丢弃；ready 存于 meta，不受 state 封禁影响。
func (s *PresenceService) UpdateState(ctx context.Context, roomID, userID uint, changes map[string]interface{}) (map[string]string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "operation": "update_state"})

	state, ready, err := domain.NormalizeStateInput(changes)
	if err != nil {
		logCtx.WithError(err).Warn("State update rejected: bad input")
		return nil, ErrValidation
	}

	member, err := s.presence.IsMember(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Membership check failed")
		return nil, ErrInternal
	}
	if !member {
		return nil, ErrUserNotInRoom
	}

	applied := make(map[string]string, len(state)+1)

	if len(state) > 0 {
		blocks, err := s.presence.GetBlocks(ctx, roomID, userID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to read blocks")
			return nil, ErrInternal
		}
		for k := range state {
			if blocks[k] == "1" {
				// 封禁位的变更静默忽略，不报错也不广播
				delete(state, k)
			}
		}
		current, err := s.presence.GetState(ctx, roomID, userID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to read current state")
			return nil, ErrInternal
		}
		changed := make(map[string]string, len(state))
		for k, v := range state {
			if current[k] != v {
				changed[k] = v
			}
		}
		if len(changed) > 0 {
			if err := s.presence.SetState(ctx, roomID, userID, changed); err != nil {
				logCtx.WithError(err).Error("Failed to write state")
				return nil, ErrInternal
			}
			for k, v := range changed {
				applied[k] = v
			}
		}
	}

	if ready != "" {
		current, err := s.presence.GetReady(ctx, roomID, userID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to read ready flag")
			return nil, ErrInternal
		}
		if current != ready {
			if err := s.presence.SetReady(ctx, roomID, userID, ready); err != nil {
				logCtx.WithError(err).Error("Failed to write ready flag")
				return nil, ErrInternal
			}
			applied[domain.KeyReady] = ready
		}
	}

	if len(applied) > 0 {
		s.fanout.ToRoom(roomID, domain.EventStateChanged, domain.StateChangedPayload(userID, applied), userID)
		logCtx.WithField("applied", applied).Debug("State changed")
	}
	return applied, nil
}

// Snapshot 返回房间的当前观测真相。
func (s *PresenceService) Snapshot(ctx context.Context, roomID, forUserID uint) (*domain.RoomSnapshot, error) {
	snap, err := s.presence.Snapshot(ctx, roomID, forUserID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID}).WithError(err).Error("Failed to assemble snapshot")
		return nil, ErrInternal
	}
	return snap, nil
}

// mapMembershipErr 把仓库层的未找到错误映射为业务错误。
func mapMembershipErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotInRoom
	}
	return ErrInternal
}
