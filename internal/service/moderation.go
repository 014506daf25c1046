package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
)

// ModerationService 处理管理员/房主对成员的封禁开关。
// block[k]="1" 的瞬间强制 state[k]:="0"；对当前屏幕持有者封禁 screen
// 会立即收回所有权并广播 screen_changed。
type ModerationService struct {
	presence repository.PresenceRepository
	fanout   Fanout

	now func() int64
}

// NewModerationService 创建 ModerationService 实例。
func NewModerationService(presence repository.PresenceRepository, fanout Fanout) *ModerationService {
	if presence == nil {
		panic("PresenceRepository cannot be nil for ModerationService")
	}
	if fanout == nil {
		panic("Fanout cannot be nil for ModerationService")
	}
	return &ModerationService{
		presence: presence,
		fanout:   fanout,
		now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

// SetBlocks 应用一组封禁变更并返回 (生效的封禁变更, 被强制关闭的状态位)。
func (s *ModerationService) SetBlocks(ctx context.Context, roomID, actorID, targetID uint, changes map[string]interface{}) (map[string]string, map[string]string, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"actor_id":  actorID,
		"target_id": targetID,
		"operation": "set_blocks",
	})

	delta, err := domain.NormalizeBlockInput(changes)
	if err != nil {
		logCtx.WithError(err).Warn("Block update rejected: bad input")
		return nil, nil, ErrValidation
	}

	// 目标必须在房间内
	inRoom, err := s.presence.IsMember(ctx, roomID, targetID)
	if err != nil {
		logCtx.WithError(err).Error("Target membership check failed")
		return nil, nil, ErrInternal
	}
	if !inRoom {
		return nil, nil, ErrUserNotInRoom
	}

	// 角色约束：仅 admin/host 可操作；host 不可动 admin；不可对自己操作；
	// 同角色之间不可互相操作。
	if actorID == targetID {
		return nil, nil, ErrForbidden
	}
	actorRole, err := s.presence.MemberRole(ctx, roomID, actorID)
	if err != nil {
		logCtx.WithError(err).Warn("Actor role lookup failed")
		return nil, nil, mapMembershipErr(err)
	}
	targetRole, err := s.presence.MemberRole(ctx, roomID, targetID)
	if err != nil {
		logCtx.WithError(err).Warn("Target role lookup failed")
		return nil, nil, mapMembershipErr(err)
	}
	if actorRole != domain.RoleAdmin && actorRole != domain.RoleHost {
		return nil, nil, ErrForbidden
	}
	if actorRole == domain.RoleHost && targetRole == domain.RoleAdmin {
		return nil, nil, ErrForbidden
	}
	if actorRole == targetRole {
		return nil, nil, ErrForbidden
	}

	// 只写真正变化的位
	stored, err := s.presence.GetBlocks(ctx, roomID, targetID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to read stored blocks")
		return nil, nil, ErrInternal
	}
	applied := make(map[string]string, len(delta))
	for k, v := range delta {
		cur := stored[k]
		if cur == "" {
			cur = "0"
		}
		if cur != v {
			applied[k] = v
		}
	}
	if len(applied) == 0 {
		return map[string]string{}, map[string]string{}, nil
	}
	if err := s.presence.SetBlocks(ctx, roomID, targetID, applied); err != nil {
		logCtx.WithError(err).Error("Failed to write blocks")
		return nil, nil, ErrInternal
	}

	// 刚变为 "1" 的状态位若当前为 "1"，强制关闭
	forcedOff := map[string]string{}
	state, err := s.presence.GetState(ctx, roomID, targetID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to read target state")
		return nil, nil, ErrInternal
	}
	toForce := make(map[string]string)
	for k, v := range applied {
		if v == "1" && domain.IsStateKey(k) && state[k] == "1" {
			toForce[k] = "0"
		}
	}
	if len(toForce) > 0 {
		if err := s.presence.SetState(ctx, roomID, targetID, toForce); err != nil {
			logCtx.WithError(err).Error("Failed to force state off")
			return nil, nil, ErrInternal
		}
		forcedOff = toForce
	}

	// 对当前持有者封禁 screen 即收回屏幕共享
	screenRevoked := false
	if applied[domain.KeyScreen] == "1" {
		owner, ok, ownerErr := s.presence.ScreenOwner(ctx, roomID)
		if ownerErr != nil {
			logCtx.WithError(ownerErr).Warn("Screen owner lookup failed during block")
		} else if ok && owner == targetID {
			released, relErr := s.presence.ReleaseScreen(ctx, roomID, targetID, s.now())
			if relErr != nil {
				logCtx.WithError(relErr).Error("Failed to revoke screen ownership")
			} else if released {
				screenRevoked = true
			}
		}
	}

	s.fanout.ToRoom(roomID, domain.EventBlocksChanged, domain.BlocksChangedPayload{
		UserID:    targetID,
		Applied:   applied,
		ForcedOff: forcedOff,
	}, 0)
	if screenRevoked {
		s.fanout.ToRoom(roomID, domain.EventScreenChanged, domain.ScreenChangedPayload{Owner: nil}, 0)
	}

	logCtx.WithFields(logrus.Fields{"applied": applied, "forced_off": forcedOff}).Info("Blocks updated")
	return applied, forcedOff, nil
}
