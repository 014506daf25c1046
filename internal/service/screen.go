package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
)

// ScreenService 管理房间内排他的屏幕共享所有权与累计共享时长。
type ScreenService struct {
	presence repository.PresenceRepository
	fanout   Fanout

	now func() int64
}

// NewScreenService 创建 ScreenService 实例。
func NewScreenService(presence repository.PresenceRepository, fanout Fanout) *ScreenService {
	if presence == nil {
		panic("PresenceRepository cannot be nil for ScreenService")
	}
	if fanout == nil {
		panic("Fanout cannot be nil for ScreenService")
	}
	return &ScreenService{
		presence: presence,
		fanout:   fanout,
		now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

// Claim 抢占屏幕共享。已是持有者时幂等成功；被他人持有时返回
// ErrScreenBusy 和当前持有者；screen 位被封禁时拒绝。
func (s *ScreenService) Claim(ctx context.Context, roomID, userID uint) (uint, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "operation": "screen_claim"})

	member, err := s.presence.IsMember(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Membership check failed")
		return 0, ErrInternal
	}
	if !member {
		return 0, ErrUserNotInRoom
	}
	blocks, err := s.presence.GetBlocks(ctx, roomID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to read blocks")
		return 0, ErrInternal
	}
	if blocks[domain.KeyScreen] == "1" {
		return 0, ErrForbidden
	}

	ok, owner, err := s.presence.ClaimScreen(ctx, roomID, userID, s.now())
	if err != nil {
		logCtx.WithError(err).Error("Claim script failed")
		return 0, ErrInternal
	}
	if !ok {
		logCtx.WithField("owner", owner).Info("Screen claim refused: already owned")
		return owner, ErrScreenBusy
	}
	s.fanout.ToRoom(roomID, domain.EventScreenChanged, domain.ScreenChangedPayload{Owner: &userID}, 0)
	logCtx.Info("Screen claimed")
	return userID, nil
}

// Release 释放屏幕共享并结算共享时长。非持有者调用返回 false，不广播。
func (s *ScreenService) Release(ctx context.Context, roomID, userID uint) (bool, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "operation": "screen_release"})
	released, err := s.presence.ReleaseScreen(ctx, roomID, userID, s.now())
	if err != nil {
		logCtx.WithError(err).Error("Release script failed")
		return false, ErrInternal
	}
	if released {
		s.fanout.ToRoom(roomID, domain.EventScreenChanged, domain.ScreenChangedPayload{Owner: nil}, 0)
		logCtx.Info("Screen released")
	}
	return released, nil
}
