package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/repository"
)

// RoomService 负责房间行的创建、列表与启动回灌。
// 终结（删除/软删除）只走 GC 路径，这里不提供删除入口。
type RoomService struct {
	rooms    repository.RoomRepository
	logs     repository.AppLogRepository
	presence repository.PresenceRepository
	fanout   Fanout
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(rooms repository.RoomRepository, logs repository.AppLogRepository, presence repository.PresenceRepository, fanout Fanout) *RoomService {
	if rooms == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if logs == nil {
		panic("AppLogRepository cannot be nil for RoomService")
	}
	if presence == nil {
		panic("PresenceRepository cannot be nil for RoomService")
	}
	if fanout == nil {
		panic("Fanout cannot be nil for RoomService")
	}
	return &RoomService{rooms: rooms, logs: logs, presence: presence, fanout: fanout}
}

// CreateRoom 创建房间：先插关系行拿到 ID，再写热存储的 params/index，
// 最后才广播 rooms_upsert（可读先于可见）。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, creatorName, title string, userLimit int, privacy string, gameParams *domain.GameParams) (*domain.RoomBrief, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "operation": "create_room"})

	title = sanitizeTitle(title)
	if title == "" || len([]rune(title)) > domain.MaxTitleLen {
		return nil, ErrValidation
	}
	if userLimit < domain.MinUserLimit || userLimit > domain.MaxUserLimit {
		return nil, ErrValidation
	}
	if privacy != domain.PrivacyOpen && privacy != domain.PrivacyPrivate {
		return nil, ErrValidation
	}

	paramsJSON := "{}"
	if gameParams != nil {
		b, err := json.Marshal(gameParams)
		if err != nil {
			logCtx.WithError(err).Error("Failed to marshal game params")
			return nil, ErrInternal
		}
		paramsJSON = string(b)
	}

	room := &domain.Room{
		Title:       title,
		UserLimit:   userLimit,
		Privacy:     privacy,
		CreatorID:   creatorID,
		CreatorName: creatorName,
		GameParams:  paramsJSON,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to insert room row")
		return nil, ErrInternal
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	// 热存储写入先于广播；任一失败都不能让房间“可见但不可读”
	if err := s.presence.RegisterRoom(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to register room in hot store")
		return nil, ErrInternal
	}
	if err := s.presence.AddCreatorRoom(ctx, creatorID, room.ID); err != nil {
		logCtx.WithError(err).Warn("Failed to track creator room set")
	}

	details, _ := json.Marshal(map[string]interface{}{"room_id": room.ID, "title": room.Title})
	audit := domain.AppLog{UserID: creatorID, Username: creatorName, Action: domain.ActionRoomCreated, Details: string(details)}
	if err := s.logs.Append(ctx, &audit); err != nil {
		logCtx.WithError(err).Warn("Failed to append room_created audit entry")
	}

	brief := room.Brief(0)
	s.fanout.ToLobby(domain.EventRoomsUpsert, brief)
	logCtx.Info("Room created")
	return &brief, nil
}

// ListRooms 从热索引按创建时间倒序返回至多 limit 个房间简要视图。
func (s *RoomService) ListRooms(ctx context.Context, limit int64) ([]domain.RoomBrief, error) {
	ids, err := s.presence.RoomIDs(ctx, limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to read rooms index")
		return nil, ErrInternal
	}
	briefs := make([]domain.RoomBrief, 0, len(ids))
	for _, id := range ids {
		brief, err := s.presence.RoomBrief(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// 索引与 params 间的窗口期，略过
				continue
			}
			logrus.WithError(err).WithField("room_id", id).Warn("Failed to read room brief")
			continue
		}
		briefs = append(briefs, *brief)
	}
	return briefs, nil
}

// GetBrief 返回单个房间的简要视图。
func (s *RoomService) GetBrief(ctx context.Context, roomID uint) (*domain.RoomBrief, error) {
	brief, err := s.presence.RoomBrief(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, ErrInternal
	}
	return brief, nil
}

// Rehydrate 在启动时把活跃的关系行回灌进热存储：
// 不在 rooms:index 中的活跃房间重建 index 项与 params hash，成员关系从空开始。
func (s *RoomService) Rehydrate(ctx context.Context) error {
	rooms, err := s.rooms.FindAllActive(ctx)
	if err != nil {
		return err
	}
	restored := 0
	for i := range rooms {
		room := &rooms[i]
		present, err := s.presence.InIndex(ctx, room.ID)
		if err != nil {
			return err
		}
		if present {
			continue
		}
		if err := s.presence.RegisterRoom(ctx, room); err != nil {
			return err
		}
		restored++
	}
	logrus.WithFields(logrus.Fields{"active": len(rooms), "restored": restored}).Info("Room index rehydrated")
	return nil
}

// sanitizeTitle 去掉首尾空白与控制字符。
func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
}
