package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/hub"
	"github.com/wi1ex/mafia-sub000/internal/service"
)

const commandTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 跨域由网关层把关
	},
}

// SocketHandler 升级 WebSocket 连接并把指令路由到各服务。
type SocketHandler struct {
	hub        *hub.Hub
	presence   *service.PresenceService
	moderation *service.ModerationService
	screen     *service.ScreenService
}

func NewSocketHandler(h *hub.Hub, presence *service.PresenceService, moderation *service.ModerationService, screen *service.ScreenService) *SocketHandler {
	return &SocketHandler{hub: h, presence: presence, moderation: moderation, screen: screen}
}

// ServeWS 处理 GET /ws 的升级请求。要求已通过 JWT 中间件。
func (s *SocketHandler) ServeWS(c *gin.Context) {
	userID := c.GetUint("user_id")
	username := c.GetString("username")
	role := c.GetString("role")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("SocketHandler: websocket upgrade failed")
		return
	}

	client := hub.NewClient(s.hub, conn, s, userID, username, role)
	go client.WritePump()
	go client.ReadPump()
}

// 客户端指令负载

type joinCommand struct {
	RoomID uint                   `json:"room_id"`
	State  map[string]interface{} `json:"state"`
}

type stateCommand struct {
	Changes map[string]interface{} `json:"changes"`
}

type moderateCommand struct {
	TargetID uint                   `json:"target_id"`
	Changes  map[string]interface{} `json:"changes"`
}

// HandleMessage 实现 hub.Router。返回值作为 ack 回给发送方。
func (s *SocketHandler) HandleMessage(c *hub.Client, msgType string, data json.RawMessage) interface{} {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch msgType {
	case "join":
		return s.handleJoin(ctx, c, data)
	case "leave":
		return s.handleLeave(ctx, c)
	case "state":
		return s.handleState(ctx, c, data)
	case "moderate":
		return s.handleModerate(ctx, c, data)
	case "screen_claim":
		return s.handleScreenClaim(ctx, c)
	case "screen_release":
		return s.handleScreenRelease(ctx, c)
	case "ping":
		return gin.H{"ok": true, "op": "ping"}
	default:
		return gin.H{"ok": false, "error": "unknown_command"}
	}
}

func (s *SocketHandler) handleJoin(ctx context.Context, c *hub.Client, data json.RawMessage) interface{} {
	var cmd joinCommand
	if err := json.Unmarshal(data, &cmd); err != nil || cmd.RoomID == 0 {
		return gin.H{"ok": false, "op": "join", "error": "bad_payload"}
	}

	snapshot, err := s.presence.Join(ctx, cmd.RoomID, c.UserID(), c.Role(), cmd.State)
	if err != nil {
		return ackError("join", err)
	}

	s.hub.JoinRoomTopic(c, cmd.RoomID)
	s.evictOtherSeats(ctx, c, cmd.RoomID)

	return gin.H{"ok": true, "op": "join", "snapshot": snapshot}
}

// evictOtherSeats 执行单席位策略：同一用户的其他连接被踢出它们所在的房间。
func (s *SocketHandler) evictOtherSeats(ctx context.Context, c *hub.Client, joinedRoom uint) {
	for roomID, clients := range s.hub.OtherClientRooms(c.UserID(), c) {
		if roomID == joinedRoom {
			continue
		}
		if err := s.presence.Leave(ctx, roomID, c.UserID()); err != nil && !errors.Is(err, service.ErrUserNotInRoom) {
			logrus.WithFields(logrus.Fields{"user_id": c.UserID(), "room_id": roomID}).WithError(err).Error("SocketHandler: failed to evict previous seat")
			continue
		}
		notice, _ := json.Marshal(hub.ServerMessage{
			Type: domain.EventForceLeave,
			Data: domain.ForceLeavePayload{RoomID: roomID},
		})
		for _, other := range clients {
			s.hub.LeaveRoomTopic(other, roomID)
			other.Send(notice)
		}
	}
}

func (s *SocketHandler) handleLeave(ctx context.Context, c *hub.Client) interface{} {
	roomID := c.RoomID()
	if roomID == 0 {
		return gin.H{"ok": false, "op": "leave", "error": "not_in_room"}
	}
	if err := s.presence.Leave(ctx, roomID, c.UserID()); err != nil {
		return ackError("leave", err)
	}
	s.hub.LeaveRoomTopic(c, roomID)
	return gin.H{"ok": true, "op": "leave"}
}

func (s *SocketHandler) handleState(ctx context.Context, c *hub.Client, data json.RawMessage) interface{} {
	roomID := c.RoomID()
	if roomID == 0 {
		return gin.H{"ok": false, "op": "state", "error": "not_in_room"}
	}
	var cmd stateCommand
	if err := json.Unmarshal(data, &cmd); err != nil || len(cmd.Changes) == 0 {
		return gin.H{"ok": false, "op": "state", "error": "bad_payload"}
	}
	applied, err := s.presence.UpdateState(ctx, roomID, c.UserID(), cmd.Changes)
	if err != nil {
		return ackError("state", err)
	}
	return gin.H{"ok": true, "op": "state", "applied": applied}
}

func (s *SocketHandler) handleModerate(ctx context.Context, c *hub.Client, data json.RawMessage) interface{} {
	roomID := c.RoomID()
	if roomID == 0 {
		return gin.H{"ok": false, "op": "moderate", "error": "not_in_room"}
	}
	var cmd moderateCommand
	if err := json.Unmarshal(data, &cmd); err != nil || cmd.TargetID == 0 || len(cmd.Changes) == 0 {
		return gin.H{"ok": false, "op": "moderate", "error": "bad_payload"}
	}
	applied, forced, err := s.moderation.SetBlocks(ctx, roomID, c.UserID(), cmd.TargetID, cmd.Changes)
	if err != nil {
		return ackError("moderate", err)
	}
	return gin.H{"ok": true, "op": "moderate", "applied": applied, "forced_off": forced}
}

func (s *SocketHandler) handleScreenClaim(ctx context.Context, c *hub.Client) interface{} {
	roomID := c.RoomID()
	if roomID == 0 {
		return gin.H{"ok": false, "op": "screen_claim", "error": "not_in_room"}
	}
	owner, err := s.screen.Claim(ctx, roomID, c.UserID())
	if err != nil {
		if errors.Is(err, service.ErrScreenBusy) {
			return gin.H{"ok": false, "op": "screen_claim", "error": "screen_busy", "owner": owner}
		}
		return ackError("screen_claim", err)
	}
	return gin.H{"ok": true, "op": "screen_claim"}
}

func (s *SocketHandler) handleScreenRelease(ctx context.Context, c *hub.Client) interface{} {
	roomID := c.RoomID()
	if roomID == 0 {
		return gin.H{"ok": false, "op": "screen_release", "error": "not_in_room"}
	}
	released, err := s.screen.Release(ctx, roomID, c.UserID())
	if err != nil {
		return ackError("screen_release", err)
	}
	return gin.H{"ok": true, "op": "screen_release", "released": released}
}

// HandleDisconnect 实现 hub.Router：连接断开等同于对当前房间的隐式 leave。
func (s *SocketHandler) HandleDisconnect(c *hub.Client) {
	roomID := c.RoomID()
	if roomID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := s.presence.Leave(ctx, roomID, c.UserID()); err != nil && !errors.Is(err, service.ErrUserNotInRoom) {
		logrus.WithFields(logrus.Fields{"user_id": c.UserID(), "room_id": roomID}).WithError(err).Error("SocketHandler: implicit leave on disconnect failed")
	}
	s.hub.LeaveRoomTopic(c, roomID)
}

// ackError 把服务层错误映射为 ack 负载。
func ackError(op string, err error) gin.H {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return gin.H{"ok": false, "op": op, "error": "room_not_found"}
	case errors.Is(err, service.ErrRoomFull):
		return gin.H{"ok": false, "op": op, "status": "full", "error": "room_is_full"}
	case errors.Is(err, service.ErrUserNotInRoom):
		return gin.H{"ok": false, "op": op, "error": "user_not_in_room"}
	case errors.Is(err, service.ErrForbidden):
		return gin.H{"ok": false, "op": op, "error": "forbidden"}
	case errors.Is(err, service.ErrValidation):
		return gin.H{"ok": false, "op": op, "error": "validation_failed"}
	default:
		logrus.WithField("op", op).WithError(err).Error("SocketHandler: internal error")
		return gin.H{"ok": false, "op": op, "error": "internal_error"}
	}
}
