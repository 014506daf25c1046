package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wi1ex/mafia-sub000/internal/domain"
	"github.com/wi1ex/mafia-sub000/internal/media"
	"github.com/wi1ex/mafia-sub000/internal/service"
)

// RoomHandler 暴露房间生命周期与成员操作的 HTTP 接口。
// WebSocket 指令是主通道，这里是等价的轮询/恢复通道。
type RoomHandler struct {
	rooms    *service.RoomService
	presence *service.PresenceService
	media    *media.Issuer
}

func NewRoomHandler(rooms *service.RoomService, presence *service.PresenceService, issuer *media.Issuer) *RoomHandler {
	return &RoomHandler{rooms: rooms, presence: presence, media: issuer}
}

// maxListLimit 是大厅列表单次返回的房间数上限。
const maxListLimit = 100

type createRoomRequest struct {
	Title      string             `json:"title" binding:"required"`
	UserLimit  int                `json:"user_limit" binding:"required"`
	Privacy    string             `json:"privacy"`
	GameParams *domain.GameParams `json:"game_params"`
}

// Create 处理 POST /rooms。
func (h *RoomHandler) Create(c *gin.Context) {
	userID := c.GetUint("user_id")
	username := c.GetString("username")

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	brief, err := h.rooms.CreateRoom(c.Request.Context(), userID, username, req.Title, req.UserLimit, req.Privacy, req.GameParams)
	if err != nil {
		respondError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"room_id": brief.ID, "creator_id": userID}).Info("Room created via HTTP")
	c.JSON(http.StatusCreated, brief)
}

// List 处理 GET /rooms：按创建时间倒序返回大厅可见的房间简报，上限 100。
func (h *RoomHandler) List(c *gin.Context) {
	limit := int64(maxListLimit)
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 && v <= maxListLimit {
			limit = v
		}
	}
	briefs, err := h.rooms.ListRooms(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": briefs})
}

type joinRoomRequest struct {
	State map[string]interface{} `json:"state"`
}

// Join 处理 POST /rooms/:id/join：入房并返回媒体令牌与完整快照。
func (h *RoomHandler) Join(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")
	role := c.GetString("role")

	var req joinRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	snapshot, err := h.presence.Join(c.Request.Context(), roomID, userID, role, req.State)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.media.RoomToken(roomID, userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to issue media token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	// 座位与角色的顶层投影，客户端不必遍历快照即可渲染大厅态
	positions := make(map[uint]int, len(snapshot.Members))
	roles := make(map[uint]string, len(snapshot.Members))
	for _, m := range snapshot.Members {
		positions[m.UserID] = m.Position
		roles[m.UserID] = m.Role
	}

	c.JSON(http.StatusOK, gin.H{
		"token":        token,
		"room_id":      roomID,
		"snapshot":     snapshot,
		"self_pref":    snapshot.SelfState,
		"positions":    positions,
		"roles":        roles,
		"blocked":      snapshot.SelfBlocked,
		"screen_owner": snapshot.ScreenOwner,
	})
}

// Leave 处理 POST /rooms/:id/leave。
func (h *RoomHandler) Leave(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")
	if err := h.presence.Leave(c.Request.Context(), roomID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type updateStateRequest struct {
	Changes map[string]interface{} `json:"changes" binding:"required"`
}

// UpdateState 处理 POST /rooms/:id/state。
func (h *RoomHandler) UpdateState(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")

	var req updateStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	applied, err := h.presence.UpdateState(c.Request.Context(), roomID, userID, req.Changes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "applied": applied})
}

// Snapshot 处理 GET /rooms/:id/snapshot：成员重连后的对账读取。
func (h *RoomHandler) Snapshot(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := c.GetUint("user_id")
	snap, err := h.presence.Snapshot(c.Request.Context(), roomID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func roomIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return uint(v), true
}
