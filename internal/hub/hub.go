package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Envelope 是跨副本广播桥上的消息。Origin 用于过滤回环投递。
type Envelope struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Skip    uint            `json:"skip,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage 是写给客户端的统一外壳。
type ServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HubMessage 是 Hub 内部通道的注册/注销事件。
type HubMessage struct {
	Type   string // "register" / "unregister"
	Client *Client
}

// Hub 维护活跃客户端集合并承载三个主题的扇出：
// room:R（房间内事件）、rooms（大厅列表事件）、user:U（定向控制事件）。
// 本地直接投递，同时经 Redis pub/sub 桥接到其他副本。
// 投递是非阻塞的：send 缓冲打满的客户端丢消息，由快照对账兜底。
type Hub struct {
	messageChan chan HubMessage

	// 关停栅栏：持有读锁的 Queue 完成投递后 Stop 才会关闭通道
	stopMu  sync.RWMutex
	stopped bool

	mu    sync.RWMutex
	rooms map[uint]map[*Client]bool // 按当前房间分组
	users map[uint]map[*Client]bool // 按用户分组
	all   map[*Client]bool          // 全部连接（rooms 主题的订阅者）

	redisClient *redis.Client
	channel     string
	originID    string

	subCtx    context.Context
	subCancel context.CancelFunc
}

// NewHub 创建并返回一个新的 Hub 实例。channel 是广播桥的 pub/sub 频道名。
func NewHub(redisClient *redis.Client, channel string) *Hub {
	if redisClient == nil {
		panic("redis client cannot be nil for Hub")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[uint]map[*Client]bool),
		users:       make(map[uint]map[*Client]bool),
		all:         make(map[*Client]bool),
		redisClient: redisClient,
		channel:     channel,
		originID:    uuid.NewString(),
		subCtx:      ctx,
		subCancel:   cancel,
	}
}

// Run 启动 Hub 的注册循环与跨副本订阅。应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	go h.consumeBridge()

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		default:
			log.Warnf("Hub: unknown internal message type %q", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// Queue 把注册/注销事件放入 Hub 的内部通道。
// Stop 之后到达的事件被丢弃：停机时连接随进程一起消失，无需注销。
func (h *Hub) Queue(msg HubMessage) {
	h.stopMu.RLock()
	defer h.stopMu.RUnlock()
	if h.stopped {
		return
	}
	h.messageChan <- msg
}

// Stop 结束跨副本订阅并关闭内部通道。幂等。
func (h *Hub) Stop() {
	h.stopMu.Lock()
	if h.stopped {
		h.stopMu.Unlock()
		return
	}
	h.stopped = true
	h.stopMu.Unlock()
	h.subCancel()
	close(h.messageChan)
}

func (h *Hub) registerClient(c *Client) {
	if c == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	h.mu.Lock()
	h.all[c] = true
	if _, ok := h.users[c.UserID()]; !ok {
		h.users[c.UserID()] = make(map[*Client]bool)
	}
	h.users[c.UserID()][c] = true
	h.mu.Unlock()
	logrus.WithFields(logrus.Fields{"user_id": c.UserID(), "conn_id": c.ID()}).Info("Client registered to Hub")
}

func (h *Hub) unregisterClient(c *Client) {
	if c == nil {
		logrus.Error("Hub: attempted to unregister a nil client")
		return
	}
	h.mu.Lock()
	if _, ok := h.all[c]; ok {
		delete(h.all, c)
		if set, ok := h.users[c.UserID()]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.users, c.UserID())
			}
		}
		if roomID := c.RoomID(); roomID != 0 {
			h.detachFromRoomLocked(c, roomID)
		}
		c.closeSend()
	}
	h.mu.Unlock()
	logrus.WithFields(logrus.Fields{"user_id": c.UserID(), "conn_id": c.ID()}).Info("Client unregistered from Hub")
}

// JoinRoomTopic 把客户端挂到 room:R 主题（成功 join 之后由路由调用）。
func (h *Hub) JoinRoomTopic(c *Client, roomID uint) {
	h.mu.Lock()
	if prev := c.RoomID(); prev != 0 && prev != roomID {
		h.detachFromRoomLocked(c, prev)
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
	h.mu.Unlock()
	c.setRoomID(roomID)
}

// LeaveRoomTopic 把客户端从 room:R 主题摘下。
func (h *Hub) LeaveRoomTopic(c *Client, roomID uint) {
	h.mu.Lock()
	h.detachFromRoomLocked(c, roomID)
	h.mu.Unlock()
	c.setRoomID(0)
}

func (h *Hub) detachFromRoomLocked(c *Client, roomID uint) {
	if set, ok := h.rooms[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// OtherClientRooms 返回同一用户其余连接所在的房间集合（单席位策略用）。
func (h *Hub) OtherClientRooms(userID uint, except *Client) map[uint][]*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[uint][]*Client)
	for c := range h.users[userID] {
		if c == except {
			continue
		}
		if roomID := c.RoomID(); roomID != 0 {
			out[roomID] = append(out[roomID], c)
		}
	}
	return out
}

// === service.Fanout 实现 ===

// ToRoom 向 room:R 主题广播；skipUserID 非 0 时跳过该用户的连接。
func (h *Hub) ToRoom(roomID uint, event string, payload interface{}, skipUserID uint) {
	h.publish(topicRoom(roomID), event, payload, skipUserID)
}

// ToLobby 向 rooms 主题广播。
func (h *Hub) ToLobby(event string, payload interface{}) {
	h.publish(topicLobby, event, payload, 0)
}

// ToUser 向 user:U 主题投递定向事件。
func (h *Hub) ToUser(userID uint, event string, payload interface{}) {
	h.publish(topicUser(userID), event, payload, 0)
}

const topicLobby = "rooms"

func topicRoom(roomID uint) string {
	return fmt.Sprintf("room:%d", roomID)
}

func topicUser(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

func (h *Hub) publish(topic, event string, payload interface{}, skip uint) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Hub: failed to marshal event payload")
		return
	}
	h.deliverLocal(topic, event, raw, skip)

	env := Envelope{Origin: h.originID, Topic: topic, Event: event, Skip: skip, Payload: raw}
	envBytes, err := json.Marshal(env)
	if err != nil {
		logrus.WithError(err).Error("Hub: failed to marshal fanout envelope")
		return
	}
	// 广播失败不影响已提交的变更，只记录
	if err := h.redisClient.Publish(context.Background(), h.channel, envBytes).Err(); err != nil {
		logrus.WithFields(logrus.Fields{"topic": topic, "event": event}).WithError(err).Error("Hub: redis publish failed")
	}
}

// deliverLocal 把事件投递到本副本上订阅了 topic 的连接。
func (h *Hub) deliverLocal(topic, event string, payload json.RawMessage, skip uint) {
	msg, err := json.Marshal(ServerMessage{Type: event, Data: payload})
	if err != nil {
		logrus.WithError(err).Error("Hub: failed to marshal server message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[*Client]bool
	switch {
	case topic == topicLobby:
		targets = h.all
	case len(topic) > 5 && topic[:5] == "room:":
		var roomID uint
		if _, err := fmt.Sscanf(topic, "room:%d", &roomID); err == nil {
			targets = h.rooms[roomID]
		}
	case len(topic) > 5 && topic[:5] == "user:":
		var userID uint
		if _, err := fmt.Sscanf(topic, "user:%d", &userID); err == nil {
			targets = h.users[userID]
		}
	}

	for c := range targets {
		if skip != 0 && c.UserID() == skip {
			continue
		}
		// 慢客户端丢消息，由快照对账兜底
		c.Send(msg)
	}
}

// consumeBridge 订阅广播桥并投递其他副本发来的事件。
func (h *Hub) consumeBridge() {
	sub := h.redisClient.Subscribe(h.subCtx, h.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-h.subCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logrus.WithError(err).Warn("Hub: malformed fanout envelope, dropped")
				continue
			}
			if env.Origin == h.originID {
				continue // 本副本已经本地投递过
			}
			h.deliverLocal(env.Topic, env.Event, env.Payload, env.Skip)
		}
	}
}
