package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ClientMessage 是客户端发来的指令外壳。
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Router 处理客户端指令并返回 ack 负载。由 handler 层实现。
type Router interface {
	HandleMessage(c *Client, msgType string, data json.RawMessage) interface{}
	HandleDisconnect(c *Client)
}

// Client 是一条 WebSocket 连接在 Hub 中的代表。
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	router   Router
	userID   uint
	username string
	role     string

	mu     sync.RWMutex
	roomID uint // 当前所在房间，0 表示不在任何房间
	closed bool
}

// NewClient 创建客户端并把它注册进 Hub。
func NewClient(h *Hub, conn *websocket.Conn, router Router, userID uint, username, role string) *Client {
	c := &Client{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		router:   router,
		userID:   userID,
		username: username,
		role:     role,
	}
	h.Queue(HubMessage{Type: "register", Client: c})
	return c
}

func (c *Client) ID() string       { return c.id }
func (c *Client) UserID() uint     { return c.userID }
func (c *Client) Username() string { return c.username }
func (c *Client) Role() string     { return c.role }

// RoomID 返回客户端当前所在的房间，0 表示大厅。
func (c *Client) RoomID() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) setRoomID(roomID uint) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// Send 尝试向该连接写一条已编码消息，缓冲满则丢弃，连接已注销则忽略。
func (c *Client) Send(msg []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		logrus.WithField("user_id", c.userID).Warn("Client: send buffer full, message dropped")
	}
}

// closeSend 幂等关闭发送通道，由 Hub 在注销时调用。
func (c *Client) closeSend() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// ReadPump 从连接读取客户端指令并交给路由处理，每条指令回一条 ack。
// 连接断开时触发 HandleDisconnect（隐式 leave）并从 Hub 注销。
func (c *Client) ReadPump() {
	defer func() {
		c.router.HandleDisconnect(c)
		c.hub.Queue(HubMessage{Type: "unregister", Client: c})
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithField("user_id", c.userID).WithError(err).Warn("Client: unexpected close")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.ack(map[string]interface{}{"ok": false, "error": "bad_message"})
			continue
		}

		ack := c.router.HandleMessage(c, msg.Type, msg.Data)
		if ack != nil {
			c.ack(ack)
		}
	}
}

func (c *Client) ack(payload interface{}) {
	out, err := json.Marshal(ServerMessage{Type: "ack", Data: payload})
	if err != nil {
		logrus.WithError(err).Error("Client: failed to marshal ack")
		return
	}
	c.Send(out)
}

// WritePump 把 send 通道的消息写出，并按周期发 ping 保活。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
