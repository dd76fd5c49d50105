package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// 笔画携带完整点序列，需要比聊天消息大得多的上限。
	maxMessageSize = 64 * 1024

	// 每个客户端出站队列的缓冲大小。
	sendBufferSize = 256
)

// Client 代表一个已升级的 WebSocket 连接，是 Session 接口的真实实现。
// 每个 Client 拥有独立的读写协程；读协程按接收顺序同步分发事件。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	connID string

	// mu 保护 send 通道的关闭状态。广播从锁外的成员快照调用 Send，
	// 可能与注销并发，投递和关闭必须互斥。
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient 创建 Client 实例。connID 由传输层在升级时生成，生命周期内稳定。
func NewClient(hub *Hub, conn *websocket.Conn, connID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		connID: connID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// ID 实现 Session 接口。
func (c *Client) ID() string { return c.connID }

// Send 实现 Session 接口：非阻塞投递，队列满或连接已注销时丢弃并返回 false。
// 单个慢客户端不允许拖慢整个房间的广播。
func (c *Client) Send(env Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		logrus.WithError(err).WithField("conn_id", c.connID).Error("Failed to marshal outbound envelope")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend 关闭出站队列，让 writePump 退出。幂等；
// 关闭之后的 Send 安全地返回 false 而不是向已关闭的通道写入。
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Run 启动客户端的读写协程。
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// CloseConn 关闭底层连接。
func (c *Client) CloseConn() { c.conn.Close() }

// readPump 从 WebSocket 读取消息并按接收顺序分发给路由器。
// 同步调用 Dispatch 保证了单连接内事件的处理顺序。
func (c *Client) readPump() {
	logCtx := logrus.WithField("conn_id", c.connID)
	defer func() {
		// 清理必须在协程退出前同步完成，之后的房间广播不会再命中本连接
		c.hub.Unregister(c)
		c.conn.Close()
		logCtx.Info("readPump exited, client unregistered")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) // 收到 Pong 后重置读取超时
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			logCtx.Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logCtx.WithError(err).Warn("Malformed inbound envelope")
			c.Send(newEnvelope(EventError, ErrorPayload{Message: "malformed message"}))
			continue
		}

		c.hub.Dispatch(context.Background(), c, env)
	}
}

// writePump 将 send 通道里的消息写入 WebSocket 连接，并定期发送 Ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithField("conn_id", c.connID)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
