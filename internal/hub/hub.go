package hub

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub 维护全部活跃连接并把入站事件交给 Router。
// 成员关系、光标状态等房间级状态都归 Router 及其子组件所有，
// Hub 只负责连接生命周期。
type Hub struct {
	router *Router

	mu      sync.Mutex
	clients map[string]*Client

	log *logrus.Entry
}

// NewHub 创建 Hub 实例。
func NewHub(router *Router) *Hub {
	if router == nil {
		panic("Router cannot be nil for Hub")
	}
	return &Hub{
		router:  router,
		clients: make(map[string]*Client),
		log:     logrus.WithField("component", "hub"),
	}
}

// Register 登记一个新连接。
func (h *Hub) Register(client *Client) {
	if client == nil {
		h.log.Error("Attempted to register a nil client")
		return
	}
	h.mu.Lock()
	h.clients[client.ID()] = client
	total := len(h.clients)
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"conn_id": client.ID(), "total_clients": total}).Info("Client registered")
}

// Unregister 注销连接：先同步走断开清理路径（等同显式 leave-room），
// 再关闭发送通道让 writePump 退出。幂等，可安全重复调用。
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	_, known := h.clients[client.ID()]
	if known {
		delete(h.clients, client.ID())
	}
	h.mu.Unlock()
	if !known {
		return
	}

	h.router.Disconnect(context.Background(), client)
	client.closeSend()
	h.log.WithField("conn_id", client.ID()).Info("Client unregistered")
}

// Dispatch 把入站事件交给路由器。由各连接的读协程调用。
func (h *Hub) Dispatch(ctx context.Context, client *Client, env Envelope) {
	h.router.Dispatch(ctx, client, env)
}

// ClientCount 返回当前活跃连接数。
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown 关闭全部活跃连接。用于进程优雅退出。
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.log.WithField("total_clients", len(clients)).Info("Closing all client connections...")
	for _, c := range clients {
		c.CloseConn() // readPump 随之退出并触发注销
	}
}
