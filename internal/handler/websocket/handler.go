package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/hub"
)

// WebSocketHandler 负责把 HTTP 连接升级为 WebSocket 并登记会话。
// 房间的加入/离开全部通过 join-room / leave-room 事件完成，升级时不做房间校验。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: 生产环境应从配置读取允许的 Origin 列表
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub: h,
	}
}

// HandleConnection 处理 GET /ws 的升级请求。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已经写了 HTTP 错误响应，这里只记录
		logrus.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	// 连接标识由传输层生成，生命周期内稳定
	connID := uuid.NewString()
	logCtx := logrus.WithField("conn_id", connID)
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, connID)
	h.hub.Register(client)
	client.Run()
}
