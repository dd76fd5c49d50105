package hub

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
)

// 入站/出站事件名。与客户端的约定见 Envelope。
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventDrawStart   = "draw-start"
	EventDrawMove    = "draw-move"
	EventDrawEnd     = "draw-end"
	EventClearCanvas = "clear-canvas"
	EventCursorMove  = "cursor-move"
	EventCursorLeave = "cursor-leave"
	EventInitDrawing = "init-drawing"
	EventUserCount   = "user-count"
	EventError       = "error"
)

// Envelope 是 WebSocket 上传输的统一消息封装：事件名 + 结构化负载。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload join-room 的入站负载。
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// DrawStartPayload draw-start 的负载；出站时注入 UserID。
type DrawStartPayload struct {
	UserID string  `json:"userId,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width,omitempty"`
}

// DrawMovePayload draw-move 的负载；出站时注入 UserID。
type DrawMovePayload struct {
	UserID string  `json:"userId,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// DrawEndPayload draw-end 的负载，携带整条笔画的点序列；出站时注入 UserID。
// 远端即使丢失了中间的 draw-move，也能用完整点序列补画整条笔画。
type DrawEndPayload struct {
	UserID string         `json:"userId,omitempty"`
	Color  string         `json:"color,omitempty"`
	Width  float64        `json:"width,omitempty"`
	Points []domain.Point `json:"points"`
}

// CursorMovePayload cursor-move 的负载；出站时注入 UserID。
type CursorMovePayload struct {
	UserID string  `json:"userId,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color,omitempty"`
}

// CursorLeavePayload cursor-leave 的出站负载。
type CursorLeavePayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload 仅发给出错连接本身的错误提示。
type ErrorPayload struct {
	Message string `json:"message"`
}

// CommandPayload 是绘图命令在线上的形态 {type, data, timestamp}。
type CommandPayload struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReplayPayloads 把日志记录转换为线上的回放序列。
func ReplayPayloads(cmds []domain.DrawingCommand) []CommandPayload {
	out := make([]CommandPayload, 0, len(cmds))
	for _, c := range cmds {
		data := c.Data
		if data == "" {
			data = "{}"
		}
		out = append(out, CommandPayload{
			Type:      c.Type,
			Data:      json.RawMessage(data),
			Timestamp: c.Timestamp,
		})
	}
	return out
}

// newEnvelope 构造出站消息。负载都是本包定义的结构体，序列化失败属于编程错误。
func newEnvelope(event string, payload interface{}) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal event payload")
		data = []byte("null")
	}
	return Envelope{Event: event, Data: data}
}
