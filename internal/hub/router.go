package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
)

// handlerFunc 处理一条入站事件。data 是 Envelope 的原始负载。
type handlerFunc func(ctx context.Context, sess Session, data json.RawMessage)

// Router 是同步引擎的核心：一张入站事件到 {校验, 持久化, 扇出目标} 的分发表。
// 每个连接的读协程按接收顺序同步调用 Dispatch，因此单连接内的事件天然有序；
// 不同连接之间不做全局排序。
type Router struct {
	registry *Registry
	cursors  *CursorTracker
	rooms    *service.RoomService
	history  *service.HistoryService
	handlers map[string]handlerFunc
	log      *logrus.Entry
}

// NewRouter 创建事件路由器并注册分发表。
// cursorTTL <= 0 时光标过期使用默认 3 秒。
func NewRouter(rooms *service.RoomService, history *service.HistoryService, cursorTTL time.Duration) *Router {
	if rooms == nil || history == nil {
		panic("RoomService and HistoryService cannot be nil for Router")
	}
	r := &Router{
		registry: NewRegistry(),
		rooms:    rooms,
		history:  history,
		log:      logrus.WithField("component", "router"),
	}
	// 光标空闲过期时向房间其余成员广播 cursor-leave，远端及时移除失效光标
	r.cursors = NewCursorTracker(cursorTTL, func(roomID, connID string) {
		r.broadcastExcept(roomID, connID, newEnvelope(EventCursorLeave, CursorLeavePayload{UserID: connID}))
	})

	r.handlers = map[string]handlerFunc{
		EventJoinRoom:    r.handleJoinRoom,
		EventLeaveRoom:   r.handleLeaveRoom,
		EventDrawStart:   r.handleDrawStart,
		EventDrawMove:    r.handleDrawMove,
		EventDrawEnd:     r.handleDrawEnd,
		EventClearCanvas: r.handleClearCanvas,
		EventCursorMove:  r.handleCursorMove,
	}
	return r
}

// Registry 返回路由器持有的成员注册表。
func (r *Router) Registry() *Registry {
	return r.registry
}

// Dispatch 按分发表处理一条入站事件。
func (r *Router) Dispatch(ctx context.Context, sess Session, env Envelope) {
	handler, ok := r.handlers[env.Event]
	if !ok {
		r.log.WithFields(logrus.Fields{"conn_id": sess.ID(), "event": env.Event}).Warn("Unknown inbound event, dropping")
		return
	}
	handler(ctx, sess, env.Data)
}

// Disconnect 处理连接断开：与显式 leave-room 走同一条清理路径。
// 必须在该连接的读协程退出前同步完成，此后房间的任何广播都不会再命中它。
func (r *Router) Disconnect(ctx context.Context, sess Session) {
	connID := sess.ID()
	roomID, count, ok := r.registry.Leave(connID)
	if !ok {
		return
	}
	r.cursors.Remove(roomID, connID)
	r.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": roomID}).Info("Connection disconnected from room")

	r.broadcastRoom(roomID, newEnvelope(EventUserCount, count))
	r.broadcastRoom(roomID, newEnvelope(EventCursorLeave, CursorLeavePayload{UserID: connID}))
}

// --- 入站事件处理 ---

func (r *Router) handleJoinRoom(ctx context.Context, sess Session, data json.RawMessage) {
	connID := sess.ID()
	logCtx := r.log.WithField("conn_id", connID)

	var p JoinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		logCtx.WithError(err).Warn("Malformed join-room payload")
		r.sendError(sess, "invalid join-room payload")
		return
	}
	logCtx = logCtx.WithField("room_id", p.RoomID)

	room, err := r.rooms.JoinOrCreate(ctx, p.RoomID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRoomCode) {
			logCtx.Warn("Join rejected: invalid room code")
			r.sendError(sess, err.Error())
			return
		}
		logCtx.WithError(err).Error("Failed to resolve room on join")
		r.sendError(sess, "failed to join room")
		return
	}

	count, prevRoom, prevCount := r.registry.Join(sess, room.Code)

	// 切换房间：先把旧房间的痕迹清掉并通知旧房间成员
	if prevRoom != "" {
		r.cursors.Remove(prevRoom, connID)
		r.broadcastRoom(prevRoom, newEnvelope(EventUserCount, prevCount))
		r.broadcastRoom(prevRoom, newEnvelope(EventCursorLeave, CursorLeavePayload{UserID: connID}))
	}

	// 给新成员回放完整日志，从空画布重建即可收敛到共享状态
	cmds, err := r.history.Replay(ctx, room.Code)
	if err != nil {
		logCtx.WithError(err).Error("Failed to replay drawing log for new member")
		r.sendError(sess, "failed to load drawing history")
	} else {
		sess.Send(newEnvelope(EventInitDrawing, ReplayPayloads(cmds)))
	}

	r.broadcastRoom(room.Code, newEnvelope(EventUserCount, count))
	logCtx.WithField("member_count", count).Info("Connection joined room")
}

func (r *Router) handleLeaveRoom(ctx context.Context, sess Session, _ json.RawMessage) {
	connID := sess.ID()
	roomID, count, ok := r.registry.Leave(connID)
	if !ok {
		// 没加入任何房间的 leave 是良性竞争，静默丢弃
		r.log.WithField("conn_id", connID).Debug("leave-room from connection with no current room, dropping")
		return
	}
	r.cursors.Remove(roomID, connID)
	r.log.WithFields(logrus.Fields{"conn_id": connID, "room_id": roomID}).Info("Connection left room")

	// 发送者已经移除，广播只会到达其余成员
	r.broadcastRoom(roomID, newEnvelope(EventUserCount, count))
	r.broadcastRoom(roomID, newEnvelope(EventCursorLeave, CursorLeavePayload{UserID: connID}))
}

func (r *Router) handleDrawStart(ctx context.Context, sess Session, data json.RawMessage) {
	roomID, ok := r.requireRoom(sess, EventDrawStart)
	if !ok {
		return
	}
	var p DrawStartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.sendError(sess, "invalid draw-start payload")
		return
	}
	p.UserID = sess.ID()
	// 不持久化：只有抬笔时的完整笔画才进日志
	r.broadcastExcept(roomID, sess.ID(), newEnvelope(EventDrawStart, p))
}

func (r *Router) handleDrawMove(ctx context.Context, sess Session, data json.RawMessage) {
	roomID, ok := r.requireRoom(sess, EventDrawMove)
	if !ok {
		return
	}
	var p DrawMovePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.sendError(sess, "invalid draw-move payload")
		return
	}
	p.UserID = sess.ID()
	r.broadcastExcept(roomID, sess.ID(), newEnvelope(EventDrawMove, p))
}

func (r *Router) handleDrawEnd(ctx context.Context, sess Session, data json.RawMessage) {
	connID := sess.ID()
	roomID, ok := r.requireRoom(sess, EventDrawEnd)
	if !ok {
		return
	}
	var p DrawEndPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.sendError(sess, "invalid draw-end payload")
		return
	}

	// 只有两个点以上的完整笔画才持久化；单点"笔画"照常广播但不进日志
	if len(p.Points) > 1 {
		cmd := domain.DrawingCommand{Timestamp: time.Now().UTC()}
		if err := cmd.SetStroke(domain.StrokeData{Color: p.Color, Width: p.Width, Points: p.Points}); err != nil {
			r.log.WithError(err).WithField("conn_id", connID).Error("Failed to encode stroke command")
			r.sendError(sess, "invalid stroke data")
			return
		}
		if err := r.history.Append(ctx, roomID, &cmd); err != nil {
			// 持久化失败只降低持久性，实时广播照常进行
			r.log.WithError(err).WithFields(logrus.Fields{
				"conn_id": connID,
				"room_id": roomID,
			}).Error("Stroke persistence failed, continuing live broadcast")
		}
	}

	p.UserID = connID
	// 含发送者：发送者以服务端回显的 draw-end 作为笔画完成确认
	r.broadcastRoom(roomID, newEnvelope(EventDrawEnd, p))
}

func (r *Router) handleClearCanvas(ctx context.Context, sess Session, _ json.RawMessage) {
	roomID, ok := r.requireRoom(sess, EventClearCanvas)
	if !ok {
		return
	}
	cmd := domain.NewClearCommand(time.Now().UTC())
	if err := r.history.Append(ctx, roomID, &cmd); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"conn_id": sess.ID(),
			"room_id": roomID,
		}).Error("Clear persistence failed, continuing live broadcast")
	}
	r.broadcastRoom(roomID, Envelope{Event: EventClearCanvas})
}

func (r *Router) handleCursorMove(ctx context.Context, sess Session, data json.RawMessage) {
	connID := sess.ID()
	roomID, ok := r.requireRoom(sess, EventCursorMove)
	if !ok {
		return
	}
	var p CursorMovePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.sendError(sess, "invalid cursor-move payload")
		return
	}
	// 纯瞬态：只更新内存状态并转发，永不进日志
	r.cursors.Update(roomID, connID, domain.CursorPosition{X: p.X, Y: p.Y, Color: p.Color})
	p.UserID = connID
	r.broadcastExcept(roomID, connID, newEnvelope(EventCursorMove, p))
}

// --- 辅助方法 ---

// requireRoom 返回发送者当前所在房间。
// 没有房间的事件静默丢弃（客户端重连期间的良性竞争，不是错误）。
func (r *Router) requireRoom(sess Session, event string) (string, bool) {
	roomID, ok := r.registry.CurrentRoom(sess.ID())
	if !ok {
		r.log.WithFields(logrus.Fields{"conn_id": sess.ID(), "event": event}).Debug("Event from connection with no current room, dropping")
		return "", false
	}
	return roomID, true
}

// broadcastRoom 把消息发给房间全部成员。
func (r *Router) broadcastRoom(roomID string, env Envelope) {
	for _, member := range r.registry.Members(roomID) {
		if !member.Send(env) {
			r.log.WithFields(logrus.Fields{"room_id": roomID, "conn_id": member.ID(), "event": env.Event}).Warn("Member send queue full, message dropped")
		}
	}
}

// broadcastExcept 把消息发给房间内除指定连接外的成员。
func (r *Router) broadcastExcept(roomID, connID string, env Envelope) {
	for _, member := range r.registry.MembersExcept(roomID, connID) {
		if !member.Send(env) {
			r.log.WithFields(logrus.Fields{"room_id": roomID, "conn_id": member.ID(), "event": env.Event}).Warn("Member send queue full, message dropped")
		}
	}
}

// sendError 只向出错的连接本身回报错误。
func (r *Router) sendError(sess Session, message string) {
	sess.Send(newEnvelope(EventError, ErrorPayload{Message: message}))
}
