package hub

import "sync"

// Session 是路由层看到的连接抽象：一个稳定标识加一个非阻塞发送入口。
// 真实实现是 *Client，测试里用假实现即可在没有 WebSocket 的情况下跑通路由。
type Session interface {
	// ID 返回连接的唯一标识，生命周期内不变。
	ID() string
	// Send 非阻塞地投递一条出站消息；发送队列满时返回 false 并丢弃。
	Send(env Envelope) bool
}

// Registry 维护房间成员关系：哪个连接当前在哪个房间。
// 每个连接同时至多属于一个房间；加入新房间会先隐式离开旧房间，
// 且两步在同一把锁内完成，观察者不会看到双重成员的中间态。
type Registry struct {
	mu sync.RWMutex
	// map[roomID]map[connID]Session
	rooms map[string]map[string]Session
	// map[connID]roomID，连接当前所在房间
	current map[string]string
}

// NewRegistry 创建空的成员注册表。
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[string]Session),
		current: make(map[string]string),
	}
}

// Join 把连接加入房间，必要时先离开旧房间。
// 返回新房间的成员数，以及被隐式离开的旧房间及其剩余成员数（没有旧房间时 prevRoom 为空）。
func (r *Registry) Join(sess Session, roomID string) (count int, prevRoom string, prevCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := sess.ID()
	if old, ok := r.current[connID]; ok && old != roomID {
		prevRoom = old
		prevCount = r.removeLocked(connID, old)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Session)
		r.rooms[roomID] = members
	}
	members[connID] = sess
	r.current[connID] = roomID
	return len(members), prevRoom, prevCount
}

// Leave 把连接从其当前房间移除。
// 返回离开的房间、剩余成员数，以及连接此前是否在某个房间内。
func (r *Registry) Leave(connID string) (roomID string, count int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok = r.current[connID]
	if !ok {
		return "", 0, false
	}
	count = r.removeLocked(connID, roomID)
	return roomID, count, true
}

// removeLocked 在持锁状态下移除成员并返回房间剩余人数。房间空了就删掉条目。
func (r *Registry) removeLocked(connID, roomID string) int {
	members, ok := r.rooms[roomID]
	if ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
			members = nil
		}
	}
	delete(r.current, connID)
	return len(members)
}

// CurrentRoom 返回连接当前所在的房间。
func (r *Registry) CurrentRoom(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.current[connID]
	return roomID, ok
}

// Count 返回房间当前的成员数（按在线成员实时计算）。
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Members 返回房间全部成员的快照副本，调用方可在锁外安全遍历。
func (r *Registry) Members(roomID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	out := make([]Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// MembersExcept 返回房间内除指定连接外的成员快照。
func (r *Registry) MembersExcept(roomID, connID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	out := make([]Session, 0, len(members))
	for id, s := range members {
		if id != connID {
			out = append(out, s)
		}
	}
	return out
}
