package hub

import (
	"sync"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// DefaultCursorTTL 光标空闲过期时间：3 秒没有新的 cursor-move 就视为离开。
const DefaultCursorTTL = 3 * time.Second

type cursorEntry struct {
	pos      domain.CursorPosition
	lastSeen time.Time
	timer    *time.Timer
}

// CursorTracker 维护每个房间内各连接的最近指针位置。
// 纯内存、进程内状态，条目随房间作用域存在，过期或离开即删除。
// 这是系统里唯一由时间驱动（而非纯事件驱动）的组件。
type CursorTracker struct {
	mu  sync.Mutex
	ttl time.Duration
	// map[roomID]map[connID]*cursorEntry
	rooms map[string]map[string]*cursorEntry
	// 条目因空闲超时被移除时回调，用于向房间其余成员广播 cursor-leave。
	// 显式 Remove（离开/断开）不触发回调，调用方自己负责通知。
	onExpire func(roomID, connID string)
}

// NewCursorTracker 创建光标状态跟踪器。ttl <= 0 时使用默认 3 秒。
func NewCursorTracker(ttl time.Duration, onExpire func(roomID, connID string)) *CursorTracker {
	if ttl <= 0 {
		ttl = DefaultCursorTTL
	}
	return &CursorTracker{
		ttl:      ttl,
		rooms:    make(map[string]map[string]*cursorEntry),
		onExpire: onExpire,
	}
}

// Update 刷新连接的光标位置并重置过期计时器。
func (t *CursorTracker) Update(roomID, connID string, pos domain.CursorPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[string]*cursorEntry)
		t.rooms[roomID] = room
	}

	if entry, ok := room[connID]; ok {
		entry.pos = pos
		entry.lastSeen = time.Now()
		entry.timer.Reset(t.ttl)
		return
	}

	entry := &cursorEntry{pos: pos, lastSeen: time.Now()}
	entry.timer = time.AfterFunc(t.ttl, func() { t.expire(roomID, connID) })
	room[connID] = entry
}

// Get 返回连接当前记录的光标位置。
func (t *CursorTracker) Get(roomID, connID string) (domain.CursorPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.rooms[roomID][connID]; ok {
		return entry.pos, true
	}
	return domain.CursorPosition{}, false
}

// Remove 立即移除条目并停止计时器，不触发 onExpire。
// 返回条目是否存在过。
func (t *CursorTracker) Remove(roomID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(roomID, connID)
}

func (t *CursorTracker) removeLocked(roomID, connID string) bool {
	room, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	entry, ok := room[connID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(room, connID)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// expire 空闲计时器到期：移除条目并在锁外回调。
// 计时器触发后回调可能在锁上等待，期间条目或已被 Remove 移除（不再回调），
// 或刚被 Update 刷新（Reset 追不回已经在途的触发）——尚未真正空闲的条目
// 重新武装计时器而不是移除。
func (t *CursorTracker) expire(roomID, connID string) {
	t.mu.Lock()
	entry, ok := t.rooms[roomID][connID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if remaining := t.ttl - time.Since(entry.lastSeen); remaining > 0 {
		entry.timer.Reset(remaining)
		t.mu.Unlock()
		return
	}
	t.removeLocked(roomID, connID)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(roomID, connID)
	}
}
