package hub_test // 测试包

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/hub"
)

// fakeSession 是 hub.Session 的内存实现，记录收到的全部出站消息。
type fakeSession struct {
	id string

	mu       sync.Mutex
	received []hub.Envelope
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(env hub.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, env)
	return true
}

// envelopes 返回收到消息的快照副本。
func (f *fakeSession) envelopes() []hub.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]hub.Envelope, len(f.received))
	copy(out, f.received)
	return out
}

// eventsOf 返回指定事件名的消息，保持接收顺序。
func (f *fakeSession) eventsOf(event string) []hub.Envelope {
	var out []hub.Envelope
	for _, env := range f.envelopes() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// reset 清空已收到的消息，便于只断言某个阶段的产出。
func (f *fakeSession) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = nil
}

// --- 测试 Registry ---

func TestRegistry_JoinAndCount(t *testing.T) {
	reg := hub.NewRegistry()
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")

	count, prevRoom, _ := reg.Join(a, "room42")
	assert.Equal(t, 1, count)
	assert.Empty(t, prevRoom, "首次加入不应有旧房间")

	count, _, _ = reg.Join(b, "room42")
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, reg.Count("room42"))

	roomID, ok := reg.CurrentRoom("conn-a")
	require.True(t, ok)
	assert.Equal(t, "room42", roomID)
}

func TestRegistry_JoinSwitchesRoomImplicitly(t *testing.T) {
	// 加入新房间会先隐式离开旧房间，连接同时至多属于一个房间
	reg := hub.NewRegistry()
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")

	reg.Join(a, "alpha01")
	reg.Join(b, "alpha01")

	count, prevRoom, prevCount := reg.Join(a, "bravo02")
	assert.Equal(t, 1, count, "新房间只有 a 一个成员")
	assert.Equal(t, "alpha01", prevRoom)
	assert.Equal(t, 1, prevCount, "旧房间只剩 b")

	roomID, ok := reg.CurrentRoom("conn-a")
	require.True(t, ok)
	assert.Equal(t, "bravo02", roomID)
	assert.Equal(t, 1, reg.Count("alpha01"))
}

func TestRegistry_LeaveWithoutRoom(t *testing.T) {
	reg := hub.NewRegistry()

	_, _, ok := reg.Leave("nobody")
	assert.False(t, ok, "没加入过房间的连接离开应返回 false")
}

func TestRegistry_LeaveRemovesMember(t *testing.T) {
	reg := hub.NewRegistry()
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	reg.Join(a, "room42")
	reg.Join(b, "room42")

	roomID, count, ok := reg.Leave("conn-a")
	require.True(t, ok)
	assert.Equal(t, "room42", roomID)
	assert.Equal(t, 1, count)

	_, ok = reg.CurrentRoom("conn-a")
	assert.False(t, ok)

	// 最后一个成员离开后房间条目被清掉
	reg.Leave("conn-b")
	assert.Equal(t, 0, reg.Count("room42"))
}

func TestRegistry_MembersExcept(t *testing.T) {
	reg := hub.NewRegistry()
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	c := newFakeSession("conn-c")
	reg.Join(a, "room42")
	reg.Join(b, "room42")
	reg.Join(c, "room42")

	members := reg.MembersExcept("room42", "conn-a")
	require.Len(t, members, 2)
	for _, m := range members {
		assert.NotEqual(t, "conn-a", m.ID())
	}

	assert.Len(t, reg.Members("room42"), 3)
	assert.Empty(t, reg.Members("ghost99"), "未知房间返回空成员集")
}
