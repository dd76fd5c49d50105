package hub_test // 测试包

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/hub"
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	f := newRouterFixture(0)
	h := hub.NewHub(f.router)

	a := hub.NewClient(h, nil, "conn-a")
	h.Register(a)
	assert.Equal(t, 1, h.ClientCount())

	h.Unregister(a)
	assert.Equal(t, 0, h.ClientCount())

	// 重复注销是幂等的
	h.Unregister(a)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_BroadcastToDepartedClientFailsSafely(t *testing.T) {
	// Arrange: a 是真实 Client，b 留在房间里观察
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	h := hub.NewHub(f.router)

	a := hub.NewClient(h, nil, "conn-a")
	b := newFakeSession("conn-b")
	h.Register(a)
	f.join(a, "room42")
	f.join(b, "room42")

	// 广播先在锁内拿成员快照、锁外投递；快照里可能仍含刚注销的连接
	members := f.router.Registry().Members("room42")
	require.Len(t, members, 2)

	// Act: 在快照和投递之间完成注销
	h.Unregister(a)

	// Assert: 向已离开成员投递必须安全地返回 false，而不是 panic
	env := hub.Envelope{Event: hub.EventUserCount, Data: json.RawMessage("1")}
	for _, m := range members {
		delivered := m.Send(env)
		if m.ID() == "conn-a" {
			assert.False(t, delivered, "已注销连接的投递应被丢弃")
		} else {
			assert.True(t, delivered)
		}
	}
}

func TestHub_ConcurrentBroadcastAndDisconnect(t *testing.T) {
	// 广播和断开并发进行时进程不能崩溃
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	h := hub.NewHub(f.router)

	a := hub.NewClient(h, nil, "conn-a")
	b := newFakeSession("conn-b")
	h.Register(a)
	f.join(a, "room42")
	f.join(b, "room42")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.dispatch(b, hub.EventDrawMove, `{"x":1,"y":1}`)
		}
	}()
	go func() {
		defer wg.Done()
		h.Unregister(a)
	}()
	wg.Wait()
}
