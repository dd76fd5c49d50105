package hub_test // 测试包

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/hub"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/repository/mocks"
	"collaborative-whiteboard/internal/service"
)

// mockEnqueuer 是 service.CommandEnqueuer 的 mock。
type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueCommandPersist(ctx context.Context, roomCode string, cmd domain.DrawingCommand) error {
	args := m.Called(ctx, roomCode, cmd)
	return args.Error(0)
}

// routerFixture 组装一个挂在 mock 存储上的完整路由器。
type routerFixture struct {
	roomRepo    *mocks.RoomRepository
	commandRepo *mocks.CommandRepository
	stateRepo   *mocks.StateRepository
	enqueuer    *mockEnqueuer
	router      *hub.Router
}

func newRouterFixture(cursorTTL time.Duration) *routerFixture {
	f := &routerFixture{
		roomRepo:    new(mocks.RoomRepository),
		commandRepo: new(mocks.CommandRepository),
		stateRepo:   new(mocks.StateRepository),
		enqueuer:    new(mockEnqueuer),
	}
	roomService := service.NewRoomService(f.roomRepo)
	historyService := service.NewHistoryService(f.roomRepo, f.commandRepo, f.stateRepo, f.enqueuer)
	f.router = hub.NewRouter(roomService, historyService, cursorTTL)
	return f
}

// expectRoom 设置一个存在且日志为空的房间的常规存储预期。
func (f *routerFixture) expectRoom(code string, id uint) {
	room := &domain.Room{ID: id, Code: code}
	f.roomRepo.On("GetOrCreate", mock.Anything, code).Return(room, nil)
	f.roomRepo.On("TouchActivity", mock.Anything, id, mock.AnythingOfType("time.Time")).Return(nil)
	f.roomRepo.On("FindByCode", mock.Anything, code).Return(room, nil)
	f.stateRepo.On("GetReplayCache", mock.Anything, code).Return(nil, repository.ErrNotFound)
	f.stateRepo.On("SetReplayCache", mock.Anything, code, mock.Anything, mock.Anything).Return(nil)
	f.stateRepo.On("InvalidateReplayCache", mock.Anything, code).Return(nil)
	f.commandRepo.On("FindByRoom", mock.Anything, id).Return([]domain.DrawingCommand{}, nil)
}

func (f *routerFixture) dispatch(sess hub.Session, event string, payload string) {
	f.router.Dispatch(context.Background(), sess, hub.Envelope{Event: event, Data: json.RawMessage(payload)})
}

func (f *routerFixture) join(sess hub.Session, code string) {
	f.dispatch(sess, hub.EventJoinRoom, fmt.Sprintf(`{"roomId":%q}`, code))
}

// userCount 解出 user-count 消息携带的成员数。
func userCount(t *testing.T, env hub.Envelope) int {
	t.Helper()
	var n int
	require.NoError(t, json.Unmarshal(env.Data, &n))
	return n
}

// --- 测试加入/离开 ---

func TestRouter_JoinSendsReplayAndUserCount(t *testing.T) {
	// Arrange: 房间日志里已有一条笔画（走缓存命中路径）
	f := newRouterFixture(0)
	room := &domain.Room{ID: 1, Code: "room42"}
	stroke := domain.DrawingCommand{ID: 1, RoomID: 1, Type: domain.CommandStroke, Data: `{"color":"#000","width":2,"points":[{"x":0,"y":0},{"x":1,"y":1}]}`}
	f.roomRepo.On("GetOrCreate", mock.Anything, "room42").Return(room, nil)
	f.roomRepo.On("TouchActivity", mock.Anything, uint(1), mock.AnythingOfType("time.Time")).Return(nil)
	f.stateRepo.On("GetReplayCache", mock.Anything, "room42").Return([]domain.DrawingCommand{stroke}, nil)

	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")

	// Act
	f.join(a, "room42")
	f.join(b, "room42")

	// Assert: 新成员拿到 init-drawing + user-count
	inits := a.eventsOf(hub.EventInitDrawing)
	require.Len(t, inits, 1)
	var replay []hub.CommandPayload
	require.NoError(t, json.Unmarshal(inits[0].Data, &replay))
	require.Len(t, replay, 1)
	assert.Equal(t, domain.CommandStroke, replay[0].Type)

	// a 先后看到成员数 1 和 2，b 只看到 2
	aCounts := a.eventsOf(hub.EventUserCount)
	require.Len(t, aCounts, 2)
	assert.Equal(t, 1, userCount(t, aCounts[0]))
	assert.Equal(t, 2, userCount(t, aCounts[1]))
	bCounts := b.eventsOf(hub.EventUserCount)
	require.Len(t, bCounts, 1)
	assert.Equal(t, 2, userCount(t, bCounts[0]))
}

func TestRouter_JoinInvalidRoomCodeErrorsToSenderOnly(t *testing.T) {
	// Arrange
	f := newRouterFixture(0)
	a := newFakeSession("conn-a")

	// Act
	f.join(a, "ab!")

	// Assert: 只有发送者收到 error，存储层完全没被触达
	require.Len(t, a.eventsOf(hub.EventError), 1)
	assert.Empty(t, a.eventsOf(hub.EventInitDrawing))
	f.roomRepo.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
}

func TestRouter_LeaveRoomNotifiesRemaining(t *testing.T) {
	// Arrange
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "room42")
	f.join(b, "room42")
	a.reset()
	b.reset()

	// Act
	f.dispatch(b, hub.EventLeaveRoom, `{}`)

	// Assert: 剩余成员收到新的 user-count 和 cursor-leave；离开者自己什么都收不到
	aCounts := a.eventsOf(hub.EventUserCount)
	require.Len(t, aCounts, 1)
	assert.Equal(t, 1, userCount(t, aCounts[0]))

	leaves := a.eventsOf(hub.EventCursorLeave)
	require.Len(t, leaves, 1)
	var leave hub.CursorLeavePayload
	require.NoError(t, json.Unmarshal(leaves[0].Data, &leave))
	assert.Equal(t, "conn-b", leave.UserID)

	assert.Empty(t, b.envelopes())
}

func TestRouter_LeaveWithoutRoomIsSilentlyDropped(t *testing.T) {
	f := newRouterFixture(0)
	a := newFakeSession("conn-a")

	f.dispatch(a, hub.EventLeaveRoom, `{}`)

	// 良性竞争：不回 error，也不广播
	assert.Empty(t, a.envelopes())
}

func TestRouter_DisconnectActsLikeLeave(t *testing.T) {
	// Arrange
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "room42")
	f.join(b, "room42")
	a.reset()

	// Act
	f.router.Disconnect(context.Background(), b)

	// Assert
	aCounts := a.eventsOf(hub.EventUserCount)
	require.Len(t, aCounts, 1)
	assert.Equal(t, 1, userCount(t, aCounts[0]))
	require.Len(t, a.eventsOf(hub.EventCursorLeave), 1)

	// 重复断开是幂等的
	a.reset()
	f.router.Disconnect(context.Background(), b)
	assert.Empty(t, a.envelopes())
}

func TestRouter_SwitchRoomNotifiesOldRoom(t *testing.T) {
	// Arrange: a 和 b 在 alpha01，a 切到 bravo02
	f := newRouterFixture(0)
	f.expectRoom("alpha01", 1)
	f.expectRoom("bravo02", 2)
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "alpha01")
	f.join(b, "alpha01")
	a.reset()
	b.reset()

	// Act
	f.join(a, "bravo02")

	// Assert: 旧房间成员收到人数更新和 cursor-leave
	bCounts := b.eventsOf(hub.EventUserCount)
	require.Len(t, bCounts, 1)
	assert.Equal(t, 1, userCount(t, bCounts[0]))
	require.Len(t, b.eventsOf(hub.EventCursorLeave), 1)

	// 新房间里 a 正常完成加入
	require.Len(t, a.eventsOf(hub.EventInitDrawing), 1)
	aCounts := a.eventsOf(hub.EventUserCount)
	require.Len(t, aCounts, 1)
	assert.Equal(t, 1, userCount(t, aCounts[0]))
}

// --- 测试绘图事件 ---

func TestRouter_StrokeLifecycle(t *testing.T) {
	// Arrange: a、b 同房间
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	var persisted *domain.DrawingCommand
	f.commandRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.DrawingCommand")).
		Run(func(args mock.Arguments) {
			persisted = args.Get(1).(*domain.DrawingCommand)
		}).
		Return(nil).Once()

	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "room42")
	f.join(b, "room42")
	a.reset()
	b.reset()

	// Act: a 画一条三个点的笔画
	f.dispatch(a, hub.EventDrawStart, `{"x":0,"y":0,"color":"#ff0000","width":2}`)
	f.dispatch(a, hub.EventDrawMove, `{"x":1,"y":1}`)
	f.dispatch(a, hub.EventDrawMove, `{"x":2,"y":2}`)
	f.dispatch(a, hub.EventDrawEnd, `{"color":"#ff0000","width":2,"points":[{"x":0,"y":0},{"x":1,"y":1},{"x":2,"y":2}]}`)

	// Assert: b 按发送顺序收到全部四条消息，且都带发起者标识
	var drawEvents []hub.Envelope
	for _, env := range b.envelopes() {
		switch env.Event {
		case hub.EventDrawStart, hub.EventDrawMove, hub.EventDrawEnd:
			drawEvents = append(drawEvents, env)
		}
	}
	require.Len(t, drawEvents, 4)
	assert.Equal(t, hub.EventDrawStart, drawEvents[0].Event)
	assert.Equal(t, hub.EventDrawMove, drawEvents[1].Event)
	assert.Equal(t, hub.EventDrawMove, drawEvents[2].Event)
	assert.Equal(t, hub.EventDrawEnd, drawEvents[3].Event)
	for _, env := range drawEvents {
		var withUser struct {
			UserID string `json:"userId"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &withUser))
		assert.Equal(t, "conn-a", withUser.UserID)
	}

	// 发起者只收到 draw-end 回显，不收到自己的 draw-start/move
	assert.Empty(t, a.eventsOf(hub.EventDrawStart))
	assert.Empty(t, a.eventsOf(hub.EventDrawMove))
	require.Len(t, a.eventsOf(hub.EventDrawEnd), 1)

	// 日志里恰好追加了一条完整笔画
	f.commandRepo.AssertExpectations(t)
	require.NotNil(t, persisted)
	assert.Equal(t, domain.CommandStroke, persisted.Type)
	stroke, err := persisted.ParseStroke()
	require.NoError(t, err)
	assert.Len(t, stroke.Points, 3)
	f.stateRepo.AssertCalled(t, "InvalidateReplayCache", mock.Anything, "room42")
}

func TestRouter_SinglePointDrawEndBroadcastsButNotPersisted(t *testing.T) {
	// Arrange
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "room42")
	f.join(b, "room42")
	b.reset()

	// Act: 只有一个点的"笔画"（一次点击）
	f.dispatch(a, hub.EventDrawEnd, `{"points":[{"x":5,"y":5}]}`)

	// Assert: 照常广播但不进日志
	require.Len(t, b.eventsOf(hub.EventDrawEnd), 1)
	f.commandRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestRouter_DrawEventWithoutRoomDropped(t *testing.T) {
	// Arrange: a 没有加入任何房间
	f := newRouterFixture(0)
	a := newFakeSession("conn-a")

	// Act
	f.dispatch(a, hub.EventDrawStart, `{"x":0,"y":0}`)
	f.dispatch(a, hub.EventDrawEnd, `{"points":[{"x":0,"y":0},{"x":1,"y":1}]}`)

	// Assert: 静默丢弃，不回 error，不持久化
	assert.Empty(t, a.envelopes())
	f.commandRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestRouter_ClearCanvasPersistsAndBroadcastsToAll(t *testing.T) {
	// Arrange
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	var persisted *domain.DrawingCommand
	f.commandRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.DrawingCommand")).
		Run(func(args mock.Arguments) {
			persisted = args.Get(1).(*domain.DrawingCommand)
		}).
		Return(nil).Once()

	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "room42")
	f.join(b, "room42")
	a.reset()
	b.reset()

	// Act
	f.dispatch(a, hub.EventClearCanvas, `{}`)

	// Assert: 清空命令进日志，且发送者自己也收到广播
	require.Len(t, a.eventsOf(hub.EventClearCanvas), 1)
	require.Len(t, b.eventsOf(hub.EventClearCanvas), 1)
	f.commandRepo.AssertExpectations(t)
	require.NotNil(t, persisted)
	assert.Equal(t, domain.CommandClear, persisted.Type)
}

func TestRouter_PersistenceFailureStillBroadcasts(t *testing.T) {
	// Arrange: 数据库写入失败
	f := newRouterFixture(0)
	f.expectRoom("room42", 1)
	f.commandRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.DrawingCommand")).
		Return(errors.New("mysql gone away")).Once()
	f.enqueuer.On("EnqueueCommandPersist", mock.Anything, "room42", mock.AnythingOfType("domain.DrawingCommand")).
		Return(nil).Once()

	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "room42")
	f.join(b, "room42")
	a.reset()
	b.reset()

	// Act
	f.dispatch(a, hub.EventDrawEnd, `{"points":[{"x":0,"y":0},{"x":1,"y":1}]}`)

	// Assert: 实时广播不受持久化失败影响，命令进了重试队列
	require.Len(t, a.eventsOf(hub.EventDrawEnd), 1)
	require.Len(t, b.eventsOf(hub.EventDrawEnd), 1)
	f.enqueuer.AssertExpectations(t)
}

// --- 测试光标事件 ---

func TestRouter_CursorMoveForwardedAndExpires(t *testing.T) {
	// Arrange: 很短的光标 TTL
	f := newRouterFixture(50 * time.Millisecond)
	f.expectRoom("room42", 1)
	a := newFakeSession("conn-a")
	b := newFakeSession("conn-b")
	f.join(a, "room42")
	f.join(b, "room42")
	a.reset()
	b.reset()

	// Act
	f.dispatch(a, hub.EventCursorMove, `{"x":10,"y":20,"color":"#00ff00"}`)

	// Assert: 其余成员收到带发起者标识的 cursor-move，发送者自己不收
	moves := b.eventsOf(hub.EventCursorMove)
	require.Len(t, moves, 1)
	var move hub.CursorMovePayload
	require.NoError(t, json.Unmarshal(moves[0].Data, &move))
	assert.Equal(t, "conn-a", move.UserID)
	assert.Empty(t, a.eventsOf(hub.EventCursorMove))

	// 空闲超时后其余成员收到 cursor-leave
	assert.Eventually(t, func() bool {
		return len(b.eventsOf(hub.EventCursorLeave)) == 1
	}, 2*time.Second, 20*time.Millisecond, "光标空闲过期应广播 cursor-leave")
}

func TestRouter_UnknownEventIgnored(t *testing.T) {
	f := newRouterFixture(0)
	a := newFakeSession("conn-a")

	f.dispatch(a, "bogus-event", `{}`)

	assert.Empty(t, a.envelopes())
}
