package worker_test // 测试包

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository/mocks"
	"collaborative-whiteboard/internal/tasks"
	"collaborative-whiteboard/internal/worker"
)

func persistTask(t *testing.T, roomCode string) *asynq.Task {
	t.Helper()
	cmd := domain.DrawingCommand{Timestamp: time.Now().UTC()}
	require.NoError(t, cmd.SetStroke(domain.StrokeData{
		Color:  "#000000",
		Width:  2,
		Points: []domain.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
	}))
	task, err := tasks.NewCommandPersistTask(roomCode, cmd)
	require.NoError(t, err)
	return task
}

func TestCommandPersistHandler_ProcessTask_Success(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockCommandRepo := new(mocks.CommandRepository)
	mockStateRepo := new(mocks.StateRepository)
	handler := worker.NewCommandPersistHandler(mockRoomRepo, mockCommandRepo, mockStateRepo)
	ctx := context.Background()

	room := &domain.Room{ID: 1, Code: "room42"}
	mockRoomRepo.On("GetOrCreate", mock.Anything, "room42").Return(room, nil).Once()
	mockCommandRepo.On("Append", mock.Anything, mock.MatchedBy(func(cmd *domain.DrawingCommand) bool {
		// 补写拿新的日志序号，并归属到解析出的房间
		return cmd.ID == 0 && cmd.RoomID == room.ID && cmd.Type == domain.CommandStroke
	})).Return(nil).Once()
	mockRoomRepo.On("TouchActivity", mock.Anything, uint(1), mock.AnythingOfType("time.Time")).Return(nil).Once()
	mockStateRepo.On("InvalidateReplayCache", mock.Anything, "room42").Return(nil).Once()
	mockCommandRepo.On("CountByRoom", mock.Anything, uint(1)).Return(int64(3), nil).Once()

	// Act
	err := handler.ProcessTask(ctx, persistTask(t, "room42"))

	// Assert
	require.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
	mockCommandRepo.AssertExpectations(t)
	mockStateRepo.AssertExpectations(t)
}

func TestCommandPersistHandler_ProcessTask_AppendFailureIsRetryable(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockCommandRepo := new(mocks.CommandRepository)
	mockStateRepo := new(mocks.StateRepository)
	handler := worker.NewCommandPersistHandler(mockRoomRepo, mockCommandRepo, mockStateRepo)

	room := &domain.Room{ID: 1, Code: "room42"}
	mockRoomRepo.On("GetOrCreate", mock.Anything, "room42").Return(room, nil).Once()
	mockCommandRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.DrawingCommand")).
		Return(errors.New("mysql gone away")).Once()

	// Act
	err := handler.ProcessTask(context.Background(), persistTask(t, "room42"))

	// Assert: 普通失败返回可重试错误，缓存不动
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	mockStateRepo.AssertNotCalled(t, "InvalidateReplayCache", mock.Anything, mock.Anything)
}

func TestCommandPersistHandler_ProcessTask_MalformedPayloadSkipsRetry(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockCommandRepo := new(mocks.CommandRepository)
	mockStateRepo := new(mocks.StateRepository)
	handler := worker.NewCommandPersistHandler(mockRoomRepo, mockCommandRepo, mockStateRepo)
	task := asynq.NewTask(tasks.TypeCommandPersist, []byte("not json"))

	// Act
	err := handler.ProcessTask(context.Background(), task)

	// Assert: 解析不了的任务重试多少次都没用
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	mockRoomRepo.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
}

func TestNewCommandPersistTask_PayloadRoundTrip(t *testing.T) {
	cmd := domain.NewClearCommand(time.Now().UTC())
	task, err := tasks.NewCommandPersistTask("room42", cmd)
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeCommandPersist, task.Type())

	var payload tasks.CommandPersistPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "room42", payload.RoomCode)
	assert.Equal(t, domain.CommandClear, payload.Command.Type)
}
