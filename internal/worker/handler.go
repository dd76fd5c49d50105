package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/tasks"
)

// CommandPersistHandler 处理绘图命令的持久化重试任务。
// 同步追加失败只影响持久性，这里把漏掉的命令补回日志。
type CommandPersistHandler struct {
	roomRepo    repository.RoomRepository
	commandRepo repository.CommandRepository
	stateRepo   repository.StateRepository
}

// NewCommandPersistHandler 创建 Handler 实例
func NewCommandPersistHandler(
	roomRepo repository.RoomRepository,
	commandRepo repository.CommandRepository,
	stateRepo repository.StateRepository,
) *CommandPersistHandler {
	if roomRepo == nil || commandRepo == nil || stateRepo == nil {
		panic("all repositories must be non-nil for CommandPersistHandler")
	}
	return &CommandPersistHandler{
		roomRepo:    roomRepo,
		commandRepo: commandRepo,
		stateRepo:   stateRepo,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *CommandPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"retry":     retryCount,
		"max_retry": maxRetry,
	})

	var payload tasks.CommandPersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal command persist payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{
		"room_code":    payload.RoomCode,
		"command_type": payload.Command.Type,
	})

	room, err := h.roomRepo.GetOrCreate(ctx, payload.RoomCode)
	if err != nil {
		logCtx.WithError(err).Error("Failed to resolve room for command persist retry")
		return fmt.Errorf("resolve room %s: %w", payload.RoomCode, err)
	}

	cmd := payload.Command
	cmd.ID = 0 // 重试补写获得新的日志序号
	cmd.RoomID = room.ID
	if err := h.commandRepo.Append(ctx, &cmd); err != nil {
		logCtx.WithError(err).Error("Failed to append command on retry")
		return fmt.Errorf("append command for room %s: %w", payload.RoomCode, err)
	}

	if err := h.roomRepo.TouchActivity(ctx, room.ID, cmd.Timestamp); err != nil {
		logCtx.WithError(err).Warn("Failed to touch room activity on retry persist")
	}
	// 补写改变了日志，后来者必须拿到新前缀
	if err := h.stateRepo.InvalidateReplayCache(ctx, payload.RoomCode); err != nil {
		logCtx.WithError(err).Warn("Failed to invalidate replay cache on retry persist")
	}

	if size, err := h.commandRepo.CountByRoom(ctx, room.ID); err == nil {
		logCtx = logCtx.WithField("log_size", size)
	}
	logCtx.Info("Command persistence retry succeeded")
	return nil
}
