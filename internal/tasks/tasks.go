package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"collaborative-whiteboard/internal/domain"
)

// 任务类型常量
const (
	// TypeCommandPersist 绘图命令持久化重试：同步追加失败/超时后走后台补写
	TypeCommandPersist = "command:persist"
)

// CommandPersistPayload 持久化重试任务的数据结构。
// 带上房间码而不是房间 ID：重试时房间可能尚未创建成功，由处理器重新 GetOrCreate。
type CommandPersistPayload struct {
	RoomCode string                `json:"room_code"`
	Command  domain.DrawingCommand `json:"command"`
}

// NewCommandPersistTask 创建一个命令持久化重试任务
func NewCommandPersistTask(roomCode string, cmd domain.DrawingCommand) (*asynq.Task, error) {
	payload, err := json.Marshal(CommandPersistPayload{RoomCode: roomCode, Command: cmd})
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal command persist payload: %w", err)
	}
	return asynq.NewTask(TypeCommandPersist, payload), nil
}

// Client 封装 asynq 客户端，实现 service.CommandEnqueuer。
type Client struct {
	inner *asynq.Client
}

// NewClient 创建任务投递客户端
func NewClient(inner *asynq.Client) *Client {
	if inner == nil {
		panic("asynq client cannot be nil for tasks.Client")
	}
	return &Client{inner: inner}
}

// EnqueueCommandPersist 投递一个命令持久化重试任务。
func (c *Client) EnqueueCommandPersist(ctx context.Context, roomCode string, cmd domain.DrawingCommand) error {
	task, err := NewCommandPersistTask(roomCode, cmd)
	if err != nil {
		return err
	}
	_, err = c.inner.EnqueueContext(ctx, task,
		asynq.Queue("critical"), // 日志完整性优先级高于其他后台工作
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("tasks: enqueue command persist for room %s: %w", roomCode, err)
	}
	return nil
}
