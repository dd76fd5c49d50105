package repository

import (
	"context"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// StateRepository 定义了与实时状态相关的操作，由 Redis 实现。
type StateRepository interface {
	// === Replay Cache ===

	// GetReplayCache 尝试从缓存获取房间的完整回放序列。
	// 缓存未命中时返回 ErrNotFound。
	GetReplayCache(ctx context.Context, roomCode string) ([]domain.DrawingCommand, error)

	// SetReplayCache 将回放序列写入缓存。ttl 为 0 表示不过期。
	SetReplayCache(ctx context.Context, roomCode string, cmds []domain.DrawingCommand, ttl time.Duration) error

	// InvalidateReplayCache 在日志追加后删除缓存，保证后来者回放到最新前缀。
	InvalidateReplayCache(ctx context.Context, roomCode string) error

	// === Rate Limiting ===

	// CheckRateLimit 递增计数并检查给定 key 在时间窗口内是否超限。
	// 返回 true 表示超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
