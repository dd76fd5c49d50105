package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client *redis.Client
	// Redis key 前缀，方便多应用共用一个实例
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "wb:" // 默认前缀 "wb:" (whiteboard)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) replayCacheKey(roomCode string) string {
	return fmt.Sprintf("%sroom:%s:log", r.keyPrefix, roomCode)
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

// --- StateRepository Interface Implementation ---

// GetReplayCache 尝试从缓存获取房间的完整回放序列。
func (r *RedisStateRepository) GetReplayCache(ctx context.Context, roomCode string) ([]domain.DrawingCommand, error) {
	key := r.replayCacheKey(roomCode)
	payload, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound // 缓存未命中
		}
		return nil, fmt.Errorf("redis: failed to get replay cache for room %s from %s: %w", roomCode, key, err)
	}
	var cmds []domain.DrawingCommand
	if err := json.Unmarshal([]byte(payload), &cmds); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal replay cache for room %s: %w", roomCode, err)
	}
	return cmds, nil
}

// SetReplayCache 将回放序列写入缓存。
func (r *RedisStateRepository) SetReplayCache(ctx context.Context, roomCode string, cmds []domain.DrawingCommand, ttl time.Duration) error {
	key := r.replayCacheKey(roomCode)
	payload, err := json.Marshal(cmds)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal replay cache for room %s: %w", roomCode, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set replay cache for room %s on %s: %w", roomCode, key, err)
	}
	return nil
}

// InvalidateReplayCache 在日志追加后删除缓存。
func (r *RedisStateRepository) InvalidateReplayCache(ctx context.Context, roomCode string) error {
	key := r.replayCacheKey(roomCode)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate replay cache for room %s on %s: %w", roomCode, key, err)
	}
	return nil
}

// CheckRateLimit 递增计数并检查给定 key 在时间窗口内是否超限。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	// 使用 Pipeline 减少网络往返；INCR 本身是原子的
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}
