package repository

import (
	"context"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// RoomRepository 定义了房间记录的存储和检索操作。
type RoomRepository interface {
	// FindByCode 根据房间码查找房间。
	// 房间不存在时返回 ErrRoomNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// GetOrCreate 按房间码获取房间，不存在则创建空房间。
	// 幂等：并发创建同一房间码只会产生一条记录，落败方重读已有记录。
	GetOrCreate(ctx context.Context, code string) (*domain.Room, error)

	// Save 保存房间信息（创建或更新）。
	// 唯一约束冲突时返回 ErrDuplicateEntry。
	Save(ctx context.Context, room *domain.Room) error

	// TouchActivity 更新房间的 LastActivity 时间戳。
	TouchActivity(ctx context.Context, roomID uint, ts time.Time) error

	// IsCodeTaken 检查房间码是否已被占用。
	IsCodeTaken(ctx context.Context, code string) (bool, error)
}
