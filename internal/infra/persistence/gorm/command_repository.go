package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
)

// GormCommandRepository 是 CommandRepository 接口的 GORM 实现
type GormCommandRepository struct {
	db *gorm.DB
}

// NewGormCommandRepository 创建 GormCommandRepository 实例
func NewGormCommandRepository(db *gorm.DB) *GormCommandRepository {
	if db == nil {
		panic("database connection cannot be nil for GormCommandRepository")
	}
	return &GormCommandRepository{db: db}
}

// Append 实现向房间日志追加一条命令。
// 单条 INSERT，自增主键即日志序号，天然满足"单次追加原子"的要求。
func (r *GormCommandRepository) Append(ctx context.Context, cmd *domain.DrawingCommand) error {
	if err := r.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return fmt.Errorf("gorm: append command (room %d, type %s): %w", cmd.RoomID, cmd.Type, err)
	}
	return nil
}

// FindByRoom 实现按日志顺序读取房间全部命令
func (r *GormCommandRepository) FindByRoom(ctx context.Context, roomID uint) ([]domain.DrawingCommand, error) {
	cmds := make([]domain.DrawingCommand, 0)
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id asc"). // 回放顺序 = 追加顺序
		Find(&cmds).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find commands for room %d: %w", roomID, err)
	}
	return cmds, nil
}

// CountByRoom 实现获取房间日志长度
func (r *GormCommandRepository) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.DrawingCommand{}).Where("room_id = ?", roomID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count commands for room %d: %w", roomID, err)
	}
	return count, nil
}
