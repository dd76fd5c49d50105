package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByCode 实现根据房间码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// GetOrCreate 实现按房间码懒创建房间。
// 并发创建同一房间码时，落败方会命中唯一约束 (MySQL 1062)，此时重读已有记录，
// 保证调用方始终拿到同一个房间。
func (r *GormRoomRepository) GetOrCreate(ctx context.Context, code string) (*domain.Room, error) {
	room, err := r.FindByCode(ctx, code)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrRoomNotFound) {
		return nil, err
	}

	newRoom := &domain.Room{Code: code, LastActivity: time.Now().UTC()}
	if err := r.Save(ctx, newRoom); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 并发创建竞争：对方已插入，重读即可
			return r.FindByCode(ctx, code)
		}
		return nil, err
	}
	return newRoom, nil
}

// Save 实现保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Save(room).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry // 映射为定义的仓库错误
		}
		return fmt.Errorf("gorm: save room (id: %d, code: %s): %w", room.ID, room.Code, err)
	}
	return nil
}

// TouchActivity 实现更新房间最后活跃时间
func (r *GormRoomRepository) TouchActivity(ctx context.Context, roomID uint, ts time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("id = ?", roomID).
		Update("last_activity", ts).Error
	if err != nil {
		return fmt.Errorf("gorm: touch activity for room %d: %w", roomID, err)
	}
	return nil
}

// IsCodeTaken 实现检查房间码是否已被占用
func (r *GormRoomRepository) IsCodeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	// 使用 Count() 优化查询，只查询数量
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}
