package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// CommandRepository 定义了绘图日志的存储和回放查询。
// 日志是按房间追加的；单次 Append 是原子的，但不提供跨追加的事务，
// 并发 clear 与 stroke 的先后以日志顺序为准。
type CommandRepository interface {
	// Append 向房间日志追加一条命令。写入成功后 cmd.ID 即日志序号。
	Append(ctx context.Context, cmd *domain.DrawingCommand) error

	// FindByRoom 返回房间的全部命令，按日志顺序（ID 升序）。
	// 没有历史的房间返回空切片，不报错。
	FindByRoom(ctx context.Context, roomID uint) ([]domain.DrawingCommand, error)

	// CountByRoom 返回房间日志的长度。
	CountByRoom(ctx context.Context, roomID uint) (int64, error)
}
