package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

const (
	// 持久化调用的超时上限：实时体验优先于持久性，超时即失败返回，
	// 广播由调用方照常进行。
	persistTimeout = 2 * time.Second

	// 回放缓存的生存时间。缓存在每次追加时失效，TTL 只是兜底。
	replayCacheTTL = 5 * time.Minute
)

// CommandEnqueuer 将持久化失败的命令投递到后台任务队列重试。
// 由 tasks 包基于 asynq 实现。
type CommandEnqueuer interface {
	EnqueueCommandPersist(ctx context.Context, roomCode string, cmd domain.DrawingCommand) error
}

// HistoryService 负责绘图日志的追加与回放。
// 日志是每个房间收敛到同一画布状态的唯一事实来源。
type HistoryService struct {
	roomRepo    repository.RoomRepository
	commandRepo repository.CommandRepository
	stateRepo   repository.StateRepository
	enqueuer    CommandEnqueuer
}

// NewHistoryService 创建 HistoryService 实例。
func NewHistoryService(
	roomRepo repository.RoomRepository,
	commandRepo repository.CommandRepository,
	stateRepo repository.StateRepository,
	enqueuer CommandEnqueuer,
) *HistoryService {
	if roomRepo == nil || commandRepo == nil || stateRepo == nil {
		panic("all repositories must be non-nil for HistoryService")
	}
	return &HistoryService{
		roomRepo:    roomRepo,
		commandRepo: commandRepo,
		stateRepo:   stateRepo,
		enqueuer:    enqueuer,
	}
}

// Append 向房间日志追加一条命令。
// 持久化失败只降低持久性，不阻断协作：错误返回给调用方记录，
// 同时把命令投递到后台队列重试，调用方照常广播。
func (s *HistoryService) Append(ctx context.Context, roomCode string, cmd *domain.DrawingCommand) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": roomCode, "command_type": cmd.Type})

	// 进不了日志的命令在这里挡下，永远不进重试队列（重试也不会变合法）
	if cmd.Type == domain.CommandStroke {
		stroke, err := cmd.ParseStroke()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		if err := stroke.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}

	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	err := s.appendOnce(pctx, roomCode, cmd)
	if err != nil {
		logCtx.WithError(err).Error("Failed to persist drawing command, scheduling retry")
		if s.enqueuer != nil {
			// 用后台 context 投递：原请求的超时不应影响重试任务入队
			if enqErr := s.enqueuer.EnqueueCommandPersist(context.Background(), roomCode, *cmd); enqErr != nil {
				logCtx.WithError(enqErr).Error("Failed to enqueue command persistence retry")
			}
		}
		return fmt.Errorf("append command to room %s: %w", roomCode, err)
	}

	// 追加成功后让回放缓存失效，后来者拿到包含本条的最新前缀
	if err := s.stateRepo.InvalidateReplayCache(ctx, roomCode); err != nil {
		logCtx.WithError(err).Warn("Failed to invalidate replay cache after append")
	}
	return nil
}

// appendOnce 执行一次完整的追加：定位房间、写命令、更新活跃时间。
func (s *HistoryService) appendOnce(ctx context.Context, roomCode string, cmd *domain.DrawingCommand) error {
	room, err := s.roomRepo.GetOrCreate(ctx, roomCode)
	if err != nil {
		return err
	}
	cmd.RoomID = room.ID
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}
	if err := s.commandRepo.Append(ctx, cmd); err != nil {
		return err
	}
	// 每次变更事件都更新 LastActivity；失败不影响日志本身
	if err := s.roomRepo.TouchActivity(ctx, room.ID, cmd.Timestamp); err != nil {
		logrus.WithError(err).WithField("room_code", roomCode).Warn("Failed to touch room activity after append")
	}
	return nil
}

// Replay 返回房间日志的完整有序序列。
// 未知房间返回空序列而不是错误（房间存在性是懒式的）。
func (s *HistoryService) Replay(ctx context.Context, roomCode string) ([]domain.DrawingCommand, error) {
	logCtx := logrus.WithField("room_code", roomCode)

	// 1. 先查回放缓存
	cached, err := s.stateRepo.GetReplayCache(ctx, roomCode)
	if err == nil {
		logCtx.WithField("command_count", len(cached)).Debug("Replay served from cache")
		return cached, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		// 缓存故障降级为直接读库
		logCtx.WithError(err).Warn("Replay cache lookup failed, falling back to database")
	}

	// 2. 缓存未命中，读库
	room, err := s.roomRepo.FindByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return []domain.DrawingCommand{}, nil // 没有历史的房间：空序列
		}
		logCtx.WithError(err).Error("Failed to find room for replay")
		return nil, ErrInternalServer
	}

	cmds, err := s.commandRepo.FindByRoom(ctx, room.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load drawing log for replay")
		return nil, ErrInternalServer
	}

	// 3. 回填缓存；失败只记录
	if err := s.stateRepo.SetReplayCache(ctx, roomCode, cmds, replayCacheTTL); err != nil {
		logCtx.WithError(err).Warn("Failed to populate replay cache")
	}

	logCtx.WithField("command_count", len(cmds)).Debug("Replay served from database")
	return cmds, nil
}
