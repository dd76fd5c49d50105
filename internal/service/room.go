package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// 房间码规则：6-8 位字母数字，区分大小写。
var roomCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]{6,8}$`)

const (
	codeAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength      = 6
	codeMaxAttempts = 10
)

// IsValidRoomCode 校验房间码格式。
func IsValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// RoomService 负责房间管理相关的业务逻辑。
type RoomService struct {
	roomRepo repository.RoomRepository
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo}
}

// JoinOrCreate 按房间码加入房间，房间不存在时懒创建。
// 多次用同一房间码加入，拿到的是同一个房间。
func (s *RoomService) JoinOrCreate(ctx context.Context, code string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_code", code)

	if !IsValidRoomCode(code) {
		logCtx.Warn("Rejected join with malformed room code")
		return nil, ErrInvalidRoomCode
	}

	room, err := s.roomRepo.GetOrCreate(ctx, code)
	if err != nil {
		logCtx.WithError(err).Error("Failed to get or create room")
		return nil, ErrInternalServer
	}

	// 加入即视为活跃
	if err := s.roomRepo.TouchActivity(ctx, room.ID, time.Now().UTC()); err != nil {
		// 活跃时间更新失败不阻断加入，仅记录
		logCtx.WithError(err).Warn("Failed to touch room activity on join")
	}
	return room, nil
}

// GetRoom 按房间码查找已存在的房间。
func (s *RoomService) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_code", code)

	if !IsValidRoomCode(code) {
		return nil, ErrInvalidRoomCode
	}
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to find room by code")
		return nil, ErrInternalServer
	}
	return room, nil
}

// CreateRoom 创建一个房间码由服务端生成的新房间。
func (s *RoomService) CreateRoom(ctx context.Context) (*domain.Room, error) {
	code, err := s.generateUniqueCode(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to generate unique room code")
		return nil, ErrInternalServer
	}
	logCtx := logrus.WithField("room_code", code)

	room := &domain.Room{Code: code, LastActivity: time.Now().UTC()}
	if err := s.roomRepo.Save(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 唯一性检查和插入之间被抢占，理论上极少发生
			logCtx.WithError(err).Error("Room code conflict on save despite uniqueness check")
			return nil, ErrInternalServer
		}
		logCtx.WithError(err).Error("Failed to save new room")
		return nil, ErrInternalServer
	}

	logCtx.WithField("room_id", room.ID).Info("Room created")
	return room, nil
}

// generateUniqueCode 生成未被占用的房间码
func (s *RoomService) generateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		code, err := gonanoid.Generate(codeAlphabet, codeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}

		taken, err := s.roomRepo.IsCodeTaken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !taken {
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", codeMaxAttempts)
}
