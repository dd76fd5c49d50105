// Package mocks 提供 repository 接口的 testify mock 实现，仅用于测试。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"collaborative-whiteboard/internal/domain"
)

// RoomRepository 是 repository.RoomRepository 的 mock。
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Room), args.Error(1)
}

func (m *RoomRepository) GetOrCreate(ctx context.Context, code string) (*domain.Room, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Room), args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) TouchActivity(ctx context.Context, roomID uint, ts time.Time) error {
	args := m.Called(ctx, roomID, ts)
	return args.Error(0)
}

func (m *RoomRepository) IsCodeTaken(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

// CommandRepository 是 repository.CommandRepository 的 mock。
type CommandRepository struct {
	mock.Mock
}

func (m *CommandRepository) Append(ctx context.Context, cmd *domain.DrawingCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *CommandRepository) FindByRoom(ctx context.Context, roomID uint) ([]domain.DrawingCommand, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DrawingCommand), args.Error(1)
}

func (m *CommandRepository) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}

// StateRepository 是 repository.StateRepository 的 mock。
type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) GetReplayCache(ctx context.Context, roomCode string) ([]domain.DrawingCommand, error) {
	args := m.Called(ctx, roomCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DrawingCommand), args.Error(1)
}

func (m *StateRepository) SetReplayCache(ctx context.Context, roomCode string, cmds []domain.DrawingCommand, ttl time.Duration) error {
	args := m.Called(ctx, roomCode, cmds, ttl)
	return args.Error(0)
}

func (m *StateRepository) InvalidateReplayCache(ctx context.Context, roomCode string) error {
	args := m.Called(ctx, roomCode)
	return args.Error(0)
}

func (m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}
