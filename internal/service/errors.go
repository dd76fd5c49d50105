package service

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidRoomCode = errors.New("invalid room code: must be 6-8 alphanumeric characters")
	ErrInvalidCommand  = errors.New("invalid drawing command")
	ErrInternalServer  = errors.New("internal server error")
)
