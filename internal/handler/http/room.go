package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/hub"
	"collaborative-whiteboard/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService    *service.RoomService
	historyService *service.HistoryService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, historyService *service.HistoryService) *RoomHandler {
	if roomService == nil || historyService == nil {
		panic("services cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService, historyService: historyService}
}

// JoinRoomRequest 加入房间请求体
type JoinRoomRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

// JoinRoomResponse 加入房间成功的响应体
type JoinRoomResponse struct {
	RoomID string `json:"roomId"`
}

// CreateRoomResponse 创建房间成功的响应体
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// RoomResponse 房间记录的响应体
type RoomResponse struct {
	RoomID       string               `json:"roomId"`
	LastActivity time.Time            `json:"lastActivity"`
	DrawingData  []hub.CommandPayload `json:"drawingData"`
}

// JoinRoom 处理 POST /api/rooms/join：按房间码加入，房间不存在时创建。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room code. Must be 6-8 alphanumeric characters."})
		return
	}
	logCtx := logrus.WithField("room_code", req.RoomID)

	room, err := h.roomService.JoinOrCreate(c.Request.Context(), req.RoomID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRoomCode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room code. Must be 6-8 alphanumeric characters."})
			return
		}
		logCtx.WithError(err).Error("Handler.JoinRoom: Failed to join room via service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
		return
	}

	logCtx.Info("Handler.JoinRoom: Room joined")
	c.JSON(http.StatusOK, JoinRoomResponse{RoomID: room.Code})
}

// CreateRoom 处理 POST /api/rooms：创建房间码由服务端生成的新房间。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	room, err := h.roomService.CreateRoom(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Handler.CreateRoom: Failed to create room via service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room."})
		return
	}
	c.JSON(http.StatusOK, CreateRoomResponse{RoomID: room.Code})
}

// GetRoom 处理 GET /api/rooms/:roomId：返回房间记录及其绘图日志。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := c.Param("roomId")
	logCtx := logrus.WithField("room_code", code)

	room, err := h.roomService.GetRoom(c.Request.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRoomCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room code."})
		case errors.Is(err, service.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found."})
		default:
			logCtx.WithError(err).Error("Handler.GetRoom: Failed to load room")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
		}
		return
	}

	cmds, err := h.historyService.Replay(c.Request.Context(), room.Code)
	if err != nil {
		logCtx.WithError(err).Error("Handler.GetRoom: Failed to replay drawing log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
		return
	}

	c.JSON(http.StatusOK, RoomResponse{
		RoomID:       room.Code,
		LastActivity: room.LastActivity,
		DrawingData:  hub.ReplayPayloads(cmds),
	})
}
