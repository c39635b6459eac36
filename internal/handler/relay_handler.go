package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	helpy "github.com/haqury/helpy"
	"go.uber.org/zap"

	"detection-relay/internal/gateway"
	"detection-relay/internal/types"
)

// RelayService запросы к роутеру релея
type RelayService interface {
	Status(ctx context.Context) (gateway.Status, error)
	Participants(ctx context.Context) ([]types.Participant, error)
	Detections(ctx context.Context) ([]types.DetectionEvent, error)
	ActiveStreams(ctx context.Context) ([]types.VideoFrame, error)
	LatestFrame(ctx context.Context, userID string) (types.VideoFrame, bool, error)
	FrameStats(ctx context.Context) ([]types.FrameStats, map[string]interface{}, error)
	NotificationsEnabled(ctx context.Context) (bool, error)
	SetNotifications(ctx context.Context, enabled bool, source string) error
}

// RelayHandler обрабатывает HTTP запросы к состоянию релея
type RelayHandler struct {
	logger  *zap.Logger
	service RelayService
}

// NewRelayHandler создает новый хендлер
func NewRelayHandler(logger *zap.Logger, service RelayService) *RelayHandler {
	return &RelayHandler{
		logger:  logger,
		service: service,
	}
}

// RegisterRoutes регистрирует маршруты
func (h *RelayHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)
	router.GET("/users", h.GetUsers)
	router.GET("/detections", h.GetDetections)

	video := router.Group("/video")
	{
		video.GET("/active", h.GetActiveStreams)
		video.GET("/frame/:user_id", h.GetLatestFrame)
		video.GET("/stats", h.GetAllStats)
	}

	router.GET("/notifications", h.GetNotifications)
	router.POST("/notifications", h.SetNotifications)
}

// GetStatus сводка состояния
func (h *RelayHandler) GetStatus(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "running",
		"relay":     status,
		"timestamp": time.Now().Unix(),
	})
}

// GetUsers список участников
func (h *RelayHandler) GetUsers(c *gin.Context) {
	users, err := h.service.Participants(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"count":     len(users),
		"users":     users,
		"timestamp": time.Now().Unix(),
	})
}

// GetDetections журнал детекций, новые первыми
func (h *RelayHandler) GetDetections(c *gin.Context) {
	detections, err := h.service.Detections(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"count":      len(detections),
		"detections": detections,
		"timestamp":  time.Now().Unix(),
	})
}

// GetActiveStreams возвращает активные стримы без данных кадров
func (h *RelayHandler) GetActiveStreams(c *gin.Context) {
	frames, err := h.service.ActiveStreams(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	streams := make([]gin.H, 0, len(frames))
	for _, f := range frames {
		streams = append(streams, gin.H{
			"user_id":     f.UserID,
			"user_name":   f.UserName,
			"timestamp":   f.Timestamp,
			"last_update": f.LastUpdate,
			"frame_size":  len(f.FrameData),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"count":     len(streams),
		"streams":   streams,
		"timestamp": time.Now().Unix(),
	})
}

// GetLatestFrame последний кадр участника
func (h *RelayHandler) GetLatestFrame(c *gin.Context) {
	userID := c.Param("user_id")

	frame, ok, err := h.service.LatestFrame(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "no active stream for user " + userID,
		})
		return
	}
	c.JSON(http.StatusOK, frame)
}

// GetAllStats возвращает всю статистику кадров
func (h *RelayHandler) GetAllStats(c *gin.Context) {
	stats, total, err := h.service.FrameStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"total":     total,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}

// GetNotifications состояние уведомлений
func (h *RelayHandler) GetNotifications(c *gin.Context) {
	enabled, err := h.service.NotificationsEnabled(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetNotifications переключает уведомления, состояние рассылается всем соединениям
func (h *RelayHandler) SetNotifications(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &helpy.ApiResponse{
			Status:  "error",
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.service.SetNotifications(c.Request.Context(), *req.Enabled, "http:"+c.ClientIP()); err != nil {
		h.fail(c, err)
		return
	}

	msg := "Discord notifications disabled"
	if *req.Enabled {
		msg = "Discord notifications enabled"
	}
	c.JSON(http.StatusOK, &helpy.ApiResponse{
		Status:  "ok",
		Message: msg,
	})
}

func (h *RelayHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, gateway.ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	h.logger.Error("Relay query failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(status, gin.H{
		"error":   http.StatusText(status),
		"message": err.Error(),
	})
}
