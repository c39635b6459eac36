package app

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"detection-relay/internal/config"
	"detection-relay/internal/gateway"
	"detection-relay/internal/handler"
)

// NewRouter создает новый роутер с настройкой маршрутов
func NewRouter(
	cfg *config.Config,
	gw *gateway.Gateway,
	relayHandler *handler.RelayHandler,
	logger *zap.Logger,
) http.Handler {

	// Режим Gin
	if gin.Mode() == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    io.Discard,
		SkipPaths: []string{"/health"},
		Formatter: func(param gin.LogFormatterParams) string {
			logger.Info("HTTP Request",
				zap.String("method", param.Method),
				zap.String("path", param.Path),
				zap.Int("status", param.StatusCode),
				zap.Duration("latency", param.Latency),
				zap.String("client_ip", param.ClientIP),
			)
			return ""
		},
	}))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     ServiceName,
			"version":     Version,
			"connections": gw.ConnectionCount(),
			"time":        time.Now().Unix(),
		})
	})

	// WebSocket
	router.GET("/ws", func(c *gin.Context) {
		gw.ServeWS(c.Writer, c.Request)
	})

	// API v1
	apiV1 := router.Group("/api/v1")
	relayHandler.RegisterRoutes(apiV1)

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
			"suggestions": []string{
				"Check /health for service status",
				"Check /api/v1/status for relay status",
			},
		})
	})

	return corsHandler(cfg).Handler(router)
}

// corsHandler настраивает CORS
func corsHandler(cfg *config.Config) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Origin", "X-Requested-With"},
		MaxAge:         86400,
	})
}
