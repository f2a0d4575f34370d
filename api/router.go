package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/api/handlers"
	"github.com/yourusername/manga-dl-go/api/middleware"
	"github.com/yourusername/manga-dl-go/internal/app"
	"github.com/yourusername/manga-dl-go/internal/domain"
	"github.com/yourusername/manga-dl-go/pkg/logger"
)

// Dependencies groups the services the router exposes
type Dependencies struct {
	Tracker     *app.Tracker
	Enqueue     *app.EnqueueService
	History     domain.JobHistoryRepository // optional
	Hub         *handlers.SnapshotHub
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger // optional
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}

// SetupRouter sets up the proxy shim and the tracker endpoints
func SetupRouter(cfg *domain.Config, deps Dependencies) (*gin.Engine, error) {
	gin.SetMode(ginMode(cfg.Server.Mode))

	proxyHandler, err := handlers.NewProxyHandler(cfg.Backend.BaseURL, deps.Logger)
	if err != nil {
		return nil, err
	}

	logsDir := cfg.Logging.LogsDir
	if deps.MultiLogger != nil {
		logsDir = deps.MultiLogger.GetLogsDir()
	}

	hub := deps.Hub
	if hub == nil {
		hub = handlers.NewSnapshotHub()
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(deps.Logger, deps.MultiLogger))
	router.Use(middleware.Recovery(deps.Logger, deps.MultiLogger))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Tracker, proxyHandler.Target())
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Everything under /api goes to the backend with the prefix removed
	router.Any(handlers.ProxyPrefix+"/*path", proxyHandler.Forward)

	trackerHandler := handlers.NewTrackerHandler(deps.Tracker, deps.Enqueue, deps.History, deps.Logger)
	streamHandler := handlers.NewStreamHandler(deps.Tracker, hub, logsDir, deps.Logger)
	tracker := router.Group("/tracker")
	{
		tracker.GET("/jobs", trackerHandler.ListJobs)
		tracker.POST("/jobs", trackerHandler.EnqueueJob)
		tracker.GET("/jobs/:id", trackerHandler.GetJob)
		tracker.DELETE("/jobs/:id", trackerHandler.CancelJob)
		tracker.POST("/jobs/:id/retrieve", trackerHandler.RetrieveJob)
		tracker.GET("/history", trackerHandler.ListHistory)
		tracker.GET("/history/:id", trackerHandler.GetHistoryRecord)
		tracker.GET("/stats", trackerHandler.GetStats)
		tracker.GET("/ws", streamHandler.Jobs)
	}

	logHandler := handlers.NewLogHandler(logsDir)
	logs := router.Group("/logs")
	{
		logs.GET("/categories", logHandler.GetCategories)
		logs.GET("/:category", logHandler.GetLogs)
		logs.GET("/:category/search", logHandler.SearchLogs)
		logs.GET("/:category/stream", streamHandler.Logs)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router, nil
}
