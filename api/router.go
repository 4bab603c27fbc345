package api

import (
	"github.com/gin-gonic/gin"

	"video2audio/config"
	"video2audio/events"
	"video2audio/task"
)

func SetupRouter(tm *task.Manager, ch *events.Channel, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	h := NewHandler(tm, ch, cfg)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "workers": tm.Workers()})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.POST("/tasks", h.handleCreateTask)
		v1.GET("/tasks", h.handleListTasks)
		v1.GET("/tasks/:taskId", h.handleGetTaskStatus)
		v1.PATCH("/tasks/:taskId/cancel", h.handleCancelTask)

		// Polling and push consumers of the same event stream
		v1.GET("/events", h.handleDrainEvents)
		v1.GET("/events/stream", h.handleStreamEvents)

		v1.GET("/formats", h.handleFormats)
	}
	return r
}
