package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"video2audio/config"
	"video2audio/events"
	"video2audio/ffmpeg"
	"video2audio/task"
)

const keepAliveInterval = 15 * time.Second

type Handler struct {
	taskManager *task.Manager
	events      *events.Channel
	cfg         *config.Config
}

func NewHandler(tm *task.Manager, ch *events.Channel, cfg *config.Config) *Handler {
	return &Handler{
		taskManager: tm,
		events:      ch,
		cfg:         cfg,
	}
}

// TaskRequest accepts input files either as a list or as one shell-quoted
// string, the way a file manager pastes a multi-selection. It binds from JSON
// or from a form post.
type TaskRequest struct {
	Paths     []string `json:"paths" form:"paths"`
	PathList  string   `json:"pathList" form:"pathList"`
	Format    string   `json:"format" form:"format"`
	OutputDir string   `json:"outputDir" form:"outputDir"`
}

// handleCreateTask queues one task per valid input path.
func (h *Handler) handleCreateTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Format != "" && config.NormalizeFormat(req.Format) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%v: %q", task.ErrInvalidFormat, req.Format)})
		return
	}

	paths := append([]string(nil), req.Paths...)
	if req.PathList != "" {
		split, err := ffmpeg.SplitCommand(req.PathList)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid path list: %v", err)})
			return
		}
		paths = append(paths, split...)
	}
	if len(paths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one input path is required"})
		return
	}

	created := h.taskManager.Submit(paths, req.Format, req.OutputDir)
	ids := make([]string, 0, len(created))
	for _, t := range created {
		ids = append(ids, t.ID)
	}
	c.JSON(http.StatusAccepted, gin.H{"taskIds": ids, "skipped": len(paths) - len(created)})
}

// handleListTasks lists all tasks.
func (h *Handler) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.taskManager.List())
}

// handleGetTaskStatus retrieves the status of a single task.
func (h *Handler) handleGetTaskStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	t, found := h.taskManager.Get(taskID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

// handleCancelTask cancels a task.
func (h *Handler) handleCancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	err := h.taskManager.Cancel(taskID)

	var stateErr *task.StateError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Task cancellation requested"})
	case errors.Is(err, task.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// handleDrainEvents returns up to ?max= pending events without waiting.
// max=0 drains everything.
func (h *Handler) handleDrainEvents(c *gin.Context) {
	if !h.events.Polling() {
		c.JSON(http.StatusNotFound, gin.H{"error": "event polling is disabled; use /api/v1/events/stream"})
		return
	}
	limit, err := cast.ToIntE(c.DefaultQuery("max", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max must be a non-negative integer"})
		return
	}
	evs := h.events.Drain(limit)
	if evs == nil {
		evs = []events.Event{}
	}
	c.JSON(http.StatusOK, evs)
}

// handleStreamEvents pushes every event published after the request arrived
// as a server-sent event until the client goes away.
func (h *Handler) handleStreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	out := make(chan events.Event)
	done := make(chan struct{})
	unsubscribe := h.events.Subscribe(func(e events.Event) {
		select {
		case out <- e:
		case <-done:
		}
	})
	defer func() {
		close(done)
		unsubscribe()
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Event stream from %s closed.", c.ClientIP())
			return
		case e := <-out:
			c.SSEvent(string(e.Kind), e)
			c.Writer.Flush()
		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			c.Writer.Flush()
		}
	}
}

// handleFormats reports the selectable output formats and the defaults used
// when a request leaves them out.
func (h *Handler) handleFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":       task.SupportedFormats(),
		"defaultFormat": h.cfg.DefaultFormat,
		"outputDir":     h.cfg.OutputDir,
	})
}
