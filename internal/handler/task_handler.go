package handler

import (
	"errors"
	"net/http"

	"taskhub/internal/model"
	"taskhub/internal/service/tasks"
	"taskhub/internal/workspace"
	"taskhub/pkg/logger"
	"taskhub/pkg/rbac"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TaskHandler struct {
	logger *zap.Logger
}

func NewTaskHandler(logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{logger: logger}
}

// visibleTasks returns the CEO the organization view and everyone else
// their own tasks. ?mine=true narrows a CEO to their own tasks too.
func visibleTasks(c *gin.Context, ws *workspace.Workspace) []model.Task {
	role := string(ws.User().Role)
	if rbac.HasPermission(role, rbac.PermissionViewAllTasks) && c.Query("mine") != "true" {
		return ws.Tasks.AllTasks()
	}
	return ws.Tasks.MyTasks()
}

// List handles GET /tasks
func (h *TaskHandler) List(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	if err := ws.Tasks.EnsureFresh(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": visibleTasks(c, ws)})
}

// Refresh handles POST /tasks/refresh
func (h *TaskHandler) Refresh(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	if err := ws.Tasks.Refresh(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": visibleTasks(c, ws)})
}

type fileInput struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"` // base64 in JSON
}

type createTaskRequest struct {
	model.NewTask
	Files []fileInput `json:"files"`
}

// Create handles POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	in := req.NewTask
	for _, f := range req.Files {
		in.Attachments = append(in.Attachments, model.Attachment{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}

	task, err := ws.Tasks.CreateTask(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

// Update handles PATCH /tasks/:id
// 员工只能修改分配给自己的任务的 status/progress，且不能设置 CEO 专属状态
func (h *TaskHandler) Update(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	var patch model.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	current, err := ws.Tasks.Get(id)
	if errors.Is(err, tasks.ErrNotFound) {
		if err := ws.Tasks.Refresh(ctx); err != nil {
			writeError(c, err)
			return
		}
		current, err = ws.Tasks.Get(id)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	user := ws.User()
	status := ""
	if patch.Status != nil {
		status = string(*patch.Status)
	}
	if err := rbac.CheckTaskUpdate(string(user.Role), patch.Fields(), status, current.IsAssignedTo(user.ID)); err != nil {
		logger.WithTrace(ctx, h.logger).Info("Task update denied",
			zap.String("user_id", user.ID),
			zap.String("task_id", id),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}

	task, err := ws.Tasks.UpdateTask(ctx, id, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// Delete handles DELETE /tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	if err := ws.Tasks.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}
