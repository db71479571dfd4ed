package handler

import (
	"errors"
	"net/http"

	"taskhub/internal/apiclient"
	"taskhub/internal/model"
	"taskhub/internal/service/auth"
	"taskhub/internal/service/profile"
	"taskhub/internal/service/tasks"
	"taskhub/internal/session"
	"taskhub/internal/workspace"
	"taskhub/pkg/rbac"

	"github.com/gin-gonic/gin"
)

const workspaceKey = "workspace"

// SetWorkspace is called by the session middleware.
func SetWorkspace(c *gin.Context, ws *workspace.Workspace) {
	c.Set(workspaceKey, ws)
}

// getWorkspace 统一的 workspace 读取工具
func getWorkspace(c *gin.Context) (*workspace.Workspace, bool) {
	v, ok := c.Get(workspaceKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return nil, false
	}
	return v.(*workspace.Workspace), true
}

// CurrentWorkspace returns the workspace set by the session middleware, or nil.
func CurrentWorkspace(c *gin.Context) *workspace.Workspace {
	v, ok := c.Get(workspaceKey)
	if !ok {
		return nil
	}
	ws, _ := v.(*workspace.Workspace)
	return ws
}

// StatusFor maps an error to the HTTP status the gateway answers with.
// Upstream statuses pass through; a transport failure becomes 502.
func StatusFor(err error) int {
	var apiErr *apiclient.Error
	var fieldErr *auth.FieldError
	var denied *rbac.PermissionDeniedError
	var notAssignee *rbac.NotAssigneeError
	var fieldNotAllowed *rbac.FieldNotAllowedError
	var statusNotAllowed *rbac.StatusNotAllowedError

	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 0 {
			return http.StatusBadGateway
		}
		return apiErr.StatusCode
	case errors.As(err, &denied), errors.As(err, &notAssignee),
		errors.As(err, &fieldNotAllowed), errors.As(err, &statusNotAllowed):
		return http.StatusForbidden
	case errors.As(err, &fieldErr),
		errors.Is(err, model.ErrTitleRequired),
		errors.Is(err, model.ErrInvalidPriority),
		errors.Is(err, model.ErrInvalidStatus),
		errors.Is(err, model.ErrInvalidProgress),
		errors.Is(err, model.ErrInvalidFreq),
		errors.Is(err, profile.ErrPasswordMismatch),
		errors.Is(err, profile.ErrPasswordRequired),
		errors.Is(err, tasks.ErrNotBound):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotFound), errors.Is(err, auth.ErrSessionExpired), errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
