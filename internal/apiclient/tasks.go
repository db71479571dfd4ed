package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"taskhub/internal/model"
)

// CreateTaskRequest is the POST /api/tasks body. Attachments are already
// encoded as data URIs.
type CreateTaskRequest struct {
	model.NewTask
	Attachments    []string `json:"attachments"`
	AssignedBy     string   `json:"assignedBy"`
	OrganizationID string   `json:"organizationId"`
}

type taskResponse struct {
	Task model.Task `json:"task"`
}

// ListTasks handles GET /api/tasks for one organization.
func (c *Client) ListTasks(ctx context.Context, orgID string) ([]model.Task, error) {
	path := "/api/tasks"
	if orgID != "" {
		path += "?organizationId=" + url.QueryEscape(orgID)
	}

	var resp struct {
		Tasks []model.Task `json:"tasks"`
	}
	if err := c.do(ctx, "tasks_list", http.MethodGet, path, nil, &resp, "Failed to fetch tasks"); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// CreateTask handles POST /api/tasks and returns the server's copy.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*model.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, "tasks_create", http.MethodPost, "/api/tasks", req, &resp, "Failed to create task"); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// UpdateTask handles PATCH /api/tasks/{id} and returns the server's copy.
func (c *Client) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, "tasks_update", http.MethodPatch, "/api/tasks/"+url.PathEscape(id), patch, &resp, "Failed to update task"); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "tasks_delete", http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil, "Failed to delete task")
}
