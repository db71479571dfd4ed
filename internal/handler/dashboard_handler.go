package handler

import (
	"net/http"
	"time"

	"taskhub/internal/service/stats"

	"github.com/gin-gonic/gin"
)

const upcomingWindow = 7 * 24 * time.Hour

type DashboardHandler struct {
	now func() time.Time
}

func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{now: time.Now}
}

// CEO handles GET /dashboard/ceo
func (h *DashboardHandler) CEO(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := ws.Tasks.EnsureFresh(ctx); err != nil {
		writeError(c, err)
		return
	}

	now := h.now()
	all := ws.Tasks.AllTasks()
	users := ws.Profile.FetchOrganizationUsers(ctx)
	c.JSON(http.StatusOK, gin.H{
		"summary":  stats.Summarize(all, now),
		"workload": stats.Workload(all, users, now),
		"upcoming": stats.Upcoming(all, now, upcomingWindow),
	})
}

// Employee handles GET /dashboard/employee
func (h *DashboardHandler) Employee(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	if err := ws.Tasks.EnsureFresh(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}

	now := h.now()
	mine := ws.Tasks.MyTasks()
	counts, _ := ws.Profile.Counts()
	c.JSON(http.StatusOK, gin.H{
		"summary":  stats.Summarize(mine, now),
		"upcoming": stats.Upcoming(mine, now, upcomingWindow),
		"counts":   counts,
	})
}
