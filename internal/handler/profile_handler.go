package handler

import (
	"net/http"

	"taskhub/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProfileHandler struct {
	logger *zap.Logger
}

func NewProfileHandler(logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{logger: logger}
}

// Me handles GET /me. A failed fetch falls back to the cached profile.
func (h *ProfileHandler) Me(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	u := ws.Profile.GetProfile(c.Request.Context())
	if u == nil {
		cur := ws.User()
		u = &cur
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// UpdateMe handles PATCH /me
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	var req model.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	u, err := ws.Profile.UpdateProfile(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// ChangePassword handles PATCH /me/password
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current password is required"})
		return
	}

	msg, err := ws.Profile.ChangePassword(c.Request.Context(), model.PasswordChange{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Users handles GET /organization/users
func (h *ProfileHandler) Users(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": ws.Profile.FetchOrganizationUsers(c.Request.Context())})
}

// Invite handles POST /organization/invite
func (h *ProfileHandler) Invite(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	msg, err := ws.Profile.InviteEmployee(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
