package handler

import (
	"errors"
	"net/http"

	"taskhub/internal/model"
	"taskhub/internal/service/auth"
	"taskhub/internal/workspace"
	"taskhub/pkg/config"
	"taskhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	registry *workspace.Registry
	session  config.SessionConfig
	logger   *zap.Logger
}

func NewAuthHandler(registry *workspace.Registry, session config.SessionConfig, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{registry: registry, session: session, logger: logger}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	ctx := c.Request.Context()
	_, res, err := h.registry.Open(ctx, req.Email, req.Password)
	if err != nil {
		logger.WithTrace(ctx, h.logger).Info("Login rejected", zap.String("email", req.Email), zap.Error(err))
		writeError(c, err)
		return
	}

	// 同一浏览器重新登录时关闭旧会话
	if old, err := c.Cookie(h.session.CookieName); err == nil && old != "" && old != res.SessionID {
		if _, err := h.registry.Close(ctx, old); err != nil {
			logger.WithTrace(ctx, h.logger).Warn("Failed to close previous session", zap.String("session_id", old), zap.Error(err))
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.session.CookieName, res.SessionID, int(h.session.TTL.Seconds()), "/", "", h.session.Secure, true)
	c.JSON(http.StatusOK, gin.H{
		"user":     res.User,
		"token":    res.Token,
		"redirect": res.Redirect,
	})
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req model.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.registry.Signup(c.Request.Context(), req)
	if err != nil {
		var fe *auth.FieldError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": res.Message, "field": res.Field})
			return
		}
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			writeError(c, err)
			return
		}
		c.JSON(status, gin.H{"error": res.Message})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": res.Message})
}

// Organizations handles GET /auth/organizations
func (h *AuthHandler) Organizations(c *gin.Context) {
	orgs, err := h.registry.Organizations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	ws, ok := getWorkspace(c)
	if !ok {
		return
	}

	redirect, err := h.registry.Close(c.Request.Context(), ws.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.SetCookie(h.session.CookieName, "", -1, "/", "", h.session.Secure, true)
	c.JSON(http.StatusOK, gin.H{"redirect": redirect})
}
