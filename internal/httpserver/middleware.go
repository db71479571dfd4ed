package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"taskhub/internal/handler"
	"taskhub/internal/workspace"
	"taskhub/pkg/config"
	"taskhub/pkg/logger"
	"taskhub/pkg/metrics"
	"taskhub/pkg/rbac"
	"taskhub/pkg/trace"
	"taskhub/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TraceMiddleware 复用或生成 X-Trace-ID，并写回响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogMiddleware 请求日志 + 请求耗时指标
func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 用路由模板做 label，避免 /tasks/:id 爆炸
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), latency)

		logger.WithTrace(c.Request.Context(), log).Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// SessionMiddleware 从 cookie（或 Authorization: Bearer）中取会话 ID，找到（或恢复）对应的 workspace
func SessionMiddleware(registry *workspace.Registry, session config.SessionConfig, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(session.CookieName)
		if err != nil || id == "" {
			id = util.ExtractToken(c.Request)
		}
		if id == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}

		ws, err := registry.Get(c.Request.Context(), id)
		if err != nil {
			status := handler.StatusFor(err)
			if status != http.StatusUnauthorized {
				logger.WithTrace(c.Request.Context(), log).Warn("Session lookup failed", zap.Error(err))
			}
			// 会话无效时一律按未登录处理
			c.SetCookie(session.CookieName, "", -1, "/", "", session.Secure, true)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}

		handler.SetWorkspace(c, ws)
		c.Next()
	}
}

// RequirePermission 中间件：要求当前会话的角色具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws := handler.CurrentWorkspace(c)
		if ws == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(string(ws.User().Role), permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}
