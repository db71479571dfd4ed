package httpserver

import (
	"context"
	"net/http"
	"time"

	"taskhub/internal/handler"
	"taskhub/internal/workspace"
	"taskhub/pkg/config"
	"taskhub/pkg/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck is one named dependency checked by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Registry *workspace.Registry
	Session  config.SessionConfig
	Checks   []ReadinessCheck
	Logger   *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(RequestLogMiddleware(log))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, chk := range d.Checks {
			if err := chk.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": chk.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handler.NewAuthHandler(d.Registry, d.Session, log)
	profileHandler := handler.NewProfileHandler(log)
	taskHandler := handler.NewTaskHandler(log)
	dashboardHandler := handler.NewDashboardHandler()

	// Public
	r.POST("/auth/login", authHandler.Login)
	r.POST("/auth/signup", authHandler.Signup)
	r.GET("/auth/organizations", authHandler.Organizations)

	// Protected
	auth := r.Group("/")
	auth.Use(SessionMiddleware(d.Registry, d.Session, log))
	{
		auth.POST("/auth/logout", authHandler.Logout)

		auth.GET("/me", profileHandler.Me)
		auth.PATCH("/me", profileHandler.UpdateMe)
		auth.PATCH("/me/password", profileHandler.ChangePassword)
		auth.GET("/organization/users", RequirePermission(rbac.PermissionReadRoster), profileHandler.Users)
		auth.POST("/organization/invite", RequirePermission(rbac.PermissionInviteEmployee), profileHandler.Invite)

		auth.GET("/tasks", RequirePermission(rbac.PermissionReadTask), taskHandler.List)
		auth.POST("/tasks", RequirePermission(rbac.PermissionCreateTask), taskHandler.Create)
		auth.POST("/tasks/refresh", RequirePermission(rbac.PermissionReadTask), taskHandler.Refresh)
		auth.PATCH("/tasks/:id", RequirePermission(rbac.PermissionUpdateTaskFlow), taskHandler.Update)
		auth.DELETE("/tasks/:id", RequirePermission(rbac.PermissionDeleteTask), taskHandler.Delete)

		auth.GET("/dashboard/ceo", RequirePermission(rbac.PermissionViewAllTasks), dashboardHandler.CEO)
		auth.GET("/dashboard/employee", dashboardHandler.Employee)
	}

	return r
}
