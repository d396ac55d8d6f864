package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorclass-api/internal/middleware"
	"github.com/noah-isme/tutorclass-api/internal/models"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Classes  *ClassHandler
	Students *StudentHandler
	Teachers *TeacherHandler
	Metrics  *MetricsHandler
}

// RegisterRoutes mounts ops endpoints at the root and the API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, tokens middleware.TokenValidator, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta(), middleware.JWT(tokens))

	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)

	classes := api.Group("/classes")
	classes.GET("", staff, h.Classes.List)
	classes.GET("/export", staff, h.Classes.Export)
	classes.GET("/:id", staff, h.Classes.Get)
	classes.POST("", admins, h.Classes.Create)
	classes.PUT("/:id", admins, h.Classes.Update)
	classes.PATCH("/:id/status", staff, h.Classes.UpdateStatus)
	classes.DELETE("/:id", admins, h.Classes.Delete)

	api.GET("/slots/occupants", staff, h.Classes.Occupants)

	students := api.Group("/students", staff)
	students.GET("", h.Students.List)
	students.GET("/:id", h.Students.Get)
	students.GET("/:id/used-count", h.Students.UsedCount)
	students.GET("/:id/balance", h.Students.Balance)

	teachers := api.Group("/teachers", staff)
	teachers.GET("", h.Teachers.List)
	teachers.GET("/:id", h.Teachers.Get)
}
