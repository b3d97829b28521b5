package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/psychometric-api/internal/middleware"
	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/internal/repository"
	"github.com/noah-isme/psychometric-api/internal/service"
)

// Handlers bundles every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth       *AuthHandler
	Assessment *AssessmentHandler
	Report     *ReportHandler
	Stats      *StatsHandler
	Roster     *RosterHandler
	Parent     *ParentHandler
	Payment    *PaymentHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts the public API under prefix and the ops endpoints at the root.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, authService *service.AuthService, audit *repository.UserRepository) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.POST("/register/school", h.Auth.RegisterSchool)
	auth.POST("/register/parent", h.Auth.RegisterParent)
	auth.POST("/register/student", h.Auth.RegisterStudent)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	api.GET("/downloads/:token", h.Report.Download)
	api.POST("/payments/midtrans/notification", h.Payment.Notification)

	secured := api.Group("")
	secured.Use(middleware.JWT(authService))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)
	secured.GET("/auth/me", h.Auth.Me)

	secured.GET("/reports/:id", h.Report.Get)
	secured.GET("/reports/:id/pdf", middleware.Audit(audit, models.AuditActionReportDownload, "report"), h.Report.PDF)

	student := secured.Group("")
	student.Use(middleware.RequireRoles(models.RoleStudent))
	student.GET("/assessments", h.Assessment.ListForStudent)
	student.GET("/assessments/:id", h.Assessment.Get)
	student.POST("/assessments/:id/start", h.Assessment.Start)
	student.POST("/assessments/:id/submit", h.Assessment.Submit)
	student.POST("/assessments/:id/report", h.Assessment.Regenerate)
	student.GET("/student/stats", h.Stats.Student)
	student.GET("/student/reports", h.Report.ListMine)
	student.GET("/student/reports/latest", h.Report.Latest)

	parent := secured.Group("/parent")
	parent.Use(middleware.RequireRoles(models.RoleParent))
	parent.GET("/stats", h.Stats.Parent)
	parent.GET("/children", h.Parent.ListChildren)
	parent.POST("/children", h.Parent.LinkChild)
	parent.GET("/children/:studentId/reports", h.Report.ListForChild)

	school := secured.Group("/school")
	school.Use(middleware.RequireRoles(models.RoleSchoolAdmin))
	school.POST("/roster/import", h.Roster.Import)
	school.GET("/roster/export", middleware.Audit(audit, models.AuditActionRosterExport, "school"), h.Roster.Export)
	school.GET("/stats", h.Stats.School)
	school.POST("/payments", h.Payment.CreateOrder)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/assessments", h.Assessment.AdminList)
	admin.POST("/assessments", h.Assessment.Create)
	admin.PATCH("/assessments/:id/status", h.Assessment.UpdateStatus)
	admin.GET("/stats", h.Stats.Platform)
}
