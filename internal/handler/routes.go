package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-classroom-api/internal/middleware"
	"github.com/noah-isme/sma-classroom-api/internal/models"
)

// Routes bundles the API handlers mounted under the versioned prefix.
type Routes struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Students    *StudentHandler
	Classes     *ClassHandler
	Academic    *AcademicHandler
	Marks       *MarkHandler
	Attendance  *AttendanceHandler
	Chat        *ChatHandler
	Attachments *AttachmentHandler
	// Ops is optional; when set the admin metrics summary is mounted.
	Ops *MetricsHandler
}

var (
	admin       = string(models.RoleAdmin)
	teacher     = string(models.RoleTeacher)
	student     = string(models.RoleStudent)
	staffOrSelf = []string{teacher, admin, middleware.Self}
	staffOnly   = middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
)

// Register mounts every route on api. authenticate guards everything except
// the public auth endpoints and signed file downloads.
func (r Routes) Register(api gin.IRouter, authenticate gin.HandlerFunc) {
	auth := api.Group("/auth")
	auth.POST("/register", r.Auth.Register)
	auth.POST("/login", r.Auth.Login)
	auth.POST("/refresh", r.Auth.Refresh)

	api.GET("/files/:token", r.Attachments.Serve)

	secured := api.Group("")
	secured.Use(authenticate)

	secured.POST("/auth/logout", r.Auth.Logout)
	secured.GET("/auth/me", r.Auth.Me)

	if r.Ops != nil {
		secured.GET("/admin/metrics", middleware.RBAC(admin), r.Ops.Summary)
	}

	users := secured.Group("/users", middleware.RBAC(admin))
	users.GET("", r.Users.List)
	users.PATCH("/:id/status", r.Users.UpdateStatus)

	students := secured.Group("/students")
	students.GET("", staffOnly, r.Students.List)
	students.POST("", middleware.RBAC(student), r.Students.Create)
	students.GET("/me", middleware.RBAC(student), r.Students.Me)
	students.GET("/:id", staffOnly, r.Students.Get)
	students.GET("/:id/summary", middleware.RBAC(staffOrSelf...), r.Academic.Summary)
	students.GET("/:id/marks", middleware.RBAC(staffOrSelf...), r.Marks.List)
	students.GET("/:id/attendance", middleware.RBAC(staffOrSelf...), r.Attendance.List)

	classes := secured.Group("/classes")
	classes.GET("", r.Classes.List)
	classes.GET("/:classId/subjects", r.Classes.Subjects)
	classes.GET("/:classId/students", staffOnly, r.Students.Roster)
	classes.GET("/:classId/ranking", staffOnly, r.Academic.Ranking)
	classes.GET("/:classId/ranking/export", staffOnly, r.Academic.Export)
	classes.GET("/:classId/messages", r.Chat.List)
	classes.POST("/:classId/messages", r.Chat.Send)
	classes.GET("/:classId/chat-settings", r.Chat.Settings)
	classes.PUT("/:classId/chat-settings", staffOnly, r.Chat.SetLock)

	secured.POST("/marks/bulk", middleware.RBAC(teacher), r.Marks.Bulk)
	secured.POST("/attendance/bulk", middleware.RBAC(teacher), r.Attendance.Bulk)

	secured.POST("/attachments", r.Attachments.Upload)
	secured.GET("/attachments/:ref/url", r.Attachments.URL)
}
