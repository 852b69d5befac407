package main

import (
	"github.com/gin-gonic/gin"
	"github.com/rmaraujo/formbridge/backend/internal/middleware"
	"github.com/rmaraujo/formbridge/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for unauthenticated auth routes
	authLimiter := middleware.NewRateLimiter(5, 10)

	// Health check
	r.GET("/health", svc.healthHandler.Health)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, rate limited)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Protected routes (any authenticated user)
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Templates (read)
			protected.GET("/templates", svc.templateHandler.List)
			protected.GET("/templates/:id", svc.templateHandler.Get)
			protected.GET("/templates/:id/export", svc.bundleHandler.Export)

			// Workflows (read)
			protected.GET("/templates/:id/workflows", svc.workflowHandler.ListByTemplate)
			protected.GET("/templates/:id/workflows/active", svc.workflowHandler.GetActive)
			protected.GET("/workflows/:workflowId", svc.workflowHandler.Get)

			// Approval groups (read)
			protected.GET("/groups", svc.groupHandler.List)
			protected.GET("/groups/:groupId", svc.groupHandler.Get)
			protected.GET("/groups/:groupId/members", svc.groupHandler.ResolveMembers)

			// Schema catalogs (read)
			protected.GET("/schema/fields", svc.schemaHandler.ListTableFields)
			protected.GET("/schema/generic-tables", svc.schemaHandler.ListGenericTables)
		}

		// Admin only routes (template design and system management)
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			// Templates
			admin.POST("/templates", svc.templateHandler.Create)
			admin.PUT("/templates/:id", svc.templateHandler.Update)
			admin.DELETE("/templates/:id", svc.templateHandler.Delete)

			// Tables
			admin.POST("/templates/:id/tables", svc.templateHandler.AddTable)
			admin.PUT("/tables/:tableId", svc.templateHandler.UpdateTable)
			admin.DELETE("/tables/:tableId", svc.templateHandler.RemoveTable)
			admin.POST("/tables/:tableId/refresh-fields", svc.schemaHandler.RefreshTableFields)

			// Fields
			admin.POST("/tables/:tableId/fields", svc.fieldHandler.AddCustomField)
			admin.PUT("/fields/:fieldId", svc.fieldHandler.UpdateField)
			admin.DELETE("/fields/:fieldId", svc.fieldHandler.DeleteCustomField)

			// Field ordering
			admin.POST("/tables/:tableId/fields/move", svc.fieldHandler.MoveField)
			admin.POST("/tables/:tableId/fields/group-visible", svc.fieldHandler.GroupVisibleToTop)
			admin.PUT("/tables/:tableId/fields/order", svc.fieldHandler.ReorderFields)

			// Workflows
			admin.POST("/templates/:id/workflows", svc.workflowHandler.Save)
			admin.POST("/workflows/:workflowId/deactivate", svc.workflowHandler.Deactivate)

			// Approval groups
			admin.POST("/groups", svc.groupHandler.Create)
			admin.PUT("/groups/:groupId", svc.groupHandler.Update)
			admin.DELETE("/groups/:groupId", svc.groupHandler.Delete)
			admin.PUT("/groups/:groupId/members", svc.groupHandler.SetMembers)

			// Import / export
			admin.POST("/templates/import/validate", svc.bundleHandler.ValidateImport)
			admin.POST("/templates/import", svc.bundleHandler.Import)

			// Schema sync
			admin.POST("/schema/refresh", svc.schemaHandler.RefreshCatalog)

			// Users
			admin.GET("/users", svc.userHandler.List)
			admin.GET("/users/:id", svc.userHandler.Get)
			admin.POST("/users", svc.userHandler.Create)
			admin.PUT("/users/:id", svc.userHandler.Update)
			admin.DELETE("/users/:id", svc.userHandler.Deactivate)

			// System logs
			admin.GET("/system-logs", svc.logHandler.List)
			admin.GET("/system-logs/modules", svc.logHandler.GetModules)
		}
	}
}
