package main

import (
	"github.com/rmaraujo/formbridge/backend/internal/config"
	"github.com/rmaraujo/formbridge/backend/internal/handlers"
	"github.com/rmaraujo/formbridge/backend/internal/models"
	"github.com/rmaraujo/formbridge/backend/internal/services"
	"github.com/rmaraujo/formbridge/backend/internal/utils"
	"github.com/rmaraujo/formbridge/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	syncService     *services.SchemaSyncService
	authHandler     *handlers.AuthHandler
	userHandler     *handlers.UserHandler
	templateHandler *handlers.TemplateHandler
	fieldHandler    *handlers.FieldHandler
	workflowHandler *handlers.WorkflowHandler
	groupHandler    *handlers.GroupHandler
	bundleHandler   *handlers.BundleHandler
	schemaHandler   *handlers.SchemaHandler
	healthHandler   *handlers.HealthHandler
	logHandler      *handlers.SystemLogHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	services.InitSystemLogger(db)
	services.StartLogCleanupScheduler(db, cfg.Log.RetentionDays)

	// Catalog sync against the external schema endpoint
	provider := services.NewHTTPSchemaProvider(&cfg.Sync)
	syncService := services.NewSchemaSyncService(db, provider)
	if cfg.Sync.BaseURL != "" {
		if err := syncService.StartScheduler(cfg.Sync.Schedule); err != nil {
			logger.Warn().Err(err).Msg("Failed to start schema sync scheduler")
		}
	}

	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		syncService:     syncService,
		authHandler:     authHandler,
		userHandler:     handlers.NewUserHandler(db),
		templateHandler: handlers.NewTemplateHandler(db, syncService),
		fieldHandler:    handlers.NewFieldHandler(db),
		workflowHandler: handlers.NewWorkflowHandler(db),
		groupHandler:    handlers.NewGroupHandler(db),
		bundleHandler:   handlers.NewBundleHandler(db),
		schemaHandler:   handlers.NewSchemaHandler(db, syncService),
		healthHandler:   handlers.NewHealthHandler(db),
		logHandler:      handlers.NewSystemLogHandler(db),
	}
}

// shutdown gracefully stops all schedulers.
func (s *appServices) shutdown() {
	s.syncService.StopScheduler()
	services.StopLogCleanupScheduler()
	logger.Info().Msg("All schedulers stopped")
}
