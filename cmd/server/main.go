package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/atisplatform/approval-engine/internal/application/service"
	"github.com/atisplatform/approval-engine/internal/config"
	"github.com/atisplatform/approval-engine/internal/domain/entity"
	"github.com/atisplatform/approval-engine/internal/infrastructure/directory"
	"github.com/atisplatform/approval-engine/internal/infrastructure/notify"
	"github.com/atisplatform/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/atisplatform/approval-engine/internal/infrastructure/persistence/sqlite"
	apphttp "github.com/atisplatform/approval-engine/internal/interfaces/http"
	"github.com/atisplatform/approval-engine/pkg/database"
	"github.com/atisplatform/approval-engine/pkg/utils"
)

func main() {
	// Local overrides from .env, if present
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories and the transaction manager
	txManager := sqlite.NewDB(db.DB, logger)
	workflowRepo := repository.NewWorkflowRepository(db.DB, logger)
	requestRepo := repository.NewRequestRepository(db.DB, logger)
	actionRepo := repository.NewActionRepository(db.DB, logger)

	// Initialize the identity directory from configuration
	dir, err := directory.New(directoryUsers(cfg), directoryInstitutions(cfg), logger)
	if err != nil {
		logger.Fatal("Failed to build identity directory", zap.Error(err))
	}

	// Notification dispatcher
	dispatcher := notify.NewDispatcher(cfg.Notify.QueueCapacity, logger, notify.NewLogSink(logger))
	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcher.Start(dispatcherCtx)
	defer func() {
		stopDispatcher()
		dispatcher.Stop()
	}()

	// Application services
	serviceLogger := &zapLoggerAdapter{logger: logger}
	gate := service.NewAuthorizationGate(dir)
	engine := service.NewWorkflowEngine(
		workflowRepo,
		requestRepo,
		actionRepo,
		txManager,
		dir,
		dir,
		gate,
		dispatcher,
		service.EngineConfig{
			ConflictRetries: cfg.Engine.ConflictRetries,
			RetryBackoff:    cfg.Engine.RetryBackoff,
		},
		serviceLogger,
	)
	workflowService := service.NewWorkflowService(workflowRepo, serviceLogger)
	bulkCoordinator := service.NewBulkCoordinator(engine, service.BulkConfig{
		MaxItems:    cfg.Bulk.MaxItems,
		Concurrency: cfg.Bulk.Concurrency,
		ItemTimeout: cfg.Bulk.ItemTimeout,
		JobTTL:      cfg.Bulk.JobTTL,
	}, serviceLogger)
	analyticsService := service.NewAnalyticsService(requestRepo, dir, gate, serviceLogger)
	exportService := service.NewExportService(engine, workflowRepo, serviceLogger)

	// HTTP server
	server := apphttp.NewServer(
		apphttp.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		engine,
		workflowService,
		bulkCoordinator,
		analyticsService,
		exportService,
		serviceLogger,
	)

	// Shut down on interrupt
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down server...")
		stopServer()
	}()

	if err := server.Start(serverCtx); err != nil {
		logger.Fatal("HTTP server error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// directoryUsers maps configured users onto directory entries
func directoryUsers(cfg *config.Config) []directory.UserEntry {
	users := make([]directory.UserEntry, 0, len(cfg.Directory.Users))
	for _, u := range cfg.Directory.Users {
		users = append(users, directory.UserEntry{
			ID:            u.ID,
			Role:          entity.RoleID(u.Role),
			InstitutionID: u.InstitutionID,
		})
	}
	return users
}

// directoryInstitutions maps configured institutions onto directory entries
func directoryInstitutions(cfg *config.Config) []directory.InstitutionEntry {
	institutions := make([]directory.InstitutionEntry, 0, len(cfg.Directory.Institutions))
	for _, i := range cfg.Directory.Institutions {
		institutions = append(institutions, directory.InstitutionEntry{
			ID:       i.ID,
			Name:     i.Name,
			ParentID: i.ParentID,
		})
	}
	return institutions
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
