package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/modelforge/star-engine/pkg/config"
	"github.com/modelforge/star-engine/pkg/database"
	"github.com/modelforge/star-engine/pkg/handlers"
	"github.com/modelforge/star-engine/pkg/mcp"
	"github.com/modelforge/star-engine/pkg/mcp/tools"
	"github.com/modelforge/star-engine/pkg/repositories"
	"github.com/modelforge/star-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.Bool("database_enabled", cfg.Database.Enabled),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled))

	// Persistence is optional; without it sessions live in memory only.
	var sessionRepo repositories.SessionRepository
	if cfg.Database.Enabled {
		ctx := context.Background()
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		sqlDB, err := sql.Open("pgx", cfg.Database.URL())
		if err != nil {
			logger.Fatal("Failed to open migration connection", zap.Error(err))
		}
		if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		if err := sqlDB.Close(); err != nil {
			logger.Warn("Failed to close migration connection", zap.Error(err))
		}

		sessionRepo = repositories.NewSessionRepository(db)
	}

	sessionService := services.NewSessionService(sessionRepo, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	sessionHandler := handlers.NewSessionHandler(sessionService, logger)
	sessionHandler.RegisterRoutes(mux)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("star-engine", cfg.Version, logger)
		tools.RegisterSessionTools(mcpServer.MCP(), &tools.SessionToolDeps{
			Sessions: sessionService,
			Logger:   logger,
		})
		mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())
	}

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting star-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
