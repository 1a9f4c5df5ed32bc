package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/frahmantamala/scriptdeck/internal"
	"github.com/frahmantamala/scriptdeck/internal/auth"
	"github.com/frahmantamala/scriptdeck/internal/core/events"
	"github.com/frahmantamala/scriptdeck/internal/database"
	"github.com/frahmantamala/scriptdeck/internal/execution"
	executionPostgres "github.com/frahmantamala/scriptdeck/internal/execution/postgres"
	"github.com/frahmantamala/scriptdeck/internal/executor"
	"github.com/frahmantamala/scriptdeck/internal/gate"
	"github.com/frahmantamala/scriptdeck/internal/module"
	modulePostgres "github.com/frahmantamala/scriptdeck/internal/module/postgres"
	"github.com/frahmantamala/scriptdeck/internal/observability"
	"github.com/frahmantamala/scriptdeck/internal/permission"
	"github.com/frahmantamala/scriptdeck/internal/role"
	rolePostgres "github.com/frahmantamala/scriptdeck/internal/role/postgres"
	"github.com/frahmantamala/scriptdeck/internal/user"
	userPostgres "github.com/frahmantamala/scriptdeck/internal/user/postgres"
	pkglogger "github.com/frahmantamala/scriptdeck/pkg/logger"
)

// Dependencies is the wired object graph shared by the server and the CLI
// subcommands.
type Dependencies struct {
	Config     *internal.Config
	DB         *gorm.DB
	SQL        *sql.DB
	Logger     *slog.Logger
	Bus        *events.EventBus
	Metrics    *observability.Metrics
	Resolver   *permission.Resolver
	Roles      *role.Service
	Modules    *module.Service
	Users      *user.Service
	Auth       *auth.Service
	Executions *execution.Service
	Gate       *gate.Service
}

// buildDependencies wires services over an open database. A nil registerer
// uses the default prometheus registry.
func buildDependencies(cfg *internal.Config, db *gorm.DB, logger *slog.Logger, registerer prometheus.Registerer) (*Dependencies, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlxDB, err := database.SQLX(db, cfg.Database.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap database for sqlx: %w", err)
	}

	runner, err := executor.NewRunner(cfg.Execution, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runner: %w", err)
	}

	roleRepo := rolePostgres.NewRoleRepository(db)
	resolver := permission.NewResolver(roleRepo, logger,
		permission.WithCache(cfg.Permissions.CacheSize, cfg.Permissions.CacheTTL))

	modules := module.NewService(modulePostgres.NewModuleRepository(db), resolver, logger)
	roles := role.NewService(roleRepo, modules, resolver, logger)

	userRepo := userPostgres.NewUserRepository(db)
	users := user.NewService(userRepo, roleRepo, cfg.Security.BCryptCost, logger)

	var authenticator auth.Authenticator
	switch cfg.Identity.Provider {
	case "local":
		authenticator = auth.NewLocalAuthenticator(userRepo, users, logger)
	default:
		return nil, fmt.Errorf("unsupported identity provider %q", cfg.Identity.Provider)
	}
	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authenticator, users, tokens, logger)

	bus := events.NewEventBus(logger)
	executions := execution.NewService(executionPostgres.NewExecutionRepository(sqlxDB), logger)
	executions.Subscribe(bus)

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics(registerer)
	}

	gateService := gate.NewService(resolver, modules, runner, bus, metrics, cfg.Execution, logger)

	return &Dependencies{
		Config:     cfg,
		DB:         db,
		SQL:        sqlDB,
		Logger:     logger,
		Bus:        bus,
		Metrics:    metrics,
		Resolver:   resolver,
		Roles:      roles,
		Modules:    modules,
		Users:      users,
		Auth:       authService,
		Executions: executions,
		Gate:       gateService,
	}, nil
}

// openDependencies loads config, opens the database and wires everything.
// quiet discards service logs, for CLI commands that print tables.
func openDependencies(quiet bool) (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := pkglogger.LoggerWrapper()
	if quiet {
		logger = pkglogger.Discard()
	}
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps, err := buildDependencies(cfg, db, logger, nil)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) Close() error {
	return d.SQL.Close()
}
