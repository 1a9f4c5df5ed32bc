// Package database opens the gorm pool for the configured driver and exposes
// the same pool to sqlx for the raw-SQL repositories.
package database

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/scriptdeck/internal"
	executionDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/execution"
	moduleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/module"
	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/user"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func Open(cfg internal.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.Source)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.Source)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if logger != nil {
		logger.Info("database connected", "driver", cfg.Driver)
	}
	return db, nil
}

// AutoMigrate creates the schema from the datamodels. Postgres deployments
// use the goose migrations instead; this serves sqlite and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&roleDatamodel.Role{},
		&roleDatamodel.Permission{},
		&moduleDatamodel.Module{},
		&userDatamodel.User{},
		&executionDatamodel.Execution{},
	)
}

// SQLX wraps the gorm pool so sqlx repositories share its connections. The
// driver name only selects the bind variable style.
func SQLX(db *gorm.DB, driver string) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	name := "pgx"
	if driver == DriverSQLite {
		name = "sqlite3"
	}
	return sqlx.NewDb(sqlDB, name), nil
}
