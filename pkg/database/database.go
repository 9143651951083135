// Package database opens the gorm connection for the configured dialect and
// migrates every boarddocs table.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/config"
	"github.com/autodocgen/boarddocs/pkg/credential"
	"github.com/autodocgen/boarddocs/pkg/docs"
	"github.com/autodocgen/boarddocs/pkg/ha"
	"github.com/autodocgen/boarddocs/pkg/jobs"
	"github.com/autodocgen/boarddocs/pkg/notify"
)

// Open connects to the database described by cfg.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dsn, err := NormalizeMySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		// One writer at a time; extra connections only add lock contention.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// NormalizeMySQLDSN forces parseTime so DATETIME columns scan into time.Time.
func NormalizeMySQLDSN(dsn string) (string, error) {
	c, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	c.ParseTime = true
	return c.FormatDSN(), nil
}

// SQLiteDSN adds a busy timeout to file databases that do not set one.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") ||
		strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

// Migrate creates or updates every table while holding locker, so replicas
// starting together do not race on DDL. A nil locker runs unlocked.
func Migrate(ctx context.Context, db *gorm.DB, locker ha.MigrationLocker) error {
	if locker == nil {
		locker = ha.NewMigrationLocker(nil, ha.MigrationLockName)
	}
	return locker.WithLock(ctx, func() error {
		steps := []struct {
			name string
			fn   func() error
		}{
			{"board_mappings", board.NewStore(db).AutoMigrate},
			{"credentials", credential.NewStore(db).AutoMigrate},
			{"generation_jobs", jobs.NewJobStore(db).AutoMigrate},
			{"generated_artifacts", docs.NewStore(db).AutoMigrate},
			{"notifications", notify.NewStore(db).AutoMigrate},
		}
		for _, s := range steps {
			if err := s.fn(); err != nil {
				return fmt.Errorf("migrate %s: %w", s.name, err)
			}
		}
		return nil
	})
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
