package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite" // Pure Go SQLite driver (uses modernc.org/sqlite)
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/model"
)

// DB wraps the GORM DB connection with additional context
type DB struct {
	*gorm.DB
	Driver string
}

// New creates a new database connection based on configuration
func New(cfg *config.Config) (*DB, error) {
	var db *gorm.DB
	var err error

	// Configure logger to only log slow queries (>1 second)
	slowLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	gormConfig := &gorm.Config{
		Logger: slowLogger,
	}

	driver := cfg.DatabaseDriver
	dsn := cfg.CleanDSN()

	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		sqliteDSN := strings.TrimPrefix(dsn, "file:")

		// Ensure parent directory exists for file-based databases
		if sqliteDSN != ":memory:" && !strings.HasPrefix(sqliteDSN, ":memory:") {
			dir := filepath.Dir(sqliteDSN)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}

		db, err = gorm.Open(sqlite.Open(sqliteDSN), gormConfig)
		if err == nil {
			// WAL mode allows concurrent readers while a writer is active,
			// preventing connection starvation between the worker and API.
			db.Exec("PRAGMA journal_mode=WAL")
			// busy_timeout makes SQLite wait (up to 5s) when the DB is locked
			// instead of immediately returning SQLITE_BUSY.
			db.Exec("PRAGMA busy_timeout = 5000")
			db.Exec("PRAGMA foreign_keys = ON")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool based on driver
	if driver == "sqlite" {
		// With WAL mode, SQLite supports concurrent readers alongside a single
		// writer. Allow a few connections so API reads don't block behind the
		// worker's writes.
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(4)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	}

	return &DB{DB: db, Driver: driver}, nil
}

// Migrate runs database migrations using GORM's AutoMigrate
func (db *DB) Migrate() error {
	log.Println("Running GORM AutoMigrate...")
	return db.AutoMigrate(model.AllModels()...)
}

// IsPostgres returns true if using PostgreSQL
func (db *DB) IsPostgres() bool {
	return db.Driver == "postgres"
}

// IsSQLite returns true if using SQLite
func (db *DB) IsSQLite() bool {
	return db.Driver == "sqlite"
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
