// Package database opens the GORM connection shared by the sql queue and
// the site catalog. SQLite is the single-node default; PostgreSQL lets
// several dittocdn processes share one queue.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Type defines the supported database backends.
type Type string

const (
	// TypeSQLite uses SQLite (single-node, default).
	TypeSQLite Type = "sqlite"

	// TypePostgres uses PostgreSQL.
	TypePostgres Type = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	// Default: $XDG_CONFIG_HOME/dittocdn/dittocdn.db
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	SSLMode      string `mapstructure:"ssl_mode" yaml:"ssl_mode"` // disable, require, verify-ca, verify-full
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// URL returns the connection string in URL form, as golang-migrate and
// pgxpool accept it.
func (c *PostgresConfig) URL() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

// Config contains database configuration.
type Config struct {
	Type     Type           `mapstructure:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// DefaultDir returns $XDG_CONFIG_HOME/dittocdn, or ~/.config/dittocdn.
func DefaultDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "dittocdn")
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeSQLite
	}

	if c.Type == TypeSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = filepath.Join(DefaultDir(), "dittocdn.db")
	}

	if c.Type == TypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case TypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// Open connects to the configured database and auto-migrates models.
func Open(config *Config, models ...any) (*gorm.DB, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case TypeSQLite:
		if config.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// WAL for concurrent readers, busy_timeout so the scheduler and the
		// API can interleave writes without SQLITE_BUSY.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case TypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	if config.Type == TypePostgres {
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	} else {
		// one writer; the busy timeout handles the rest
		sqlDB.SetMaxOpenConns(1)
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("failed to run database migration: %w", err)
		}
	}
	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
