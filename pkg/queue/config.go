package queue

import (
	"fmt"
	"path/filepath"
	"time"
)

// Store types
const (
	TypeSQL      = "sql"
	TypePostgres = "postgres"
	TypeBadger   = "badger"
	TypeMemory   = "memory"
)

// Config selects the queue store.
type Config struct {
	// Type is sql (GORM over the shared database), postgres (native pgx
	// with migrations), badger (embedded) or memory.
	Type string `mapstructure:"type" yaml:"type" validate:"omitempty,oneof=sql postgres badger memory"`

	// BadgerPath is the badger data directory.
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`

	// Process limits how many entries one processor run takes.
	ProcessLimit int `mapstructure:"process_limit" yaml:"process_limit" validate:"gte=0"`

	// Interval is the period of the background processor. Zero disables it.
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`
}

// ApplyDefaults fills in missing configuration. dataDir hosts the badger
// directory when none is set.
func (c *Config) ApplyDefaults(dataDir string) {
	if c.Type == "" {
		c.Type = TypeSQL
	}
	if c.Type == TypeBadger && c.BadgerPath == "" {
		c.BadgerPath = filepath.Join(dataDir, "queue")
	}
	if c.ProcessLimit == 0 {
		c.ProcessLimit = 100
	}
}

// Validate checks the store selection.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeSQL, TypePostgres, TypeMemory:
	case TypeBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("queue badger_path is required")
		}
	default:
		return fmt.Errorf("unsupported queue type: %s", c.Type)
	}
	return nil
}
