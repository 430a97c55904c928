// Package sqlstore implements the queue over GORM, sharing the database
// configured for the site catalog (SQLite or PostgreSQL).
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/queue"
)

// Row is the persisted form of a queue entry.
type Row struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	LocalPath  string    `gorm:"not null;size:500;uniqueIndex:idx_cdn_queue_pair"`
	RemotePath string    `gorm:"not null;size:500;uniqueIndex:idx_cdn_queue_pair"`
	Command    int       `gorm:"not null;index"`
	LastError  string    `gorm:"type:text;not null;default:''"`
	Date       time.Time `gorm:"not null;index"`
}

// TableName sets the table name.
func (Row) TableName() string { return "cdn_queue" }

func (r *Row) toEntry() *queue.Entry {
	return &queue.Entry{
		ID:         r.ID,
		LocalPath:  r.LocalPath,
		RemotePath: r.RemotePath,
		Command:    cdn.Command(r.Command),
		LastError:  r.LastError,
		Date:       r.Date,
	}
}

// Store is the GORM queue store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ queue.Repository = (*Store)(nil)

// Models returns the models to auto-migrate.
func Models() []any {
	return []any{&Row{}}
}

// New wraps db, creating the queue table if needed.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate queue table: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Add implements queue.Repository. The cancel-out check and the upsert run
// in one transaction.
func (s *Store) Add(ctx context.Context, localPath, remotePath string, command cdn.Command, lastError string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("local_path = ? AND remote_path = ? AND command = ?",
			localPath, remotePath, int(command.Opposite())).Delete(&Row{})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel queued %s: %w", command.Opposite(), res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		row := &Row{
			LocalPath:  localPath,
			RemotePath: remotePath,
			Command:    int(command),
			LastError:  lastError,
			Date:       s.now(),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "local_path"}, {Name: "remote_path"}},
			DoUpdates: clause.AssignmentColumns([]string{"command", "last_error", "date"}),
		}).Create(row).Error
		if err != nil {
			return fmt.Errorf("failed to queue %s: %w", command, err)
		}
		return nil
	})
}

// Update implements queue.Repository
func (s *Store) Update(ctx context.Context, id int64, lastError string) error {
	err := s.db.WithContext(ctx).Model(&Row{}).Where("id = ?", id).Updates(map[string]any{
		"last_error": lastError,
		"date":       s.now(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update queue entry %d: %w", id, err)
	}
	return nil
}

// Get implements queue.Repository
func (s *Store) Get(ctx context.Context, limit int) (queue.Groups, error) {
	q := s.db.WithContext(ctx).Order("date ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []Row
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	entries := make([]*queue.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].toEntry()
	}
	return queue.GroupEntries(entries), nil
}

// Delete implements queue.Repository
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&Row{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete queue entry %d: %w", id, err)
	}
	return nil
}

// Empty implements queue.Repository
func (s *Store) Empty(ctx context.Context, command cdn.Command) (int, error) {
	res := s.db.WithContext(ctx).Where("command = ?", int(command)).Delete(&Row{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to empty %s queue: %w", command, res.Error)
	}
	return int(res.RowsAffected), nil
}
