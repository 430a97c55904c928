// Package postgres implements the queue natively on PostgreSQL with a pgx
// connection pool and embedded migrations.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/queue"
)

// addSQL cancels a queued opposite command, or inserts-or-replaces the
// pair, in a single statement. The INSERT only runs when the DELETE
// removed nothing.
const addSQL = `
WITH cancelled AS (
    DELETE FROM cdn_queue
    WHERE local_path = $1::text AND remote_path = $2::text AND command = $5::smallint
    RETURNING id
)
INSERT INTO cdn_queue (local_path, remote_path, command, last_error, date)
SELECT $1::text, $2::text, $3::smallint, $4::text, clock_timestamp()
WHERE NOT EXISTS (SELECT 1 FROM cancelled)
ON CONFLICT (local_path, remote_path) DO UPDATE
SET command = EXCLUDED.command,
    last_error = EXCLUDED.last_error,
    date = EXCLUDED.date`

// Store is the pgx queue store.
type Store struct {
	pool *pgxpool.Pool
}

var _ queue.Repository = (*Store)(nil)

// Open migrates the schema and connects a pool.
func Open(ctx context.Context, cfg *database.PostgresConfig) (*Store, error) {
	if err := RunMigrations(ctx, cfg.URL()); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}

	logger.Info("Creating PostgreSQL queue pool",
		logger.KeyHost, cfg.Host,
		"database", cfg.Database,
		"max_conns", poolConfig.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool whose schema is already migrated.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Add implements queue.Repository
func (s *Store) Add(ctx context.Context, localPath, remotePath string, command cdn.Command, lastError string) error {
	_, err := s.pool.Exec(ctx, addSQL, localPath, remotePath, int(command), lastError, int(command.Opposite()))
	if err != nil {
		return fmt.Errorf("failed to queue %s: %w", command, err)
	}
	return nil
}

// Update implements queue.Repository
func (s *Store) Update(ctx context.Context, id int64, lastError string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cdn_queue SET last_error = $2, date = clock_timestamp() WHERE id = $1`,
		id, lastError)
	if err != nil {
		return fmt.Errorf("failed to update queue entry %d: %w", id, err)
	}
	return nil
}

// Get implements queue.Repository
func (s *Store) Get(ctx context.Context, limit int) (queue.Groups, error) {
	query := `SELECT id, local_path, remote_path, command, last_error, date
		FROM cdn_queue ORDER BY date ASC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	defer rows.Close()

	var entries []*queue.Entry
	for rows.Next() {
		var (
			e       queue.Entry
			command int16
		)
		if err := rows.Scan(&e.ID, &e.LocalPath, &e.RemotePath, &command, &e.LastError, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.Command = cdn.Command(command)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	return queue.GroupEntries(entries), nil
}

// Delete implements queue.Repository
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cdn_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete queue entry %d: %w", id, err)
	}
	return nil
}

// Empty implements queue.Repository
func (s *Store) Empty(ctx context.Context, command cdn.Command) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cdn_queue WHERE command = $1`, int(command))
	if err != nil {
		return 0, fmt.Errorf("failed to empty %s queue: %w", command, err)
	}
	return int(tag.RowsAffected()), nil
}

// truncate removes every entry. Used by tests sharing one database.
func (s *Store) truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE cdn_queue RESTART IDENTITY`)
	return err
}
