// Package memory is a non-durable queue store for tests and dry runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/queue"
)

type pair struct{ local, remote string }

// Store keeps queue entries in a mutex-guarded map.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*queue.Entry
	byPair  map[pair]int64

	// Now supplies timestamps; defaults to time.Now.
	Now func() time.Time
}

var _ queue.Repository = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[int64]*queue.Entry),
		byPair:  make(map[pair]int64),
		Now:     time.Now,
	}
}

// Add implements queue.Repository
func (s *Store) Add(_ context.Context, localPath, remotePath string, command cdn.Command, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair{localPath, remotePath}
	if id, ok := s.byPair[key]; ok {
		existing := s.entries[id]
		if existing.Command == command.Opposite() {
			delete(s.entries, id)
			delete(s.byPair, key)
			return nil
		}
		existing.Command = command
		existing.LastError = lastError
		existing.Date = s.Now()
		return nil
	}

	s.nextID++
	s.entries[s.nextID] = &queue.Entry{
		ID:         s.nextID,
		LocalPath:  localPath,
		RemotePath: remotePath,
		Command:    command,
		LastError:  lastError,
		Date:       s.Now(),
	}
	s.byPair[key] = s.nextID
	return nil
}

// Update implements queue.Repository
func (s *Store) Update(_ context.Context, id int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		e.LastError = lastError
		e.Date = s.Now()
	}
	return nil
}

// Get implements queue.Repository
func (s *Store) Get(_ context.Context, limit int) (queue.Groups, error) {
	s.mu.Lock()
	all := make([]*queue.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		all = append(all, &cp)
	}
	s.mu.Unlock()

	queue.SortEntries(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return queue.GroupEntries(all), nil
}

// Delete implements queue.Repository
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		delete(s.byPair, pair{e.LocalPath, e.RemotePath})
		delete(s.entries, id)
	}
	return nil
}

// Empty implements queue.Repository
func (s *Store) Empty(_ context.Context, command cdn.Command) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if e.Command == command {
			delete(s.byPair, pair{e.LocalPath, e.RemotePath})
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Close implements io.Closer
func (s *Store) Close() error { return nil }
