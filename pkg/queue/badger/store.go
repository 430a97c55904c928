// Package badger implements the queue on an embedded BadgerDB, for single
// node deployments that want durability without a SQL database.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/queue"
)

// Key namespace:
//
//	Data        Prefix  Key                          Value
//	Entry       "e:"    e:<id big-endian uint64>     entry (JSON)
//	Pair index  "p:"    p:<local>\x00<remote>        id (uint64)
//	Sequence    "seq:"  seq:queue                    badger sequence
const (
	prefixEntry = "e:"
	prefixPair  = "p:"
	keySequence = "seq:queue"
)

// maxRetries bounds the optimistic transaction retries on conflict.
const maxRetries = 10

func keyEntry(id int64) []byte {
	key := make([]byte, len(prefixEntry)+8)
	copy(key, prefixEntry)
	binary.BigEndian.PutUint64(key[len(prefixEntry):], uint64(id))
	return key
}

func keyPair(local, remote string) []byte {
	return []byte(prefixPair + local + "\x00" + remote)
}

type record struct {
	ID         int64     `json:"id"`
	LocalPath  string    `json:"local_path"`
	RemotePath string    `json:"remote_path"`
	Command    int       `json:"command"`
	LastError  string    `json:"last_error"`
	Date       time.Time `json:"date"`
}

func (r *record) toEntry() *queue.Entry {
	return &queue.Entry{
		ID:         r.ID,
		LocalPath:  r.LocalPath,
		RemotePath: r.RemotePath,
		Command:    cdn.Command(r.Command),
		LastError:  r.LastError,
		Date:       r.Date,
	}
}

// Store is the badger queue store.
type Store struct {
	db  *badgerdb.DB
	seq *badgerdb.Sequence
	now func() time.Time
}

var _ queue.Repository = (*Store)(nil)

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	return open(badgerdb.DefaultOptions(path).WithLogger(nil))
}

// OpenInMemory opens a store that lives only in memory. Used by tests.
func OpenInMemory() (*Store, error) {
	return open(badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badgerdb.Options) (*Store, error) {
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger queue: %w", err)
	}
	seq, err := db.GetSequence([]byte(keySequence), 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open queue sequence: %w", err)
	}
	return &Store{db: db, seq: seq, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the sequence and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return err
}

func getRecord(txn *badgerdb.Txn, id int64) (*record, error) {
	item, err := txn.Get(keyEntry(id))
	if err != nil {
		return nil, err
	}
	var rec record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode queue entry %d: %w", id, err)
	}
	return &rec, nil
}

func putRecord(txn *badgerdb.Txn, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode queue entry: %w", err)
	}
	return txn.Set(keyEntry(rec.ID), data)
}

func lookupPair(txn *badgerdb.Txn, local, remote string) (int64, bool, error) {
	item, err := txn.Get(keyPair(local, remote))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt pair index")
		}
		id = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return id, err == nil, err
}

// Add implements queue.Repository
func (s *Store) Add(ctx context.Context, localPath, remotePath string, command cdn.Command, lastError string) error {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		id, found, err := lookupPair(txn, localPath, remotePath)
		if err != nil {
			return err
		}

		if found {
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			if cdn.Command(rec.Command) == command.Opposite() {
				if err := txn.Delete(keyEntry(id)); err != nil {
					return err
				}
				return txn.Delete(keyPair(localPath, remotePath))
			}
			rec.Command = int(command)
			rec.LastError = lastError
			rec.Date = s.now()
			return putRecord(txn, rec)
		}

		next, err := s.seq.Next()
		if err != nil {
			return err
		}
		rec := &record{
			ID:         int64(next) + 1,
			LocalPath:  localPath,
			RemotePath: remotePath,
			Command:    int(command),
			LastError:  lastError,
			Date:       s.now(),
		}
		if err := putRecord(txn, rec); err != nil {
			return err
		}
		idBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(idBytes, uint64(rec.ID))
		return txn.Set(keyPair(localPath, remotePath), idBytes)
	})
	if err != nil {
		return fmt.Errorf("failed to queue %s: %w", command, err)
	}
	return nil
}

// Update implements queue.Repository
func (s *Store) Update(ctx context.Context, id int64, lastError string) error {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		rec, err := getRecord(txn, id)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec.LastError = lastError
		rec.Date = s.now()
		return putRecord(txn, rec)
	})
	if err != nil {
		return fmt.Errorf("failed to update queue entry %d: %w", id, err)
	}
	return nil
}

func (s *Store) scan(txn *badgerdb.Txn) ([]*record, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(prefixEntry)
	it := txn.NewIterator(opts)
	defer it.Close()

	var records []*record
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		var rec record
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decode queue entry: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Get implements queue.Repository
func (s *Store) Get(ctx context.Context, limit int) (queue.Groups, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []*queue.Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		records, err := s.scan(txn)
		if err != nil {
			return err
		}
		entries = make([]*queue.Entry, len(records))
		for i, rec := range records {
			entries[i] = rec.toEntry()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	queue.SortEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return queue.GroupEntries(entries), nil
}

// Delete implements queue.Repository
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		rec, err := getRecord(txn, id)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(keyEntry(id)); err != nil {
			return err
		}
		return txn.Delete(keyPair(rec.LocalPath, rec.RemotePath))
	})
	if err != nil {
		return fmt.Errorf("failed to delete queue entry %d: %w", id, err)
	}
	return nil
}

// Empty implements queue.Repository
func (s *Store) Empty(ctx context.Context, command cdn.Command) (int, error) {
	removed := 0
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		removed = 0
		records, err := s.scan(txn)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if cdn.Command(rec.Command) != command {
				continue
			}
			if err := txn.Delete(keyEntry(rec.ID)); err != nil {
				return err
			}
			if err := txn.Delete(keyPair(rec.LocalPath, rec.RemotePath)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to empty %s queue: %w", command, err)
	}
	return removed, nil
}
