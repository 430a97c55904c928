// Package memory is an in-process Backend. It stores objects in a map and
// is used for dry runs and by the tests of every package that needs a
// backend.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

// Backend keeps uploaded objects in memory.
type Backend struct {
	cdn.Base

	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	deletes int

	// OpenErr, when set, makes every batch halt with it.
	OpenErr error

	// FailPut maps remote paths to the error their upload reports.
	FailPut map[string]error

	// Decline lists paths FormatURL refuses to serve.
	Decline map[string]bool
}

var (
	_ cdn.Backend          = (*Backend)(nil)
	_ cdn.ContainerCreator = (*Backend)(nil)
)

// New creates an empty backend serving from domains.
func New(domains ...string) *Backend {
	return &Backend{
		Base:    cdn.Base{Hosts: domains},
		objects: make(map[string][]byte),
		FailPut: make(map[string]error),
		Decline: make(map[string]bool),
	}
}

// Engine implements cdn.Named
func (b *Backend) Engine() string { return "memory" }

type session struct{ b *Backend }

func (b *Backend) open(context.Context) (session, error) {
	b.mu.Lock()
	err := b.OpenErr
	b.mu.Unlock()
	if err != nil {
		return session{}, cdn.NewHaltError("memory", err)
	}
	return session{b: b}, nil
}

// Upload implements cdn.Backend
func (b *Backend) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(_ context.Context, s session, f cdn.File) error {
		if err := cdn.CheckSource(f.Local); err != nil {
			return err
		}
		data, err := os.ReadFile(f.Local)
		if err != nil {
			return cdn.NewItemError("put object", f.Remote, err)
		}

		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		if !force {
			if existing, ok := s.b.objects[f.Remote]; ok && sum(existing) == sum(data) {
				return cdn.ErrAlreadyExists
			}
		}
		if err := s.b.FailPut[f.Remote]; err != nil {
			return cdn.NewItemError("put object", f.Remote, err)
		}
		s.b.objects[f.Remote] = data
		s.b.puts++
		return nil
	})
}

// Delete implements cdn.Backend
func (b *Backend) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(_ context.Context, s session, f cdn.File) error {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		if _, ok := s.b.objects[f.Remote]; !ok {
			return cdn.NewItemError("delete object", f.Remote, cdn.ErrNotFound)
		}
		delete(s.b.objects, f.Remote)
		s.b.deletes++
		return nil
	})
}

// Test implements cdn.Backend
func (b *Backend) Test(ctx context.Context) error {
	if _, err := b.open(ctx); err != nil {
		return err
	}
	probe := "test_memory_" + uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[probe] = []byte(probe)
	if string(b.objects[probe]) != probe {
		return cdn.ErrProbeMismatch
	}
	delete(b.objects, probe)
	return nil
}

// FormatURL implements cdn.Backend
func (b *Backend) FormatURL(path string) (string, bool) {
	if b.Decline[path] {
		return "", false
	}
	return b.Base.FormatURL(path)
}

// Via implements cdn.Backend
func (b *Backend) Via() string {
	return fmt.Sprintf("Memory: %s", b.Base.Via())
}

// CreateContainer implements cdn.ContainerCreator; the map always exists.
func (b *Backend) CreateContainer(context.Context) error { return nil }

// Put stores data under remote directly, bypassing Upload.
func (b *Backend) Put(remote string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[remote] = data
}

// Object returns the stored bytes of remote.
func (b *Backend) Object(remote string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[remote]
	return data, ok
}

// Keys returns the stored remote paths, sorted.
func (b *Backend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Puts returns how many objects were transmitted.
func (b *Backend) Puts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.puts
}

// Deletes returns how many objects were removed.
func (b *Backend) Deletes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deletes
}

// SetOpenErr makes subsequent batches halt with err (nil clears it).
func (b *Backend) SetOpenErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.OpenErr = err
}

func sum(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}
