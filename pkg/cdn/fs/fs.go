// Package fs implements an engine that publishes into a local directory,
// typically the document root of a static origin or a mounted volume served
// by a CDN.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittocdn/internal/bufpool"
	"github.com/marmos91/dittocdn/pkg/cdn"
)

const engine = "fs"

// Config holds configuration for the filesystem engine.
type Config struct {
	// Root is the publish directory; remote paths are relative to it.
	Root string `mapstructure:"root" yaml:"root"`

	Domains []string `mapstructure:"domains" yaml:"domains"`
	SSL     bool     `mapstructure:"ssl" yaml:"ssl"`

	// DirMode is the permission mode for created directories. Default: 0755
	DirMode os.FileMode `mapstructure:"dir_mode" yaml:"dir_mode"`

	// FileMode is the permission mode for published files. Default: 0644
	FileMode os.FileMode `mapstructure:"file_mode" yaml:"file_mode"`
}

// Backend publishes files under a root directory.
type Backend struct {
	cdn.Base
	cfg Config

	// mu serializes writes to the same tree; reads of unrelated keys would
	// be safe, but batches are small and sequential anyway.
	mu sync.Mutex
}

var (
	_ cdn.Backend          = (*Backend)(nil)
	_ cdn.ContainerCreator = (*Backend)(nil)
)

// New creates the engine. The root is not required to exist yet.
func New(cfg Config) *Backend {
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}
	return &Backend{Base: cdn.Base{Hosts: cfg.Domains, SSL: cfg.SSL}, cfg: cfg}
}

// Engine implements cdn.Named
func (b *Backend) Engine() string { return engine }

type session struct{ root string }

func (b *Backend) open(context.Context) (session, error) {
	if b.cfg.Root == "" {
		return session{}, cdn.NewValidationError(engine, "root", "empty root directory")
	}
	info, err := os.Stat(b.cfg.Root)
	if err != nil {
		return session{}, cdn.NewHaltError(engine, fmt.Errorf("unable to open root: %w", err))
	}
	if !info.IsDir() {
		return session{}, cdn.NewHaltError(engine, fmt.Errorf("root is not a directory: %s", b.cfg.Root))
	}
	return session{root: filepath.Clean(b.cfg.Root)}, nil
}

// objectPath resolves remote under root, refusing keys that escape it.
func (s session) objectPath(remote string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(remote, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid remote path: %q", remote)
	}
	return filepath.Join(s.root, rel), nil
}

// Upload implements cdn.Backend
func (b *Backend) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(_ context.Context, s session, f cdn.File) error {
		if err := cdn.CheckSource(f.Local); err != nil {
			return err
		}
		dst, err := s.objectPath(f.Remote)
		if err != nil {
			return cdn.NewItemError("put object", f.Remote, err)
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		if !force {
			if remoteSum, err := cdn.LocalMD5(dst); err == nil {
				localSum, err := cdn.LocalMD5(f.Local)
				if err != nil {
					return cdn.NewItemError("get object info", f.Remote, err)
				}
				if localSum == remoteSum {
					return cdn.ErrAlreadyExists
				}
			} else if !errors.Is(err, iofs.ErrNotExist) {
				return cdn.NewItemError("get object info", f.Remote, err)
			}
		}

		if err := b.writeFile(f.Local, dst); err != nil {
			return cdn.NewItemError("put object", f.Remote, err)
		}
		return nil
	})
}

// writeFile copies src to a temporary sibling of dst, then renames it into
// place so readers never observe a partial object.
func (b *Backend) writeFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), b.cfg.DirMode); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp-" + uuid.NewString()
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, b.cfg.FileMode)
	if err != nil {
		return err
	}
	if _, err := bufpool.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Delete implements cdn.Backend
func (b *Backend) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(_ context.Context, s session, f cdn.File) error {
		path, err := s.objectPath(f.Remote)
		if err != nil {
			return cdn.NewItemError("delete object", f.Remote, err)
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		if err := os.Remove(path); err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				return cdn.NewItemError("delete object", f.Remote, cdn.ErrNotFound)
			}
			return cdn.NewItemError("delete object", f.Remote, err)
		}
		s.cleanEmptyDirs(filepath.Dir(path))
		return nil
	})
}

// cleanEmptyDirs removes empty directories up to the root.
func (s session) cleanEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

// Test implements cdn.Backend
func (b *Backend) Test(ctx context.Context) error {
	s, err := b.open(ctx)
	if err != nil {
		return err
	}
	probe := "test_fs_" + uuid.NewString()
	path := filepath.Join(s.root, probe)

	if err := os.WriteFile(path, []byte(probe), b.cfg.FileMode); err != nil {
		return fmt.Errorf("unable to write probe: %w", err)
	}
	defer func() { _ = os.Remove(path) }()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read probe: %w", err)
	}
	if string(data) != probe {
		return cdn.ErrProbeMismatch
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("unable to delete probe: %w", err)
	}
	return nil
}

// Via implements cdn.Backend
func (b *Backend) Via() string {
	return fmt.Sprintf("Filesystem: %s", b.Base.Via())
}

// CreateContainer creates the root directory.
func (b *Backend) CreateContainer(context.Context) error {
	if b.cfg.Root == "" {
		return cdn.NewValidationError(engine, "root", "empty root directory")
	}
	if _, err := os.Stat(b.cfg.Root); err == nil {
		return fmt.Errorf("container already exists: %s", b.cfg.Root)
	}
	if err := os.MkdirAll(b.cfg.Root, b.cfg.DirMode); err != nil {
		return fmt.Errorf("unable to create container: %s (%v)", b.cfg.Root, err)
	}
	return nil
}
