package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

func setup(t *testing.T) (*Backend, string, string) {
	t.Helper()
	src := t.TempDir()
	root := filepath.Join(t.TempDir(), "publish")
	b := New(Config{Root: root, Domains: []string{"static.example.com"}})
	require.NoError(t, b.CreateContainer(context.Background()))
	return b, src, root
}

func TestCreateContainer(t *testing.T) {
	b, _, root := setup(t)
	err := b.CreateContainer(context.Background())
	require.Error(t, err)
	assert.Equal(t, "container already exists: "+root, err.Error())

	err = New(Config{}).CreateContainer(context.Background())
	assert.EqualError(t, err, "empty root directory")
}

func TestUploadDelete(t *testing.T) {
	ctx := context.Background()
	b, src, root := setup(t)

	local := filepath.Join(src, "logo.png")
	require.NoError(t, os.WriteFile(local, []byte("png"), 0644))
	files := []cdn.File{{Local: local, Remote: "wp-content/uploads/2024/01/logo.png"}}

	t.Run("upload", func(t *testing.T) {
		count, results := b.Upload(ctx, files, false)
		require.Equal(t, 1, count, results)
		data, err := os.ReadFile(filepath.Join(root, "wp-content/uploads/2024/01/logo.png"))
		require.NoError(t, err)
		assert.Equal(t, "png", string(data))

		entries, err := os.ReadDir(filepath.Join(root, "wp-content/uploads/2024/01"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temporary files left behind")
	})

	t.Run("already exists", func(t *testing.T) {
		count, results := b.Upload(ctx, files, false)
		assert.Zero(t, count)
		assert.True(t, results[0].IsAlreadyExists())
	})

	t.Run("changed content uploads", func(t *testing.T) {
		require.NoError(t, os.WriteFile(local, []byte("png2"), 0644))
		count, _ := b.Upload(ctx, files, false)
		assert.Equal(t, 1, count)
	})

	t.Run("delete cleans empty dirs", func(t *testing.T) {
		count, _ := b.Delete(ctx, files)
		assert.Equal(t, 1, count)
		_, err := os.Stat(filepath.Join(root, "wp-content"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(root)
		assert.NoError(t, err, "root survives")
	})

	t.Run("delete missing", func(t *testing.T) {
		count, results := b.Delete(ctx, files)
		assert.Zero(t, count)
		assert.ErrorIs(t, results[0].Err, cdn.ErrNotFound)
	})
}

func TestEscapingPathRejected(t *testing.T) {
	b, src, _ := setup(t)
	local := filepath.Join(src, "x")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0644))

	_, results := b.Upload(context.Background(), []cdn.File{{Local: local, Remote: "../../etc/x"}}, true)
	assert.Equal(t, cdn.OutcomeError, results[0].Outcome)
}

func TestMissingRootHalts(t *testing.T) {
	b := New(Config{Root: filepath.Join(t.TempDir(), "nope")})
	_, results := b.Upload(context.Background(), []cdn.File{{Local: "a", Remote: "a"}}, false)
	assert.Equal(t, cdn.OutcomeHalt, results[0].Outcome)
	assert.Error(t, b.Test(context.Background()))
}

func TestProbe(t *testing.T) {
	b, _, root := setup(t)
	require.NoError(t, b.Test(context.Background()))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, "Filesystem: static.example.com", b.Via())
}
