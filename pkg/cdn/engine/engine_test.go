package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/cdn/fs"
	"github.com/marmos91/dittocdn/pkg/cdn/memory"
	"github.com/marmos91/dittocdn/pkg/cdn/mirror"
	"github.com/marmos91/dittocdn/pkg/cdn/s3"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		engine string
		via    string
	}{
		{"mirror", Config{Engine: Mirror, Mirror: mirror.Config{Domains: []string{"m.example.com"}}}, Mirror, "Mirror: m.example.com"},
		{"s3", Config{Engine: S3, S3: s3.Config{Bucket: "b"}}, S3, "Amazon Simple Storage Service (S3): b.s3.amazonaws.com"},
		{"fs", Config{Engine: FS, FS: fs.Config{Root: "/srv", Domains: []string{"static.example.com"}}}, FS, "Filesystem: static.example.com"},
		{"memory", Config{Engine: Memory, MemoryDomains: []string{"mem.example.com"}}, Memory, "Memory: mem.example.com"},
		{"case insensitive", Config{Engine: "S3", S3: s3.Config{Bucket: "b"}}, S3, "Amazon Simple Storage Service (S3): b.s3.amazonaws.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.engine, cdn.EngineName(b))
			assert.Equal(t, tt.via, b.Via())
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Engine: "rackspace"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown cdn engine")
	})
}

func TestGlobalSSL(t *testing.T) {
	b, err := New(Config{Engine: Mirror, SSL: true, Mirror: mirror.Config{Domains: []string{"m.example.com"}}}, nil)
	require.NoError(t, err)

	url, ok := b.FormatURL("a.css")
	require.True(t, ok)
	assert.Equal(t, "https://m.example.com/a.css", url)
}

type countingMetrics struct {
	ops    map[string]int
	failed int
}

func (c *countingMetrics) ObserveOperation(_, op string, _ time.Duration, failed int) {
	c.ops[op]++
	c.failed += failed
}

func TestInstrumentedRecordsMetrics(t *testing.T) {
	m := &countingMetrics{ops: map[string]int{}}
	mem := memory.New("cdn.example.com")
	mem.SetOpenErr(errors.New("connection refused"))
	b := Instrument(mem, m)

	files := []cdn.File{{Local: "a", Remote: "a"}, {Local: "b", Remote: "b"}}
	count, results := b.Upload(context.Background(), files, false)
	assert.Zero(t, count)
	assert.Equal(t, cdn.OutcomeHalt, results[0].Outcome)
	assert.Equal(t, 1, m.ops["upload"])
	assert.Equal(t, 2, m.failed)

	assert.Error(t, b.Test(context.Background()))
	assert.Equal(t, 1, m.ops["test"])
	assert.Equal(t, 3, m.failed)
}

func TestInstrumentedDelegates(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("cdn.example.com")
	b := Instrument(mem, nil)

	dir := t.TempDir()
	local := filepath.Join(dir, "a.css")
	require.NoError(t, os.WriteFile(local, []byte("a{}"), 0644))

	count, results := b.Upload(ctx, []cdn.File{{Local: local, Remote: "a.css"}}, false)
	assert.Equal(t, 1, count)
	assert.Equal(t, cdn.OutcomeOK, results[0].Outcome)
	assert.Equal(t, 1, mem.Puts())

	count, _ = b.Delete(ctx, []cdn.File{{Local: local, Remote: "a.css"}})
	assert.Equal(t, 1, count)

	require.NoError(t, b.Test(ctx))
	require.NoError(t, b.CreateContainer(ctx))
	assert.Equal(t, "memory", b.Engine())
	assert.Same(t, mem, b.Unwrap())
	assert.Equal(t, []string{"cdn.example.com"}, b.Domains())
}

func TestInstrumentedCreateContainerUnsupported(t *testing.T) {
	b := Instrument(mirror.New(mirror.Config{Domains: []string{"m"}}, nil), nil)
	err := b.CreateContainer(context.Background())
	assert.ErrorIs(t, err, ErrNoContainer)
}
