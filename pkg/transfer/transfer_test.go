package transfer

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
	cdnmemory "github.com/marmos91/dittocdn/pkg/cdn/memory"
	"github.com/marmos91/dittocdn/pkg/queue"
	qmemory "github.com/marmos91/dittocdn/pkg/queue/memory"
	"github.com/marmos91/dittocdn/pkg/site"
)

type fixture struct {
	layout  *site.Layout
	backend *cdnmemory.Backend
	repo    *qmemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	layout := &site.Layout{Root: t.TempDir(), URL: "https://example.com"}
	layout.ApplyDefaults()

	repo := qmemory.New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return &fixture{layout: layout, backend: cdnmemory.New("cdn.example.com"), repo: repo}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := f.layout.LocalPath(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) enqueue(t *testing.T, cmd cdn.Command, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		file := f.layout.File(rel)
		require.NoError(t, f.repo.Add(context.Background(), file.Local, file.Remote, cmd, ""))
	}
}

func (f *fixture) entries(t *testing.T) []*queue.Entry {
	t.Helper()
	groups, err := f.repo.Get(context.Background(), 0)
	require.NoError(t, err)
	return groups.All()
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("DeliversAndDeletesEntries", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "wp-content/uploads/a.png", "a")
		f.write(t, "wp-content/uploads/b.png", "b")
		f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/a.png", "wp-content/uploads/b.png")

		report, err := NewProcessor(f.repo, f.backend, ProcessorConfig{}).Process(ctx, 0)
		require.NoError(t, err)

		assert.Equal(t, 2, report.Processed)
		assert.Equal(t, 2, report.Succeeded)
		assert.False(t, report.Halted())
		assert.Empty(t, f.entries(t))
		assert.Equal(t, []string{"wp-content/uploads/a.png", "wp-content/uploads/b.png"}, f.backend.Keys())
	})

	t.Run("FailedEntriesAreReAged", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "wp-content/uploads/ok.png", "ok")
		f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/missing.png", "wp-content/uploads/ok.png")
		before := f.entries(t)[0].Date

		report, err := NewProcessor(f.repo, f.backend, ProcessorConfig{}).Process(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, 1, report.Failed)

		left := f.entries(t)
		require.Len(t, left, 1)
		assert.Equal(t, f.layout.RemotePath("wp-content/uploads/missing.png"), left[0].RemotePath)
		assert.Equal(t, cdn.ErrSourceNotFound.Error(), left[0].LastError)
		assert.True(t, left[0].Date.After(before))
	})

	t.Run("HaltLeavesRowsUntouched", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "wp-content/uploads/a.png", "a")
		f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/a.png")
		f.enqueue(t, cdn.CommandDelete, "wp-content/uploads/gone.png")
		before := f.entries(t)
		f.backend.SetOpenErr(errors.New("connection refused"))

		report, err := NewProcessor(f.repo, f.backend, ProcessorConfig{}).Process(ctx, 0)
		require.NoError(t, err)

		assert.True(t, report.Halted())
		require.Len(t, report.Halts, 2)
		assert.Equal(t, cdn.CommandUpload, report.Halts[0].Command)
		assert.Equal(t, cdn.CommandDelete, report.Halts[1].Command)
		assert.Equal(t, "connection refused", report.Halts[0].Message)
		assert.Zero(t, report.Succeeded)
		assert.Zero(t, report.Failed)
		assert.Equal(t, before, f.entries(t))
	})

	t.Run("UntilEmptyVisitsEveryItemOnce", func(t *testing.T) {
		f := newFixture(t)
		var rels []string
		for _, name := range []string{"1", "2", "3", "4", "5"} {
			rel := "wp-content/uploads/" + name + ".css"
			f.write(t, rel, name)
			rels = append(rels, rel)
		}
		f.enqueue(t, cdn.CommandUpload, rels...)

		p := NewProcessor(f.repo, f.backend, ProcessorConfig{Limit: 2})
		seen := make(map[string]int)
		for runs := 0; runs < 10; runs++ {
			report, err := p.Process(ctx, 0)
			require.NoError(t, err)
			if report.Processed == 0 {
				break
			}
			assert.LessOrEqual(t, report.Processed, 2)
			for _, r := range report.Results {
				seen[r.RemotePath]++
			}
		}
		assert.Len(t, seen, 5)
		for path, n := range seen {
			assert.Equal(t, 1, n, path)
		}
		assert.Equal(t, 5, f.backend.Puts())
	})

	t.Run("UploadsBeforeDeletes", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "wp-content/uploads/new.png", "new")
		f.backend.Put(f.layout.RemotePath("wp-content/uploads/old.png"), []byte("old"))
		f.enqueue(t, cdn.CommandDelete, "wp-content/uploads/old.png")
		f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/new.png")

		report, err := NewProcessor(f.repo, f.backend, ProcessorConfig{}).Process(ctx, 0)
		require.NoError(t, err)
		require.Len(t, report.Results, 2)
		assert.Equal(t, "wp-content/uploads/new.png", report.Results[0].RemotePath)
		assert.Equal(t, "wp-content/uploads/old.png", report.Results[1].RemotePath)
		assert.Equal(t, 1, f.backend.Deletes())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		f := newFixture(t)
		f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/a.png")
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewProcessor(f.repo, f.backend, ProcessorConfig{}).Process(cctx, 0)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, f.entries(t), 1)
	})
}

func TestTransferrer(t *testing.T) {
	ctx := context.Background()

	t.Run("UploadSucceeds", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "wp-content/uploads/2024/05/a.jpg", "a")
		tr := NewTransferrer(f.layout, f.backend, f.repo, nil)

		n, results, err := tr.Upload(ctx, []string{"wp-content/uploads/2024/05/a.jpg"}, true)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, cdn.OutcomeOK, results[0].Outcome)
		assert.Empty(t, f.entries(t))
	})

	t.Run("FailuresQueuedWhenRequested", func(t *testing.T) {
		f := newFixture(t)
		tr := NewTransferrer(f.layout, f.backend, f.repo, nil)

		_, _, err := tr.Upload(ctx, []string{"wp-content/uploads/missing.jpg"}, true)
		require.NoError(t, err)

		left := f.entries(t)
		require.Len(t, left, 1)
		assert.Equal(t, cdn.CommandUpload, left[0].Command)
		assert.Equal(t, cdn.ErrSourceNotFound.Error(), left[0].LastError)
	})

	t.Run("FailuresNotQueuedByDefault", func(t *testing.T) {
		f := newFixture(t)
		tr := NewTransferrer(f.layout, f.backend, f.repo, nil)

		_, results, err := tr.Delete(ctx, []string{"wp-content/uploads/missing.jpg"}, false)
		require.NoError(t, err)
		assert.Equal(t, cdn.OutcomeError, results[0].Outcome)
		assert.Empty(t, f.entries(t))
	})

	t.Run("SettledFailuresNotQueued", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, "wp-content/uploads/a.jpg", "a")
		f.backend.Put(f.layout.RemotePath("wp-content/uploads/a.jpg"), []byte("a"))
		tr := NewTransferrer(f.layout, f.backend, f.repo, nil)

		_, results, err := tr.Upload(ctx, []string{"wp-content/uploads/a.jpg"}, true)
		require.NoError(t, err)
		assert.Equal(t, cdn.OutcomeError, results[0].Outcome)
		assert.True(t, results[0].IsAlreadyExists())

		_, results, err = tr.Delete(ctx, []string{"wp-content/uploads/gone.jpg"}, true)
		require.NoError(t, err)
		assert.Equal(t, cdn.OutcomeError, results[0].Outcome)
		assert.ErrorIs(t, results[0].Err, cdn.ErrNotFound)

		assert.Empty(t, f.entries(t))
	})

	t.Run("SettledDeleteCancelsQueuedUpload", func(t *testing.T) {
		f := newFixture(t)
		f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/gone.jpg", "wp-content/uploads/kept.jpg")
		tr := NewTransferrer(f.layout, f.backend, f.repo, nil)

		_, results, err := tr.Delete(ctx, []string{"wp-content/uploads/gone.jpg"}, true)
		require.NoError(t, err)
		assert.ErrorIs(t, results[0].Err, cdn.ErrNotFound)

		left := f.entries(t)
		require.Len(t, left, 1)
		assert.Equal(t, "wp-content/uploads/kept.jpg", left[0].RemotePath)
	})

	t.Run("HaltsQueued", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetOpenErr(errors.New("login incorrect"))
		tr := NewTransferrer(f.layout, f.backend, f.repo, nil)

		_, results, err := tr.Delete(ctx, []string{"wp-content/uploads/a.jpg", "wp-content/uploads/b.jpg"}, true)
		require.NoError(t, err)
		assert.Equal(t, cdn.OutcomeHalt, results[0].Outcome)

		left := f.entries(t)
		require.Len(t, left, 2)
		assert.Equal(t, "login incorrect", left[0].LastError)
	})

	t.Run("DeleteCancelsQueuedUpload", func(t *testing.T) {
		f := newFixture(t)
		f.backend.SetOpenErr(errors.New("down"))
		tr := NewTransferrer(f.layout, f.backend, f.repo, nil)

		_, _, err := tr.Upload(ctx, []string{"wp-content/uploads/a.jpg"}, true)
		require.NoError(t, err)
		_, _, err = tr.Delete(ctx, []string{"wp-content/uploads/a.jpg"}, true)
		require.NoError(t, err)
		assert.Empty(t, f.entries(t))
	})
}

func TestScheduler(t *testing.T) {
	f := newFixture(t)
	f.write(t, "wp-content/uploads/a.png", "a")
	f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/a.png")

	s := NewScheduler(NewProcessor(f.repo, f.backend, ProcessorConfig{}), 10*time.Millisecond)
	s.Start(context.Background())
	s.Start(context.Background())

	require.Eventually(t, func() bool { return s.Stats().Runs >= 2 }, 2*time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))

	stats := s.Stats()
	assert.Equal(t, 1, stats.Processed)
	assert.Zero(t, stats.Halts)
	assert.Empty(t, stats.LastError)
	assert.Empty(t, f.entries(t))
}

func TestSchedulerRecordsHalts(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, cdn.CommandUpload, "wp-content/uploads/a.png")
	f.backend.SetOpenErr(errors.New("offline"))

	s := NewScheduler(NewProcessor(f.repo, f.backend, ProcessorConfig{}), 0)
	assert.Equal(t, DefaultInterval, s.interval)

	s.RunOnce(context.Background())
	stats := s.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 1, stats.Halts)
	assert.Equal(t, "offline", stats.LastError)
}
