// Package queuetest is the conformance suite every queue.Repository
// implementation runs.
package queuetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/queue"
)

// Factory returns a fresh, empty repository.
type Factory func(t *testing.T) queue.Repository

// Run executes the suite against repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("AddAndGet", func(t *testing.T) { testAddAndGet(t, newRepo(t)) })
	t.Run("Uniqueness", func(t *testing.T) { testUniqueness(t, newRepo(t)) })
	t.Run("CancelOut", func(t *testing.T) { testCancelOut(t, newRepo(t)) })
	t.Run("SecondAddWins", func(t *testing.T) { testSecondAddWins(t, newRepo(t)) })
	t.Run("OrderAndLimit", func(t *testing.T) { testOrderAndLimit(t, newRepo(t)) })
	t.Run("UpdateReAges", func(t *testing.T) { testUpdateReAges(t, newRepo(t)) })
	t.Run("MissingIDsAreNoOps", func(t *testing.T) { testMissingIDs(t, newRepo(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("Empty", func(t *testing.T) { testEmpty(t, newRepo(t)) })
	t.Run("RemotePaths", func(t *testing.T) { testRemotePaths(t, newRepo(t)) })
	t.Run("ConcurrentAdds", func(t *testing.T) { testConcurrentAdds(t, newRepo(t)) })
}

// pause separates timestamps on stores with coarse clocks.
func pause() { time.Sleep(5 * time.Millisecond) }

func mustGet(t *testing.T, repo queue.Repository, limit int) queue.Groups {
	t.Helper()
	groups, err := repo.Get(context.Background(), limit)
	require.NoError(t, err)
	return groups
}

func testAddAndGet(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, "/var/www/a.css", "a.css", cdn.CommandUpload, ""))
	pause()
	require.NoError(t, repo.Add(ctx, "/var/www/b.css", "b.css", cdn.CommandDelete, "unable to delete object"))

	groups := mustGet(t, repo, 0)
	require.Len(t, groups[cdn.CommandUpload], 1)
	require.Len(t, groups[cdn.CommandDelete], 1)

	up := groups[cdn.CommandUpload][0]
	assert.NotZero(t, up.ID)
	assert.Equal(t, "/var/www/a.css", up.LocalPath)
	assert.Equal(t, "a.css", up.RemotePath)
	assert.Equal(t, cdn.CommandUpload, up.Command)
	assert.Empty(t, up.LastError)
	assert.False(t, up.Date.IsZero())

	assert.Equal(t, "unable to delete object", groups[cdn.CommandDelete][0].LastError)
}

func testUniqueness(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandUpload, ""))
	}
	require.NoError(t, repo.Add(ctx, "/l", "r2", cdn.CommandUpload, ""))

	groups := mustGet(t, repo, 0)
	assert.Equal(t, 2, groups.Len(), "same pair is stored once, other remote is distinct")
}

func testCancelOut(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandUpload, ""))
	require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandDelete, ""))
	assert.Zero(t, mustGet(t, repo, 0).Len())

	require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandDelete, ""))
	require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandUpload, ""))
	assert.Zero(t, mustGet(t, repo, 0).Len())

	// a third add after cancel-out enqueues again
	require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandUpload, ""))
	assert.Equal(t, 1, mustGet(t, repo, 0).Len())
}

func testSecondAddWins(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandUpload, "first"))
	first := mustGet(t, repo, 0)[cdn.CommandUpload][0]
	pause()
	require.NoError(t, repo.Add(ctx, "/l", "r", cdn.CommandUpload, "second"))

	groups := mustGet(t, repo, 0)
	require.Len(t, groups[cdn.CommandUpload], 1)
	second := groups[cdn.CommandUpload][0]
	assert.Equal(t, "second", second.LastError)
	assert.False(t, second.Date.Before(first.Date))
}

func testOrderAndLimit(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	locals := []string{"/1", "/2", "/3", "/4", "/5"}
	for i, l := range locals {
		cmd := cdn.CommandUpload
		if i%2 == 1 {
			cmd = cdn.CommandDelete
		}
		require.NoError(t, repo.Add(ctx, l, l, cmd, ""))
		pause()
	}

	all := mustGet(t, repo, 0).All()
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, locals[i], e.LocalPath)
	}

	page := mustGet(t, repo, 3)
	assert.Equal(t, 3, page.Len())
	require.Len(t, page[cdn.CommandUpload], 2)
	assert.Equal(t, "/1", page[cdn.CommandUpload][0].LocalPath)
	assert.Equal(t, "/3", page[cdn.CommandUpload][1].LocalPath)
	require.Len(t, page[cdn.CommandDelete], 1)
	assert.Equal(t, "/2", page[cdn.CommandDelete][0].LocalPath)
}

func testUpdateReAges(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, "/old", "old", cdn.CommandUpload, ""))
	pause()
	require.NoError(t, repo.Add(ctx, "/new", "new", cdn.CommandUpload, ""))
	pause()

	oldest := mustGet(t, repo, 1)[cdn.CommandUpload][0]
	require.Equal(t, "/old", oldest.LocalPath)
	require.NoError(t, repo.Update(ctx, oldest.ID, "unable to put object"))

	all := mustGet(t, repo, 0).All()
	require.Len(t, all, 2)
	assert.Equal(t, "/new", all[0].LocalPath)
	assert.Equal(t, "/old", all[1].LocalPath)
	assert.Equal(t, "unable to put object", all[1].LastError)
	assert.Equal(t, oldest.ID, all[1].ID, "update keeps the id")
}

func testMissingIDs(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	assert.NoError(t, repo.Update(ctx, 987654, "x"))
	assert.NoError(t, repo.Delete(ctx, 987654))
	assert.Zero(t, mustGet(t, repo, 0).Len())
}

func testDelete(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, "/a", "a", cdn.CommandUpload, ""))
	require.NoError(t, repo.Add(ctx, "/b", "b", cdn.CommandUpload, ""))

	entries := mustGet(t, repo, 0)[cdn.CommandUpload]
	require.Len(t, entries, 2)
	require.NoError(t, repo.Delete(ctx, entries[0].ID))

	left := mustGet(t, repo, 0)[cdn.CommandUpload]
	require.Len(t, left, 1)
	assert.Equal(t, entries[1].ID, left[0].ID)

	// the pair can be queued again once deleted
	require.NoError(t, repo.Add(ctx, entries[0].LocalPath, entries[0].RemotePath, cdn.CommandDelete, ""))
	assert.Len(t, mustGet(t, repo, 0)[cdn.CommandDelete], 1)
}

func testEmpty(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, "/a", "a", cdn.CommandUpload, ""))
	require.NoError(t, repo.Add(ctx, "/b", "b", cdn.CommandUpload, ""))
	require.NoError(t, repo.Add(ctx, "/c", "c", cdn.CommandDelete, ""))

	n, err := repo.Empty(ctx, cdn.CommandUpload)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	groups := mustGet(t, repo, 0)
	assert.Empty(t, groups[cdn.CommandUpload])
	assert.Len(t, groups[cdn.CommandDelete], 1)

	n, err = repo.Empty(ctx, cdn.CommandUpload)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testRemotePaths(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, "/srv/a.png", "wp-content/a.png", cdn.CommandUpload, ""))
	require.NoError(t, repo.Add(ctx, "/srv/b.png", "wp-content/b.png", cdn.CommandDelete, ""))

	paths, err := queue.RemotePaths(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.Contains(t, paths, "wp-content/a.png")
	assert.Contains(t, paths, "wp-content/b.png")
}

func testConcurrentAdds(t *testing.T, repo queue.Repository) {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				assert.NoError(t, repo.Add(ctx, "/same", "same", cdn.CommandUpload, ""))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, mustGet(t, repo, 0).Len())
}
