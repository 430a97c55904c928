package site

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/database"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := database.Open(&database.Config{
		Type:   database.TypeSQLite,
		SQLite: database.SQLiteConfig{Path: filepath.Join(t.TempDir(), "site.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	c, err := NewCatalog(db)
	require.NoError(t, err)
	return c
}

func TestCatalogAttachments(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)

	for _, a := range []*Attachment{
		{File: "2024/01/a.png"},
		{File: "", Title: "no file"},
		{File: "2024/01/b.png", Metadata: &AttachmentMetadata{File: "2024/01/b.png", Sizes: map[string]string{"thumb": "b-150x150.png"}}},
		{File: "2024/01/c.png"},
	} {
		require.NoError(t, c.InsertAttachment(ctx, a))
	}

	n, err := c.CountAttachments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := c.ListAttachments(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "2024/01/a.png", page[0].File)
	assert.Equal(t, "2024/01/b.png", page[1].File)
	require.NotNil(t, page[1].Metadata)
	assert.Equal(t, "b-150x150.png", page[1].Metadata.Sizes["thumb"])

	page, err = c.ListAttachments(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "2024/01/c.png", page[0].File)

	got, err := c.GetAttachment(ctx, page[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "2024/01/c.png", got.File)

	require.NoError(t, c.DeleteAttachment(ctx, got.ID))
	_, err = c.GetAttachment(ctx, got.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.DeleteAttachment(ctx, got.ID), ErrNotFound)
}

func TestCatalogPosts(t *testing.T) {
	ctx := context.Background()
	c := newCatalog(t)
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	posts := []*Post{
		{Title: "img", Content: `<img src="/a.png">`, Status: StatusPublish, Type: TypePost, Date: date},
		{Title: "plain", Content: "no references", Status: StatusPublish, Type: TypePost, Date: date},
		{Title: "draft", Content: `<a href="/x">`, Status: "draft", Type: TypePost, Date: date},
		{Title: "page", Content: `<a href="/x">`, Status: StatusPublish, Type: "page", Date: date},
		{Title: "link", Content: `<a href="/b.pdf">b</a>`, Status: StatusPublish, Type: TypePost, Date: date},
	}
	for _, p := range posts {
		require.NoError(t, c.InsertPost(ctx, p))
	}

	n, err := c.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, err := c.ListPosts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "img", page[0].Title)
	assert.Equal(t, "link", page[1].Title)

	require.NoError(t, c.UpdatePostContent(ctx, page[0].ID, `<img src="https://cdn/a.png">`))
	page, err = c.ListPosts(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, `<img src="https://cdn/a.png">`, page[0].Content)

	assert.ErrorIs(t, c.UpdatePostContent(ctx, 9999, "x"), ErrNotFound)
}
