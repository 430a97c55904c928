package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/cdn"
	cdnmemory "github.com/marmos91/dittocdn/pkg/cdn/memory"
	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/rewrite"
	"github.com/marmos91/dittocdn/pkg/site"
)

type fixture struct {
	layout  *site.Layout
	catalog *site.Catalog
	backend *cdnmemory.Backend
	runner  *Runner
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	layout := &site.Layout{Root: t.TempDir(), URL: "https://example.com"}
	layout.ApplyDefaults()

	db, err := database.Open(&database.Config{
		Type:   database.TypeSQLite,
		SQLite: database.SQLiteConfig{Path: filepath.Join(t.TempDir(), "site.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	catalog, err := site.NewCatalog(db)
	require.NoError(t, err)

	backend := cdnmemory.New("cdn.example.com")
	runner, err := NewRunner(cfg, layout, backend, catalog, nil)
	require.NoError(t, err)
	return &fixture{layout: layout, catalog: catalog, backend: backend, runner: runner}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := f.layout.LocalPath(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) post(t *testing.T, content string) *site.Post {
	t.Helper()
	p := &site.Post{
		Title:   "post",
		Content: content,
		Status:  site.StatusPublish,
		Type:    site.TypePost,
		Date:    time.Date(2010, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.catalog.InsertPost(context.Background(), p))
	return p
}

func (f *fixture) content(t *testing.T, id uint) string {
	t.Helper()
	posts, err := f.catalog.ListPosts(context.Background(), 0, 0)
	require.NoError(t, err)
	for _, p := range posts {
		if p.ID == id {
			return p.Content
		}
	}
	t.Fatalf("post %d not found", id)
	return ""
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	f.write(t, "wp-content/uploads/2024/05/a.jpg", "a")
	f.write(t, "wp-content/uploads/2024/05/a-150x150.jpg", "a-thumb")
	f.write(t, "wp-content/uploads/b.pdf", "b")
	for _, a := range []*site.Attachment{
		{File: "2024/05/a.jpg", Metadata: &site.AttachmentMetadata{File: "2024/05/a.jpg", Sizes: map[string]string{"thumbnail": "a-150x150.jpg"}}},
		{File: "b.pdf"},
		{File: "2024/05/missing.png"},
	} {
		require.NoError(t, f.catalog.InsertAttachment(ctx, a))
	}

	var pages []*Report
	err := Drive(ctx, f.runner.Export, 2, func(_ Page, r *Report) { pages = append(pages, r) })
	require.NoError(t, err)

	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[0].Count)
	assert.Equal(t, 3, pages[0].Total)
	assert.Len(t, pages[0].Results, 3)
	assert.Equal(t, 1, pages[1].Count)
	require.Len(t, pages[1].Results, 1)
	assert.Equal(t, cdn.OutcomeError, pages[1].Results[0].Outcome)
	assert.Equal(t, cdn.ErrSourceNotFound.Error(), pages[1].Results[0].Message)

	assert.Equal(t, []string{
		"wp-content/uploads/2024/05/a-150x150.jpg",
		"wp-content/uploads/2024/05/a.jpg",
		"wp-content/uploads/b.pdf",
	}, f.backend.Keys())

	t.Run("RerunSkipsExisting", func(t *testing.T) {
		report, err := f.runner.Export(ctx, Page{Limit: 1})
		require.NoError(t, err)
		for _, it := range report.Results {
			assert.Equal(t, cdn.OutcomeError, it.Outcome)
			assert.Equal(t, cdn.ErrAlreadyExists.Error(), it.Message)
		}
		assert.Equal(t, 3, f.backend.Puts())
	})
}

func TestExportFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	files := []string{"wp-includes/a.js", "wp-includes/b.js", "wp-includes/c.js"}
	for _, rel := range files {
		f.write(t, rel, rel)
	}

	report, err := f.runner.ExportFiles(ctx, files, Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, "wp-includes/c.js", report.Results[0].Path)

	report, err = f.runner.ExportFiles(ctx, files, Page{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Zero(t, report.Count)
	assert.Empty(t, report.Results)
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Groups: rewrite.Config{
		CustomMasks: []string{"https://example.com/favicon.ico", "assets/*.SVG"},
	}})

	for _, rel := range []string{
		"wp-includes/js/jquery/jquery.js",
		"wp-includes/css/Editor.CSS",
		"wp-includes/version.php",
		"wp-content/themes/default/style.css",
		"wp-content/themes/default/favicon.ico",
		"wp-content/themes/default/readme.txt",
		"wp-content/cache/minify/abc.include.css",
		"wp-content/cache/minify/abc.include-footer-nb.js",
		"wp-content/cache/minify/notes.txt",
		"favicon.ico",
		"assets/logo.svg",
		"assets/deep/icon.svg",
	} {
		f.write(t, rel, rel)
	}

	tests := []struct {
		group string
		want  []string
	}{
		{rewrite.GroupIncludes, []string{"wp-includes/css/Editor.CSS", "wp-includes/js/jquery/jquery.js"}},
		{rewrite.GroupTheme, []string{"wp-content/themes/default/favicon.ico", "wp-content/themes/default/style.css"}},
		{rewrite.GroupMinify, []string{"wp-content/cache/minify/abc.include-footer-nb.js", "wp-content/cache/minify/abc.include.css"}},
	}
	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			files, err := f.runner.Discover(ctx, tt.group)
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}

	t.Run("custom", func(t *testing.T) {
		files, err := f.runner.Discover(ctx, rewrite.GroupCustom)
		require.NoError(t, err)
		assert.Contains(t, files, "favicon.ico")
		assert.Contains(t, files, "wp-content/themes/default/favicon.ico")
		assert.Contains(t, files, "assets/logo.svg")
		assert.Contains(t, files, "assets/deep/icon.svg")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := f.runner.Discover(ctx, "uploads")
		assert.Error(t, err)
	})
}

func TestImport(t *testing.T) {
	ctx := context.Background()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote " + r.URL.Path))
	}))
	defer remote.Close()

	f := newFixture(t, Config{Import: ImportConfig{External: true, Retries: 1}})
	f.write(t, "images/local.jpg", "local")
	f.write(t, "wp-content/uploads/2010/03/taken.png", "taken")
	f.write(t, "wp-content/uploads/old/inside.gif", "inside")

	post := f.post(t, `<p><img src="https://example.com/images/local.jpg">`+
		`<img src="`+remote.URL+`/photo.png">`+
		`<img src="`+remote.URL+`/missing.png">`+
		`<a href="/other/taken.png">t</a>`+
		`<img src="/wp-content/uploads/old/inside.gif">`+
		`<a href="/about/">about</a>`+
		`<img src="https://example.com/images/local.jpg"></p>`)

	report, err := f.runner.Import(ctx, Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
	assert.Equal(t, 1, report.Total)

	byPath := make(map[string]Item)
	for _, it := range report.Results {
		byPath[it.Path] = it
	}
	require.Len(t, byPath, 5)

	assert.Equal(t, Item{Path: "images/local.jpg", Target: "wp-content/uploads/2010/03/local.jpg", Outcome: cdn.OutcomeOK, Message: "OK"}, byPath["images/local.jpg"])
	assert.Equal(t, cdn.OutcomeOK, byPath[remote.URL+"/photo.png"].Outcome)
	assert.Equal(t, MsgDownloadFailed, byPath[remote.URL+"/missing.png"].Message)
	assert.Equal(t, MsgDestinationExists, byPath["other/taken.png"].Message)
	assert.Equal(t, MsgSourceExists, byPath["wp-content/uploads/old/inside.gif"].Message)

	data, err := os.ReadFile(f.layout.LocalPath("wp-content/uploads/2010/03/photo.png"))
	require.NoError(t, err)
	assert.Equal(t, "remote /photo.png", string(data))

	content := f.content(t, post.ID)
	assert.NotContains(t, content, "images/local.jpg")
	assert.Contains(t, content, `src="https://example.com/wp-content/uploads/2010/03/local.jpg"`)
	assert.Contains(t, content, `src="https://example.com/wp-content/uploads/2010/03/photo.png"`)
	assert.Contains(t, content, remote.URL+"/missing.png")

	n, err := f.catalog.CountAttachments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	t.Run("Idempotent", func(t *testing.T) {
		again, err := f.runner.Import(ctx, Page{Limit: 10})
		require.NoError(t, err)
		for _, it := range again.Results {
			assert.NotEqual(t, cdn.OutcomeOK, it.Outcome, it.Path)
		}
		assert.Equal(t, content, f.content(t, post.ID))
	})

	t.Run("ExternalDisabled", func(t *testing.T) {
		g := newFixture(t, Config{})
		g.post(t, `<img src="`+remote.URL+`/photo.png">`)
		report, err := g.runner.Import(ctx, Page{})
		require.NoError(t, err)
		require.Len(t, report.Results, 1)
		assert.Equal(t, MsgExternalDisabled, report.Results[0].Message)
	})

	t.Run("OutsideRootRejected", func(t *testing.T) {
		g := newFixture(t, Config{})
		secret := filepath.Join(filepath.Dir(g.layout.Root), "secret.jpg")
		require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o644))
		t.Cleanup(func() { _ = os.Remove(secret) })

		post := g.post(t, `<img src="../secret.jpg"><img src="/images/../../secret.jpg">`)
		report, err := g.runner.Import(ctx, Page{})
		require.NoError(t, err)
		require.Len(t, report.Results, 2)
		for _, it := range report.Results {
			assert.Equal(t, cdn.OutcomeError, it.Outcome, it.Path)
			assert.Equal(t, MsgOutsideRoot, it.Message, it.Path)
		}

		_, err = os.Stat(g.layout.LocalPath("wp-content/uploads/2010/03/secret.jpg"))
		assert.True(t, os.IsNotExist(err))
		n, err := g.catalog.CountAttachments(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Contains(t, g.content(t, post.ID), `src="../secret.jpg"`)
	})

	t.Run("RedirectRules", func(t *testing.T) {
		rules := RedirectRules(report.Results, "", false)
		assert.Equal(t, []string{"Redirect /images/local.jpg /wp-content/uploads/2010/03/local.jpg"}, rules)

		rules = RedirectRules(report.Results, "cdn.example.com", true)
		assert.Equal(t, []string{"Redirect 302 /images/local.jpg http://cdn.example.com/wp-content/uploads/2010/03/local.jpg"}, rules)
	})
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	post := f.post(t, `<img src="http://www.old-example.com/wp-content/uploads/2010/01/a.jpg">`+
		`<a href='https://old-example.com/wp-content/uploads/b.pdf'>b</a>`+
		`<img src="http://www.old-example.com/wp-content/uploads/2010/01/a.jpg">`+
		`<a href="http://www.old-example.com/about/">about</a>`+
		`<img src="http://unrelated.com/wp-content/uploads/c.png">`)

	report, err := f.runner.Rename(ctx, []string{"www.old-example.com"}, Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)

	assert.Equal(t, []Item{
		{Path: "http://www.old-example.com/wp-content/uploads/2010/01/a.jpg", Target: "https://example.com/wp-content/uploads/2010/01/a.jpg", Outcome: cdn.OutcomeOK, Message: "OK"},
		{Path: "https://old-example.com/wp-content/uploads/b.pdf", Target: "https://example.com/wp-content/uploads/b.pdf", Outcome: cdn.OutcomeOK, Message: "OK"},
	}, report.Results)

	assert.Equal(t, `<img src="https://example.com/wp-content/uploads/2010/01/a.jpg">`+
		`<a href='https://example.com/wp-content/uploads/b.pdf'>b</a>`+
		`<img src="https://example.com/wp-content/uploads/2010/01/a.jpg">`+
		`<a href="http://www.old-example.com/about/">about</a>`+
		`<img src="http://unrelated.com/wp-content/uploads/c.png">`, f.content(t, post.ID))

	t.Run("Idempotent", func(t *testing.T) {
		again, err := f.runner.Rename(ctx, []string{"www.old-example.com"}, Page{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, again.Results)
	})

	t.Run("NoNames", func(t *testing.T) {
		_, err := f.runner.Rename(ctx, []string{" ", "www."}, Page{})
		assert.Error(t, err)
	})
}

func TestDrive(t *testing.T) {
	ctx := context.Background()

	t.Run("AdvancesByCount", func(t *testing.T) {
		var offsets []int
		step := func(_ context.Context, p Page) (*Report, error) {
			offsets = append(offsets, p.Offset)
			n := min(p.Limit, 5-p.Offset)
			return &Report{Count: n, Total: 5}, nil
		}
		require.NoError(t, Drive(ctx, step, 2, nil))
		assert.Equal(t, []int{0, 2, 4}, offsets)
	})

	t.Run("StopsOnZeroCount", func(t *testing.T) {
		calls := 0
		step := func(context.Context, Page) (*Report, error) {
			calls++
			return &Report{Count: 0, Total: 10}, nil
		}
		require.NoError(t, Drive(ctx, step, 2, nil))
		assert.Equal(t, 1, calls)
	})

	t.Run("Halt", func(t *testing.T) {
		step := func(context.Context, Page) (*Report, error) {
			return &Report{Count: 1, Total: 10, Results: []Item{{Outcome: cdn.OutcomeHalt, Message: "down"}}}, nil
		}
		var seen int
		err := Drive(ctx, step, 1, func(Page, *Report) { seen++ })
		assert.ErrorIs(t, err, ErrHalted)
		assert.Equal(t, 1, seen)
	})

	t.Run("StepError", func(t *testing.T) {
		boom := errors.New("boom")
		step := func(context.Context, Page) (*Report, error) { return nil, boom }
		assert.ErrorIs(t, Drive(ctx, step, 1, nil), boom)
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		step := func(context.Context, Page) (*Report, error) {
			cancel()
			return &Report{Count: 1, Total: 10}, nil
		}
		assert.ErrorIs(t, Drive(cctx, step, 1, nil), context.Canceled)
	})
}

func TestDownloaderRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/gone":
			calls.Add(1)
			w.WriteHeader(http.StatusGone)
		case calls.Add(1) < 3:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer srv.Close()

	d := NewDownloader(ImportConfig{Timeout: time.Second, Retries: 5})
	d.initialInterval = time.Millisecond
	dst := filepath.Join(t.TempDir(), "a", "b.png")

	require.NoError(t, d.Download(context.Background(), srv.URL+"/b.png", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	err = d.Download(context.Background(), srv.URL+"/gone", filepath.Join(t.TempDir(), "gone"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
