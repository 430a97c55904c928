package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/api/auth"
	"github.com/marmos91/dittocdn/pkg/api/handlers"
	"github.com/marmos91/dittocdn/pkg/cdn"
	cdnmemory "github.com/marmos91/dittocdn/pkg/cdn/memory"
	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/jobs"
	qmemory "github.com/marmos91/dittocdn/pkg/queue/memory"
	"github.com/marmos91/dittocdn/pkg/rewrite"
	"github.com/marmos91/dittocdn/pkg/site"
	"github.com/marmos91/dittocdn/pkg/transfer"
)

const (
	testSecret   = "test-secret-key-that-is-at-least-32-characters-long"
	testPassword = "correct horse battery staple"
)

type testEnv struct {
	server  *httptest.Server
	layout  *site.Layout
	backend *cdnmemory.Backend
	queue   *qmemory.Store
	catalog *site.Catalog
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
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
	backend.SSL = true
	repo := qmemory.New()

	groups := rewrite.Config{Uploads: true, Includes: true, Theme: true}
	rw, err := rewrite.New(groups, layout, backend, repo, nil)
	require.NoError(t, err)
	policy, err := rewrite.NewPolicy(rewrite.PolicyConfig{Enabled: true, AdminPath: layout.AdminPath}, nil)
	require.NoError(t, err)
	runner, err := jobs.NewRunner(jobs.Config{Groups: groups}, layout, backend, catalog, nil)
	require.NoError(t, err)

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	cfg := APIConfig{
		JWT:   JWTConfig{Secret: testSecret},
		Admin: AdminConfig{PasswordHash: hash},
	}
	srv, err := NewServer(cfg, Services{
		Backend:   backend,
		Queue:     repo,
		Processor: transfer.NewProcessor(repo, backend, transfer.ProcessorConfig{}),
		Transfers: transfer.NewTransferrer(layout, backend, repo, nil),
		Catalog:   catalog,
		Jobs:      runner,
		Rewriter:  rw,
		Policy:    policy,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	env := &testEnv{server: ts, layout: layout, backend: backend, queue: repo, catalog: catalog}
	env.token = env.login(t)
	return env
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "admin",
		"password": testPassword,
	}, false)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair auth.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	require.NotEmpty(t, pair.AccessToken)
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) write(t *testing.T, rel, content string) {
	t.Helper()
	p := e.layout.LocalPath(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestNewServer_RequiresSecret(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	_, err := NewServer(APIConfig{}, Services{})
	assert.ErrorIs(t, err, ErrNoJWTSecret)
}

func TestHealthAndAuth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("HealthIsPublic", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/health", nil, false)
		body := decode[handlers.Response](t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body.Status)
	})

	t.Run("ProtectedRouteNeedsToken", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/backend", nil, false)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": "admin",
			"password": "nope",
		}, false)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, handlers.ContentTypeProblemJSON, resp.Header.Get("Content-Type"))
	})

	t.Run("MissingFieldsFailValidation", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin"}, false)
		problem := decode[handlers.Problem](t, resp)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, problem.Errors, "password")
	})
}

func TestBackendRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/backend", nil, true)
	info := decode[handlers.BackendResponse](t, resp)
	assert.Equal(t, "memory", info.Engine)
	assert.Equal(t, []string{"cdn.example.com"}, info.Domains)

	resp = env.do(t, http.MethodPost, "/api/v1/backend/test", nil, true)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/backend/container", nil, true)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("TestHaltIsBadGateway", func(t *testing.T) {
		env.backend.SetOpenErr(assert.AnError)
		defer env.backend.SetOpenErr(nil)

		resp := env.do(t, http.MethodPost, "/api/v1/backend/test", nil, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestQueueRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.write(t, "wp-content/uploads/a.png", "a")
	require.NoError(t, env.queue.Add(ctx, env.layout.LocalPath("wp-content/uploads/a.png"), "wp-content/uploads/a.png", cdn.CommandUpload, ""))
	require.NoError(t, env.queue.Add(ctx, env.layout.LocalPath("wp-content/uploads/gone.png"), "wp-content/uploads/gone.png", cdn.CommandDelete, ""))

	resp := env.do(t, http.MethodGet, "/api/v1/queue", nil, true)
	list := decode[handlers.QueueResponse](t, resp)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Upload)
	assert.Equal(t, 1, list.Delete)

	t.Run("InvalidLimit", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/queue?limit=-1", nil, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Process", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/queue/process", nil, true)
		report := decode[transfer.Report](t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, report.Processed)
		assert.Equal(t, 1, report.Succeeded)

		_, ok := env.backend.Object("wp-content/uploads/a.png")
		assert.True(t, ok)
	})

	t.Run("EmptyDelete", func(t *testing.T) {
		resp := env.do(t, http.MethodDelete, "/api/v1/queue?command=delete", nil, true)
		body := decode[map[string]any](t, resp)
		assert.Equal(t, "delete", body["command"])
		assert.EqualValues(t, 1, body["removed"])

		groups, err := env.queue.Get(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, groups.All())
	})

	t.Run("EmptyUnknownCommand", func(t *testing.T) {
		resp := env.do(t, http.MethodDelete, "/api/v1/queue?command=purge", nil, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("DeleteEntry", func(t *testing.T) {
		require.NoError(t, env.queue.Add(ctx, "/x", "x", cdn.CommandUpload, "boom"))
		groups, err := env.queue.Get(ctx, 0)
		require.NoError(t, err)
		entries := groups.All()
		require.Len(t, entries, 1)

		resp := env.do(t, http.MethodDelete, "/api/v1/queue/"+itoa(entries[0].ID), nil, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestJobRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.write(t, "wp-content/uploads/a.jpg", "a")
	env.write(t, "wp-includes/js/app.js", "js")
	require.NoError(t, env.catalog.InsertAttachment(ctx, &site.Attachment{File: "a.jpg"}))

	t.Run("Export", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/jobs/export", map[string]int{"limit": 10}, true)
		page := decode[handlers.PageResponse](t, resp)
		assert.Equal(t, 1, page.Count)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 1, page.Offset)
		require.Len(t, page.Results, 1)
		assert.Equal(t, cdn.OutcomeOK, page.Results[0].Outcome)
	})

	t.Run("DiscoverAndExportFiles", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/jobs/export/files?group=includes", nil, true)
		body := decode[map[string]any](t, resp)
		files, _ := body["files"].([]any)
		require.Len(t, files, 1)
		assert.Equal(t, "wp-includes/js/app.js", files[0])

		resp = env.do(t, http.MethodPost, "/api/v1/jobs/export", map[string]any{"files": []string{"wp-includes/js/app.js"}}, true)
		page := decode[handlers.PageResponse](t, resp)
		assert.Equal(t, 1, page.Count)
		_, ok := env.backend.Object("wp-includes/js/app.js")
		assert.True(t, ok)
	})

	t.Run("UnknownGroup", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/jobs/export/files?group=nope", nil, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("RenameNeedsNames", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/jobs/rename", map[string]any{"names": []string{}}, true)
		problem := decode[handlers.Problem](t, resp)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, problem.Errors, "names")
	})

	t.Run("NegativeOffset", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/jobs/import", map[string]int{"offset": -1}, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("UnknownField", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/jobs/import", map[string]int{"page": 1}, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRewriteRoute(t *testing.T) {
	env := newTestEnv(t)
	page := `<!DOCTYPE html><html><body><img src="/wp-content/uploads/a.png"></body></html>`

	post := func(t *testing.T, uri string, accept string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/rewrite", strings.NewReader(page))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+env.token)
		req.Header.Set("Content-Type", "text/html")
		req.Header.Set(handlers.HeaderRequestURI, uri)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		resp, err := env.server.Client().Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("Rewritten", func(t *testing.T) {
		resp := post(t, "/2024/05/hello", "")
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, buf.String(), `src="https://cdn.example.com/wp-content/uploads/a.png"`)
		assert.Equal(t, "1", resp.Header.Get(handlers.HeaderMatches))
		assert.Empty(t, resp.Header.Get(handlers.HeaderSkipped))
	})

	t.Run("JSON", func(t *testing.T) {
		resp := post(t, "/", "application/json")
		out := decode[rewrite.Output](t, resp)
		require.Len(t, out.Matches, 1)
		assert.Equal(t, "/wp-content/uploads/a.png", out.Matches[0].Original)
	})

	t.Run("AdminSkipped", func(t *testing.T) {
		resp := post(t, "/wp-admin/post.php", "")
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		assert.Equal(t, page, buf.String())
		assert.Equal(t, rewrite.ReasonAdmin, resp.Header.Get(handlers.HeaderSkipped))
	})
}

func TestAttachmentRoutes(t *testing.T) {
	env := newTestEnv(t)

	env.write(t, "wp-content/uploads/2024/05/photo.jpg", "photo")
	env.write(t, "wp-content/uploads/2024/05/photo-150x150.jpg", "thumb")

	resp := env.do(t, http.MethodPost, "/api/v1/attachments", map[string]any{
		"file":  "2024/05/photo.jpg",
		"title": "Photo",
		"sizes": map[string]string{"thumbnail": "photo-150x150.jpg", "medium": "photo-300x200.jpg"},
	}, true)
	created := decode[handlers.TransferResponse](t, resp)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, created.Attachment)
	assert.Equal(t, 2, created.Count)
	assert.Equal(t, "https://example.com/wp-content/uploads/2024/05/photo.jpg", created.Attachment.GUID)

	t.Run("FailedFileIsQueued", func(t *testing.T) {
		groups, err := env.queue.Get(context.Background(), 0)
		require.NoError(t, err)
		entries := groups[cdn.CommandUpload]
		require.Len(t, entries, 1)
		assert.Equal(t, "wp-content/uploads/2024/05/photo-300x200.jpg", entries[0].RemotePath)
	})

	t.Run("Delete", func(t *testing.T) {
		resp := env.do(t, http.MethodDelete, "/api/v1/attachments/"+itoa(int64(created.Attachment.ID)), nil, true)
		deleted := decode[handlers.TransferResponse](t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, deleted.Count)
		assert.Empty(t, env.backend.Keys())

		_, err := env.catalog.GetAttachment(context.Background(), created.Attachment.ID)
		assert.ErrorIs(t, err, site.ErrNotFound)
	})

	t.Run("DeleteUnknown", func(t *testing.T) {
		resp := env.do(t, http.MethodDelete, "/api/v1/attachments/999", nil, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("FileRequired", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/attachments", map[string]any{"title": "x"}, true)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}
