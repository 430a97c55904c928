package cdn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatURL(t *testing.T) {
	t.Run("no domains declines", func(t *testing.T) {
		_, ok := FormatURL(nil, false, "a.css")
		assert.False(t, ok)
	})

	t.Run("scheme and slashes", func(t *testing.T) {
		url, ok := FormatURL([]string{"cdn.example.com"}, true, "/wp-content/a.css")
		require.True(t, ok)
		assert.Equal(t, "https://cdn.example.com/wp-content/a.css", url)
	})

	t.Run("stable domain per path", func(t *testing.T) {
		domains := []string{"c1.example.com", "c2.example.com", "c3.example.com"}
		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			path := fmt.Sprintf("wp-content/uploads/%d.jpg", i)
			first, _ := FormatURL(domains, false, path)
			again, _ := FormatURL(domains, false, path)
			assert.Equal(t, first, again)
			d, _ := DomainFor(domains, path)
			seen[d] = true
		}
		assert.Len(t, seen, 3, "paths should spread over every domain")
	})
}

func TestBase(t *testing.T) {
	b := Base{Hosts: []string{" ", "cdn.example.com ", ""}}
	assert.Equal(t, []string{"cdn.example.com"}, b.Domains())
	assert.Equal(t, "cdn.example.com", b.Via())
	assert.Equal(t, "N/A", Base{}.Via())
}

func TestCommand(t *testing.T) {
	assert.Equal(t, CommandDelete, CommandUpload.Opposite())
	assert.Equal(t, CommandUpload, CommandDelete.Opposite())
	assert.False(t, Command(7).Valid())

	tests := []struct {
		in   string
		want Command
		err  bool
	}{
		{"upload", CommandUpload, false},
		{" DELETE ", CommandDelete, false},
		{"1", CommandUpload, false},
		{"2", CommandDelete, false},
		{"rename", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(nil))
	assert.Equal(t, OutcomeError, Classify(ErrSourceNotFound))
	assert.Equal(t, OutcomeError, Classify(NewItemError("put object", "a", errors.New("boom"))))
	assert.Equal(t, OutcomeHalt, Classify(NewHaltError("s3", errors.New("denied"))))
	assert.Equal(t, OutcomeHalt, Classify(fmt.Errorf("wrapped: %w", NewValidationError("s3", "bucket", "empty bucket"))))
}

func TestItemErrorMessage(t *testing.T) {
	err := NewItemError("delete object", "a.css", ErrNotFound)
	assert.Equal(t, "unable to delete object (object not found)", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHaltAll(t *testing.T) {
	files := []File{{Local: "a", Remote: "ra"}, {Local: "b", Remote: "rb"}}
	count, results := HaltAll(files, errors.New("unable to connect"))

	assert.Zero(t, count)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, files[i].Local, r.LocalPath)
		assert.Equal(t, OutcomeHalt, r.Outcome)
		assert.Equal(t, "unable to connect", r.Message)
	}
	halt, ok := FirstHalt(results)
	assert.True(t, ok)
	assert.Equal(t, "a", halt.LocalPath)
}

type closingSession struct{ closed *bool }

func (c closingSession) Close() error {
	*c.closed = true
	return nil
}

func TestRunBatch(t *testing.T) {
	files := []File{{Local: "a", Remote: "a"}, {Local: "b", Remote: "b"}, {Local: "c", Remote: "c"}}

	t.Run("open failure halts without attempts", func(t *testing.T) {
		calls := 0
		count, results := RunBatch(context.Background(), files,
			func(context.Context) (int, error) { return 0, NewHaltError("x", errors.New("down")) },
			func(context.Context, int, File) error { calls++; return nil })

		assert.Zero(t, count)
		assert.Zero(t, calls)
		assert.Len(t, results, 3)
	})

	t.Run("mixed results and session closed", func(t *testing.T) {
		closed := false
		count, results := RunBatch(context.Background(), files,
			func(context.Context) (closingSession, error) { return closingSession{closed: &closed}, nil },
			func(_ context.Context, _ closingSession, f File) error {
				if f.Local == "b" {
					return ErrAlreadyExists
				}
				return nil
			})

		assert.Equal(t, 2, count)
		assert.Equal(t, 2, CountOK(results))
		assert.True(t, results[1].IsAlreadyExists())
		assert.Equal(t, "object already exists", results[1].Message)
		assert.Equal(t, MessageOK, results[0].Message)
		assert.True(t, closed)
	})
}

func TestSameContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	sum, err := LocalMD5(path)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)

	same, err := SameContent(path, `"5D41402ABC4B2A76B9719D911017C592"`)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = SameContent(path, `"5d41402abc4b2a76b9719d911017c592-2"`)
	require.NoError(t, err)
	assert.False(t, same, "multipart etags never match")
}

func TestCheckSource(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, CheckSource(filepath.Join(dir, "missing")), ErrSourceNotFound)
	assert.ErrorIs(t, CheckSource(dir), ErrSourceNotFound)

	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	assert.NoError(t, CheckSource(path))
}

func TestFileMap(t *testing.T) {
	files := FileMap(map[string]string{"/b": "rb", "/a": "ra"})
	assert.Equal(t, []File{{Local: "/a", Remote: "ra"}, {Local: "/b", Remote: "rb"}}, files)
}
