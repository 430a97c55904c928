package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer, colors off.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput, originalColor := output, useColor
	mu.Unlock()
	originalLevel := GetLevel()
	originalFormat, _ := currentFormat.Load().(string)

	InitWithWriter(buf, "", "text", false)

	t.Cleanup(func() {
		mu.Lock()
		output, useColor = originalOutput, originalColor
		mu.Unlock()
		currentLevel.Store(int32(originalLevel))
		currentFormat.Store(originalFormat)
		reconfigure()
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		want    []string
		notWant []string
	}{
		{"DEBUG", []string{"debug msg", "info msg", "warn msg", "error msg"}, nil},
		{"INFO", []string{"info msg", "warn msg", "error msg"}, []string{"debug msg"}},
		{"WARN", []string{"warn msg", "error msg"}, []string{"debug msg", "info msg"}},
		{"ERROR", []string{"error msg"}, []string{"debug msg", "info msg", "warn msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug msg")
			Info("info msg")
			Warn("warn msg")
			Error("error msg")

			out := buf.String()
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		_ = captureOutput(t)
		SetLevel("debug")
		assert.Equal(t, LevelDebug, GetLevel())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		_ = captureOutput(t)
		SetLevel("WARN")
		SetLevel("LOUD")
		assert.Equal(t, LevelWarn, GetLevel())
	})
}

func TestTextFormat(t *testing.T) {
	t.Run("StructuredFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Info("uploaded", KeyLocalPath, "/var/www/a.png", KeyCount, 3)

		out := buf.String()
		assert.Contains(t, out, "[INFO] uploaded")
		assert.Contains(t, out, "local_path=/var/www/a.png")
		assert.Contains(t, out, "count=3")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		buf := captureOutput(t)

		Warn("transfer failed", KeyError, "unable to put object")

		assert.Contains(t, buf.String(), `error="unable to put object"`)
	})

	t.Run("GroupsAreDotted", func(t *testing.T) {
		buf := captureOutput(t)

		With().WithGroup("queue").Info("depth", "upload", 4)

		assert.Contains(t, buf.String(), "queue.upload=4")
	})

	t.Run("EmptyAttrDropped", func(t *testing.T) {
		buf := captureOutput(t)

		Info("no error", Err(nil))

		assert.NotContains(t, buf.String(), "error=")
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")

	Info("processed", KeyCount, 2, KeyEngine, "s3")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "processed", entry["msg"])
	assert.Equal(t, "s3", entry["engine"])
	assert.EqualValues(t, 2, entry["count"])
	assert.Contains(t, entry, "time")
}

func TestFormatSwitching(t *testing.T) {
	buf := captureOutput(t)

	SetFormat("xml")
	Info("still text")
	assert.True(t, strings.HasPrefix(buf.String(), "["))
}

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsFields", func(t *testing.T) {
		buf := captureOutput(t)

		lc := NewLogContext("process").WithEngine("s3").WithCommand("upload")
		ctx := WithContext(context.Background(), lc)
		InfoCtx(ctx, "group done", KeyCount, 5)

		out := buf.String()
		assert.Contains(t, out, "job=process")
		assert.Contains(t, out, "engine=s3")
		assert.Contains(t, out, "command=upload")
		assert.Contains(t, out, "count=5")
		assert.Less(t, strings.Index(out, "job="), strings.Index(out, "count="))
	})

	t.Run("ContextWithoutLogContext", func(t *testing.T) {
		buf := captureOutput(t)

		WarnCtx(context.Background(), "plain")

		assert.Contains(t, buf.String(), "plain")
	})
}

func TestLogContext(t *testing.T) {
	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := NewLogContext("export")
		clone := lc.WithEngine("ftp")

		assert.Empty(t, lc.Engine)
		assert.Equal(t, "ftp", clone.Engine)
		assert.Equal(t, "export", clone.Job)
	})

	t.Run("CloneNil", func(t *testing.T) {
		var lc *LogContext
		assert.Nil(t, lc.Clone())
		assert.Nil(t, lc.WithCommand("delete"))
		assert.Zero(t, lc.DurationMs())
	})

	t.Run("FromNilContext", func(t *testing.T) {
		//nolint:staticcheck // nil context is handled deliberately
		assert.Nil(t, FromContext(nil))
	})
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Err(nil))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
	assert.Equal(t, KeyRemotePath, RemotePath("wp-content/a.png").Key)
}

func TestConcurrentLogging(t *testing.T) {
	_ = captureOutput(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				SetLevel("DEBUG")
			}
			Info("concurrent", "n", i)
		}(i)
	}
	wg.Wait()
}

func TestInit(t *testing.T) {
	t.Run("FileOutput", func(t *testing.T) {
		_ = captureOutput(t)
		path := t.TempDir() + "/dittocdn.log"

		require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
		Info("to file")

		t.Cleanup(func() {
			mu.Lock()
			if outFile != nil {
				_ = outFile.Close()
				outFile = nil
			}
			mu.Unlock()
		})
	})

	t.Run("BadFilePath", func(t *testing.T) {
		_ = captureOutput(t)
		err := Init(Config{Output: t.TempDir() + "/missing/dir/log"})
		assert.Error(t, err)
	})
}
