package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			_, _ = w.Write([]byte(`{"status":"healthy","data":{"service":"dittocdn","engine":"s3","uptime":"1m0s","scheduler":{"runs":3}}}`))
		}))
		defer ts.Close()

		resp, err := Check(context.Background(), ts.URL, time.Second)
		require.NoError(t, err)
		assert.True(t, resp.Healthy())
		assert.Equal(t, "s3", resp.Data.Engine)
		require.NotNil(t, resp.Data.Scheduler)
		assert.Equal(t, 3, resp.Data.Scheduler.Runs)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		_, err := Check(context.Background(), ts.URL, time.Second)
		assert.ErrorContains(t, err, "HTTP 502")
	})

	t.Run("Unreachable", func(t *testing.T) {
		_, err := Check(context.Background(), "http://127.0.0.1:1", 200*time.Millisecond)
		assert.Error(t, err)
	})
}
