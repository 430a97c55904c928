package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/metrics"
)

func TestDisabledReturnsNil(t *testing.T) {
	metrics.Reset()

	assert.Nil(t, NewTransferMetrics())
	assert.Nil(t, NewQueueMetrics())
	assert.Nil(t, NewBackendMetrics())
	assert.Nil(t, NewRewriteMetrics())

	// nil-safe helpers must not panic
	metrics.RecordResult(nil, "upload", "ok")
	metrics.SetDepth(nil, "upload", 3)
	metrics.ObserveOperation(nil, "s3", "upload", time.Second, 1)
	metrics.ObserveRender(nil, time.Millisecond, 2)
}

func TestEnabled(t *testing.T) {
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	transfer := NewTransferMetrics()
	require.NotNil(t, transfer)
	transfer.RecordResult("upload", "ok")
	transfer.RecordResult("upload", "ok")
	transfer.RecordHalt("delete")
	transfer.ObserveBatch("upload", 2, 20*time.Millisecond)

	m := transfer.(*transferMetrics)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.results.WithLabelValues("upload", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.halts.WithLabelValues("delete")))

	q := NewQueueMetrics()
	q.SetDepth("upload", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(q.(*queueMetrics).depth.WithLabelValues("upload")))

	b := NewBackendMetrics()
	b.ObserveOperation("s3", "upload", time.Second, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(b.(*backendMetrics).failures.WithLabelValues("s3", "upload")))

	r := NewRewriteMetrics()
	r.ObserveRender(time.Millisecond, 4)
	r.RecordRejected("admin")
	assert.Equal(t, 4.0, testutil.ToFloat64(r.(*rewriteMetrics).rewritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.(*rewriteMetrics).rejected.WithLabelValues("admin")))
}
