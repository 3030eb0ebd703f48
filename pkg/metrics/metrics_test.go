package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservations(t *testing.T) {
	m := New()

	m.ObserveResult("resolved", "page")
	m.ObserveResult("resolved", "page")
	m.ObserveResult("not_found", "")
	m.ObserveRateLimit(5 * time.Second)
	m.ObserveFlush(100)
	m.ObserveFailedBatch()
	m.ObserveBatch(2 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IDsProcessed.WithLabelValues("resolved", "page")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IDsProcessed.WithLabelValues("not_found", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitWaits))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.RateLimitWaited))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.LastFlushedID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailedBatches))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration))
}

func TestSetState(t *testing.T) {
	m := New()
	all := []string{"idle", "scanning", "done"}

	m.SetState("scanning", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineState.WithLabelValues("scanning")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineState.WithLabelValues("idle")))

	m.SetState("done", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineState.WithLabelValues("scanning")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResult("resolved", "page")
	m.ObserveFlush(1)
	m.SetState("idle", []string{"idle"})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveFlush(42)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "giftparser_last_flushed_id 42")
}
