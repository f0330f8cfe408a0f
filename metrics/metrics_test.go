// ABOUTME: Tests for the Prometheus collectors and HTTP endpoints
// ABOUTME: Uses testutil to read counter values from a private registry
package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("ok", 2*time.Second)
	m.ObserveCycle("fallback", time.Second)
	m.ObserveCycle("ok", time.Second)
	m.ObserveIngest(3, 1)
	m.ObserveIngest(2, 0)
	m.ObserveMerge(4, 1, true)
	m.ObserveMerge(0, 0, false)
	m.ObserveScheduleCheck(true)
	m.ObserveScheduleCheck(false)
	m.ObserveScheduleCheck(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("fallback")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.RecordsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsSkipped))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RowsAppended))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergeFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScheduleChecks.WithLabelValues("run")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScheduleChecks.WithLabelValues("skip")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.ObserveMerge(1, 0, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsAppended))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).ObserveCycle("noop", time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `leadsync_cycles_total{status="noop"} 1`)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry(), zaptest.NewLogger(t))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
