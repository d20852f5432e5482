package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/mxtasking/pkg/numa"
	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

func testRuntime(t *testing.T) *tasking.Runtime {
	t.Helper()
	topo := &numa.Topology{
		CPUs:     []numa.CPU{{ID: 0, Node: 0}, {ID: 1, Node: 0}},
		NodeCPUs: map[int][]int{0: {0, 1}},
	}
	rt := tasking.New(tasking.Config{WorkerCount: 2, BlockSize: 1 << 16, MaintenanceInterval: 4}, topo)
	require.NoError(t, rt.Start())
	t.Cleanup(func() {
		rt.Stop()
		require.NoError(t, rt.Release())
	})
	return rt
}

func doGet(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsOK(t *testing.T) {
	rt := testRuntime(t)
	s := NewServer(Config{Listen: "127.0.0.1:0"}, rt, zerolog.Nop())

	rec := doGet(s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestWorkersEndpointReportsEveryWorker(t *testing.T) {
	rt := testRuntime(t)
	s := NewServer(Config{Listen: "127.0.0.1:0"}, rt, zerolog.Nop())

	rec := doGet(s, "/debug/workers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		WorkerCount int              `json:"worker_count"`
		Workers     []tasking.WorkerStats `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.WorkerCount)
	require.Len(t, body.Workers, 2)
}

func TestQueuesEndpointReportsQueueDepth(t *testing.T) {
	rt := testRuntime(t)
	s := NewServer(Config{Listen: "127.0.0.1:0"}, rt, zerolog.Nop())

	require.NoError(t, rt.Spawn(0, &tasking.Task{
		Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			time.Sleep(50 * time.Millisecond)
			return nil, tasking.Remove
		},
	}))

	rec := doGet(s, "/debug/queues")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "queue_depth")
}

func TestRequestIDIsMintedAndEchoed(t *testing.T) {
	rt := testRuntime(t)
	s := NewServer(Config{Listen: "127.0.0.1:0"}, rt, zerolog.Nop())

	rec := doGet(s, "/healthz")
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsReusedWhenSupplied(t *testing.T) {
	rt := testRuntime(t)
	s := NewServer(Config{Listen: "127.0.0.1:0"}, rt, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "caller-supplied-id")
	s.router.ServeHTTP(rec, req)

	require.Equal(t, "caller-supplied-id", rec.Header().Get(requestIDHeader))
}

func TestEpochEndpointReportsCounters(t *testing.T) {
	rt := testRuntime(t)
	s := NewServer(Config{Listen: "127.0.0.1:0"}, rt, zerolog.Nop())

	rec := doGet(s, "/debug/epoch")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "epoch_lag")
	require.Contains(t, body, "reclaimed_total")
}
