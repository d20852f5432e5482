package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

func TestCollectorExposesWorkerAndEpochSeries(t *testing.T) {
	rt := testRuntime(t)

	require.NoError(t, rt.Spawn(0, &tasking.Task{
		Body: func(ctx *tasking.Context) (*tasking.Task, tasking.Result) {
			return nil, tasking.Remove
		},
	}))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && rt.Stats().Workers[0].TasksExecuted == 0 {
		time.Sleep(time.Millisecond)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(rt))

	srv := httptest.NewServer(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := make([]byte, 64<<10)
	n, _ := resp.Body.Read(body)
	out := string(body[:n])

	require.Contains(t, out, "mxtasking_worker_tasks_executed_total")
	require.Contains(t, out, "mxtasking_epoch_lag")
	require.Contains(t, out, "mxtasking_worker_queue_depth")
}

func TestServerStartAndShutdown(t *testing.T) {
	rt := testRuntime(t)

	srv := NewServer(Config{Listen: "127.0.0.1:0", Path: "/metrics"}, rt, zerolog.Nop())
	srv.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
