package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/teashop/internal/health"
	"github.com/vladislavdragonenkov/teashop/internal/storage/memory"
	"github.com/vladislavdragonenkov/teashop/internal/version"
)

type brokenStorage struct{}

func (brokenStorage) Ping(context.Context) error { return errors.New("connection refused") }

func TestMetricsServer_Probes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := serveMetrics(t, ctx, newTestHealthHandler())

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/livez", wantCode: http.StatusOK, wantBody: "ok"},
		{path: "/readyz", wantCode: http.StatusOK, wantBody: "ready"},
		{path: "/metrics", wantCode: http.StatusOK, wantBody: "go_goroutines"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := get(t, base+tt.path)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, body, tt.wantBody)
		})
	}

	code, body := get(t, base+"/healthz")
	require.Equal(t, http.StatusOK, code)

	var resp healthcheck.Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, version.Service, resp.Service)
	assert.Equal(t, healthcheck.StatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "storage")
}

func TestMetricsServer_StorageDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := healthcheck.NewHandler(healthcheck.BuildInfo{Service: version.Service})
	h.RegisterChecker("storage", healthcheck.NewStorageChecker("postgres", brokenStorage{}, time.Second))
	base := serveMetrics(t, ctx, h)

	code, _ := get(t, base+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body := get(t, base+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "not ready")

	code, _ = get(t, base+"/livez")
	assert.Equal(t, http.StatusOK, code, "liveness ignores dependencies")
}

func TestMetricsServer_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	base := serveMetrics(t, ctx, newTestHealthHandler())

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return true
		}
		_ = resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartMetricsServer_PortInUse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := startMetricsServer(ctx, busy.Addr().String(), log.WithField("test", "metrics-busy"), newTestHealthHandler())
	assert.NotNil(t, srv, "listen failure is logged, the server is still returned")
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "shutdown-http")
	shutdownHTTP(nil, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	go func() { _ = srv.Serve(ln) }()

	url := "http://" + ln.Addr().String()
	code, _ := get(t, url)
	require.Equal(t, http.StatusNoContent, code)

	shutdownHTTP(srv, logger)
	_, err = http.Get(url)
	assert.Error(t, err)
}

// serveMetrics поднимает metrics-сервер на свободном порту и ждёт готовности.
func serveMetrics(t *testing.T, ctx context.Context, h *healthcheck.Handler) string {
	t.Helper()

	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	startMetricsServer(ctx, addr, log.WithField("test", t.Name()), h)

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
	return base
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestHealthHandler() *healthcheck.Handler {
	h := healthcheck.NewHandler(healthcheck.BuildInfo{
		Service: version.Service,
		Version: version.Current().Version,
		Commit:  version.Current().Commit,
	})
	h.RegisterChecker("storage", healthcheck.NewStorageChecker("memory", memory.NewStore(), time.Second))
	return h
}
