package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"nudge/internal/config"
	logx "nudge/pkg/logx"
)

func testSources() Sources {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "nudge_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()
	return Sources{
		Gatherer: reg,
		Stats:    func() any { return map[string]int{"active": 2} },
	}
}

func get(t *testing.T, h http.Handler, target string, hdr map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestHandlerRoutes(t *testing.T) {
	h := Handler(Config{}, testSources())

	code, body := get(t, h, "/healthz", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)

	code, body = get(t, h, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "nudge_test_total 1")

	code, body = get(t, h, "/stats", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"active": 2`)

	code, _ = get(t, h, "/debug/pprof/", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestHandlerHealthFailure(t *testing.T) {
	h := Handler(Config{}, Sources{Health: func() error { return errors.New("engine stopped") }})
	code, body := get(t, h, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.True(t, strings.HasPrefix(body, "engine stopped"))
}

func TestHandlerToken(t *testing.T) {
	h := Handler(Config{Token: "s3cret", Pprof: true}, testSources())

	code, _ := get(t, h, "/stats", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/stats", map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/stats", map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, code)
	code, _ = get(t, h, "/debug/pprof/?token=s3cret", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestFromConfig(t *testing.T) {
	cfg, err := FromConfig(nil)
	require.NoError(t, err)
	require.False(t, cfg.Enabled)

	cfg, err = FromConfig(&config.ObservabilityConfig{Enabled: true, ReadTimeout: "2s"})
	require.NoError(t, err)
	require.Equal(t, DefaultAddr, cfg.Addr)
	require.Equal(t, "2s", cfg.ReadTimeout.String())
	require.Zero(t, cfg.WriteTimeout)

	_, err = FromConfig(&config.ObservabilityConfig{IdleTimeout: "soon"})
	require.Error(t, err)
}

func TestServiceRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Sources{}, logx.Nop())
	require.ErrorIs(t, s.Start(context.Background()), ErrInsecureBind)
	require.Empty(t, s.Addr())
}

func TestServiceReconfigure(t *testing.T) {
	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	s := New(Config{}, testSources(), logx.Nop())
	ctx := context.Background()
	t.Cleanup(func() { s.Stop(ctx) })

	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", MutexProfileFraction: 5})
	addr := s.Addr()
	require.NotEmpty(t, addr)
	require.Equal(t, 5, runtime.SetMutexProfileFraction(-1))

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s.Reconfigure(ctx, Config{Enabled: false})
	require.Empty(t, s.Addr())
}
