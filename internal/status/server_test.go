package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/serverboot/internal/logging"
	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/metrics"
	"github.com/goatkit/serverboot/internal/plugin/module"
	"github.com/goatkit/serverboot/internal/plugin/plugintest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, perMinute int) (*Server, *plugin.Container) {
	t.Helper()
	c := plugin.NewContainer()
	c.Add(&plugin.Activated{
		Plugin:   &plugintest.Plugin{PluginName: "Greeter", PluginVersion: "1.0.0", PluginAuthor: "Ana", Priority: 2},
		TypeName: "greeter.Greeter",
		Module:   "Greeter",
		Elapsed:  1500 * time.Microsecond,
		State:    plugin.StateInitialized,
	})

	reg := prometheus.NewRegistry()
	metrics.New(reg).PassCompleted("pass", 1, time.Second)

	return New(Options{
		Container:         c,
		Events:            plugin.NewEventBroker(),
		Metrics:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RequestsPerMinute: perMinute,
		Logger:            logging.Discard(),
	}), c
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, 0)
	w := get(s, "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","api_version":"2.1.0"}`, w.Body.String())
}

func TestPlugins(t *testing.T) {
	s, _ := newTestServer(t, 0)
	w := get(s, "/plugins")
	require.Equal(t, http.StatusOK, w.Code)

	var got []PluginStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []PluginStatus{{
		Name:      "Greeter",
		Version:   "1.0.0",
		Author:    "Ana",
		Order:     2,
		Module:    "Greeter",
		Type:      "greeter.Greeter",
		State:     "initialized",
		ElapsedMS: 1.5,
	}}, got)
}

func TestPluginsEmpty(t *testing.T) {
	s := New(Options{Logger: logging.Discard()})
	w := get(s, "/plugins")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

type moduleList []*module.Loaded

func (m moduleList) Modules() []*module.Loaded { return m }

func TestModules(t *testing.T) {
	s := New(Options{
		Logger: logging.Discard(),
		Modules: moduleList{{
			Descriptor: module.Descriptor{Name: "ChatPlus", Path: "/plugins/ChatPlus.so", Kind: module.KindNative},
			Module:     &plugintest.Module{ModuleName: "Chat", Specs: []plugin.TypeSpec{{Name: "chat.Plus"}}},
			Isolated:   true,
		}},
	})
	w := get(s, "/modules")
	require.Equal(t, http.StatusOK, w.Code)

	var got []ModuleStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []ModuleStatus{{
		Plugin:   "ChatPlus",
		Module:   "Chat",
		Kind:     module.KindNative,
		Path:     "/plugins/ChatPlus.so",
		Isolated: true,
		Types:    1,
	}}, got)

	empty := get(New(Options{Logger: logging.Discard()}), "/modules")
	assert.JSONEq(t, `[]`, empty.Body.String())
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, 0)
	w := get(s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "serverboot_plugins_passes_total 1")
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, 2)

	assert.Equal(t, http.StatusOK, get(s, "/healthz").Code)
	second := get(s, "/healthz")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	third := get(s, "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "60", third.Header().Get("Retry-After"))
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(60)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	for i := 0; i < 60; i++ {
		require.True(t, rl.allow("ip:a"), "request %d", i)
	}
	assert.False(t, rl.allow("ip:a"))
	assert.True(t, rl.allow("ip:b"), "keys have separate buckets")

	now = now.Add(2 * time.Second)
	assert.True(t, rl.allow("ip:a"))
	assert.True(t, rl.allow("ip:a"))
	assert.False(t, rl.allow("ip:a"))

	now = now.Add(time.Hour)
	rl.allow("ip:c")
	assert.NotContains(t, rl.buckets, "ip:a", "idle buckets are swept")
}
