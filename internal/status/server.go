// Package status serves the plugin host's status endpoints: health, the
// plugin container, loaded modules, Prometheus metrics and a live
// diagnostics stream.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goatkit/serverboot/internal/plugin"
	"github.com/goatkit/serverboot/internal/plugin/module"
)

// DefaultRequestsPerMinute is the per-client request budget.
const DefaultRequestsPerMinute = 120

// ModuleLister reports the loaded plugin modules.
type ModuleLister interface {
	Modules() []*module.Loaded
}

// Options configures a Server.
type Options struct {
	Container *plugin.Container
	Modules   ModuleLister
	Events    *plugin.EventBroker

	// Metrics defaults to the default Prometheus registry's handler.
	Metrics http.Handler

	RequestsPerMinute int
	Logger            *slog.Logger
}

// Server is the status HTTP server.
type Server struct {
	opts   Options
	engine *gin.Engine
	logger *slog.Logger
}

// PluginStatus is one entry of GET /plugins.
type PluginStatus struct {
	Name      string  `json:"name"`
	Version   string  `json:"version"`
	Author    string  `json:"author"`
	Order     int     `json:"order"`
	Module    string  `json:"module"`
	Type      string  `json:"type"`
	State     string  `json:"state"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// ModuleStatus is one entry of GET /modules.
type ModuleStatus struct {
	Plugin   string `json:"plugin"`
	Module   string `json:"module"`
	Kind     string `json:"kind"`
	Path     string `json:"path"`
	Isolated bool   `json:"isolated"`
	Types    int    `json:"types"`
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}

	s := &Server{opts: opts, logger: opts.Logger}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(rateLimitByIP(newRateLimiter(opts.RequestsPerMinute)))

	r.GET("/healthz", s.handleHealth)
	r.GET("/plugins", s.handlePlugins)
	r.GET("/modules", s.handleModules)
	r.GET("/metrics", gin.WrapH(opts.Metrics))
	if opts.Events != nil {
		r.GET("/events", gin.WrapH(opts.Events))
	}
	s.engine = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("Status server listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"api_version": plugin.HostAPIVersion.String(),
	})
}

func (s *Server) handlePlugins(c *gin.Context) {
	out := []PluginStatus{}
	if s.opts.Container != nil {
		for _, a := range s.opts.Container.Plugins() {
			out = append(out, PluginStatus{
				Name:      a.Plugin.Name(),
				Version:   a.Plugin.Version(),
				Author:    a.Plugin.Author(),
				Order:     a.Plugin.Order(),
				Module:    a.Module,
				Type:      a.TypeName,
				State:     a.State.String(),
				ElapsedMS: float64(a.Elapsed.Microseconds()) / 1000,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleModules(c *gin.Context) {
	out := []ModuleStatus{}
	if s.opts.Modules != nil {
		for _, l := range s.opts.Modules.Modules() {
			out = append(out, ModuleStatus{
				Plugin:   l.Name(),
				Module:   l.Module.Name(),
				Kind:     l.Descriptor.Kind,
				Path:     l.Descriptor.Path,
				Isolated: l.Isolated,
				Types:    len(l.Module.Types()),
			})
		}
	}
	c.JSON(http.StatusOK, out)
}
