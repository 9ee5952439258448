// Package server implements the preview server: it lists the registered
// templates, renders them against the configured data file and reloads open
// pages when the registry changes.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/tagfill/internal/config"
	"github.com/conneroisu/tagfill/internal/data"
	"github.com/conneroisu/tagfill/internal/engine"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/metrics"
	"github.com/conneroisu/tagfill/internal/registry"
	"github.com/conneroisu/tagfill/internal/validation"
	"github.com/conneroisu/tagfill/internal/value"
	"github.com/conneroisu/tagfill/internal/websocket"
)

// reloadDelay coalesces bursts of registry events into one reload.
const reloadDelay = 100 * time.Millisecond

// DataFunc returns the context templates are rendered against.
type DataFunc func() (value.Context, error)

// Dependencies are the collaborators of a PreviewServer. Config and
// Registry are required.
type Dependencies struct {
	Config   *config.Config
	Registry *registry.TemplateRegistry
	Engine   *engine.Engine
	Data     DataFunc
	Metrics  *metrics.Metrics
	Logger   logging.Logger
}

// PreviewServer serves rendered templates with live reload.
type PreviewServer struct {
	config   *config.Config
	registry *registry.TemplateRegistry
	engine   *engine.Engine
	data     DataFunc
	metrics  *metrics.Metrics
	logger   logging.Logger
	ws       *websocket.Manager

	serverMutex  sync.Mutex
	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New builds a server from deps, filling in defaults for optional ones.
func New(deps Dependencies) (*PreviewServer, error) {
	if deps.Config == nil || deps.Registry == nil {
		return nil, fmt.Errorf("server: config and registry are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")

	s := &PreviewServer{
		config:   deps.Config,
		registry: deps.Registry,
		engine:   deps.Engine,
		data:     deps.Data,
		metrics:  deps.Metrics,
		logger:   logger,
	}
	if s.engine == nil {
		s.engine = engine.New(deps.Registry, deps.Config.EngineOptions()...)
	}
	if s.data == nil {
		s.data = FileData(deps.Config.Data.File)
	}
	if s.metrics == nil {
		s.metrics = metrics.Default()
	}
	s.ws = websocket.NewManager(s.allowedOrigin, logger)
	return s, nil
}

// FileData reads path on every call so edits to the data file show up on
// the next render. An empty path yields an empty context.
func FileData(path string) DataFunc {
	return func() (value.Context, error) {
		if path == "" {
			return value.Context{}, nil
		}
		return data.LoadFile(path)
	}
}

// Addr is the listen address from the configuration.
func (s *PreviewServer) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
}

// Handler returns the routed and wrapped handler.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.Instrument(name, h))
	}
	route("GET /{$}", "/", s.handleIndex)
	route("GET /render/{id}", "/render", s.handleRender)
	route("GET /api/templates", "/api/templates", s.handleTemplates)
	route("GET /api/templates/{id}", "/api/templates/id", s.handleTemplate)
	route("GET /health", "/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /ws", s.ws.HandleWebSocket)

	return Chain(mux,
		RequestID(),
		Logging(s.logger),
		SecurityHeaders(),
	)
}

// Start serves until ctx is done or the listener fails. Registry changes
// are pushed to connected pages while it runs.
func (s *PreviewServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *PreviewServer) Serve(ctx context.Context, listener net.Listener) error {
	go s.forwardReloads(ctx)
	go s.metrics.TrackRegistry(ctx, s.registry)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Shutdown did not complete")
		}
	}()

	s.logger.Info(ctx, "Preview server listening", "addr", listener.Addr().String(), "templates", s.registry.Count())
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// forwardReloads broadcasts one reload message per burst of registry events.
func (s *PreviewServer) forwardReloads(ctx context.Context) {
	events := s.registry.Watch()
	defer s.registry.UnWatch(events)

	var timer *time.Timer
	var pending <-chan time.Time
	var target string
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if target == "" && event.Template != nil {
				target = event.Template.ID
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
				pending = timer.C
			}
		case <-pending:
			s.ws.Broadcast(websocket.UpdateMessage{Type: websocket.MessageReload, Target: target})
			timer, pending, target = nil, nil, ""
		}
	}
}

// Shutdown stops the HTTP server and disconnects live-reload clients.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down preview server")
		if wsErr := s.ws.Shutdown(ctx); wsErr != nil {
			err = wsErr
		}

		s.serverMutex.Lock()
		server := s.httpServer
		s.serverMutex.Unlock()
		if server != nil {
			if httpErr := server.Shutdown(ctx); httpErr != nil && err == nil {
				err = httpErr
			}
		}
	})
	return err
}

// allowedOrigin accepts the configured origins plus the server's own
// address under localhost and 127.0.0.1.
func (s *PreviewServer) allowedOrigin(origin string) bool {
	port := strconv.Itoa(s.config.Server.Port)
	allowed := append([]string{
		net.JoinHostPort(s.config.Server.Host, port),
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
	}, s.config.Server.AllowedOrigins...)
	return validation.ValidateOrigin(origin, allowed) == nil
}
