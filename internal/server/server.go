package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/authz-engine/permission-rules/internal/metrics"
)

// Config configures the operational HTTP server
type Config struct {
	// Port is the TCP port to listen on; 0 picks a free port
	Port int `yaml:"port"`
	// ReadTimeout bounds reading a request
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds writing a response
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MetricsPath is where Prometheus metrics are served
	MetricsPath string `yaml:"metrics_path"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		MetricsPath:  "/metrics",
	}
}

// Validate validates the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	return nil
}

// Server serves health probes and metrics
type Server struct {
	config     Config
	health     *HealthHandler
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewRouter builds the route table
func NewRouter(cfg Config, health *HealthHandler, m metrics.Metrics, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware(logger), loggingMiddleware(logger))

	r.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", health.Ready).Methods(http.MethodGet)
	r.HandleFunc("/health/live", health.Live).Methods(http.MethodGet)
	r.HandleFunc("/health/startup", health.Startup).Methods(http.MethodGet)
	r.Handle(cfg.MetricsPath, m.HTTPHandler()).Methods(http.MethodGet)

	return r
}

// New creates the server
func New(cfg Config, health *HealthHandler, m metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if health == nil {
		return nil, fmt.Errorf("health handler is required")
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		config: cfg,
		health: health,
		httpServer: &http.Server{
			Handler:      NewRouter(cfg, health, m, logger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}, nil
}

// Listen binds the port; Addr is valid afterwards
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve serves until Shutdown. It listens first when Listen was not called.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.listener.Addr().String()),
		zap.String("metrics_path", s.config.MetricsPath),
	)

	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown marks the server not ready and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	s.health.SetReady(false)
	return s.httpServer.Shutdown(ctx)
}
