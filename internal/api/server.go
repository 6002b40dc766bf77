package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/config"
	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/database"
	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/logging"
	"github.com/nerrad567/glowmarkt-logger/internal/ingest"
	"github.com/nerrad567/glowmarkt-logger/internal/maintenance"
)

// HTTP server timeouts. The endpoints are small and local.
const (
	readTimeout             = 5 * time.Second
	writeTimeout            = 10 * time.Second
	idleTimeout             = 60 * time.Second
	gracefulShutdownTimeout = 10 * time.Second
)

// SessionReporter exposes the broker session's state.
type SessionReporter interface {
	State() ingest.StateName
	ClientID() string
}

// ReadingStats exposes totals over stored readings.
type ReadingStats interface {
	Count(ctx context.Context) (int, error)
	Latest(ctx context.Context) (time.Time, bool, error)
}

// MaintenanceReporter exposes the checkpoint task's recent history.
type MaintenanceReporter interface {
	Status() maintenance.Status
}

// MirrorChecker probes the optional InfluxDB mirror.
type MirrorChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	DB          *database.DB
	Readings    ReadingStats
	Session     SessionReporter     // optional
	Maintenance MaintenanceReporter // optional
	Mirror      MirrorChecker       // optional
	Gatherer    prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Version     string
}

// Server serves the operational endpoints.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	db          *database.DB
	readings    ReadingStats
	session     SessionReporter
	maintenance MaintenanceReporter
	mirror      MirrorChecker
	gatherer    prometheus.Gatherer
	version     string
	startTime   time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Readings == nil {
		return nil, fmt.Errorf("reading stats are required")
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		db:          deps.DB,
		readings:    deps.Readings,
		session:     deps.Session,
		maintenance: deps.Maintenance,
		mirror:      deps.Mirror,
		gatherer:    gatherer,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}

// Start binds the listener and serves requests in a background goroutine.
//
// Binding happens synchronously so that a port already in use is reported
// to the caller instead of being logged from the goroutine.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
