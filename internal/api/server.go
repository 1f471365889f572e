package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nmoncrief/meshgate/internal/auth"
	"github.com/nmoncrief/meshgate/internal/events"
	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/database"
	"github.com/nmoncrief/meshgate/internal/infrastructure/influxdb"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
	"github.com/nmoncrief/meshgate/internal/infrastructure/mqtt"
	"github.com/nmoncrief/meshgate/internal/mesh"
	"github.com/nmoncrief/meshgate/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// PollTrigger lets the API kick off an immediate repeater telemetry cycle
// without depending on the workers package.
type PollTrigger interface {
	PollOnce(ctx context.Context) (int, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Auth     *auth.Service
	Channels *mesh.ChannelService

	// Device access for request-scoped sessions (live telemetry).
	Gate      *mesh.Gate
	Connector mesh.Connector
	Profile   mesh.Profile

	Messages  store.MessageStore
	Repeaters store.RepeaterStore
	Telemetry store.TelemetryStore
	Bus       *events.Bus
	Poller    PollTrigger

	// Optional infrastructure, surfaced in health output. Any may be nil.
	DB     *database.DB
	MQTT   *mqtt.Client
	Influx *influxdb.Client

	Version string
}

// Server is the meshgate HTTP server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	auth      *auth.Service
	channels  *mesh.ChannelService
	gate      *mesh.Gate
	connector mesh.Connector
	profile   mesh.Profile
	messages  store.MessageStore
	repeaters store.RepeaterStore
	telemetry store.TelemetryStore
	bus       *events.Bus
	poller    PollTrigger
	db        *database.DB
	mqtt      *mqtt.Client
	influx    *influxdb.Client
	version   string

	server *http.Server
}

// New creates an API server with the given dependencies. The server is not
// started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Channels == nil {
		return nil, fmt.Errorf("channel service is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger.With("component", "api"),
		auth:      deps.Auth,
		channels:  deps.Channels,
		gate:      deps.Gate,
		connector: deps.Connector,
		profile:   deps.Profile,
		messages:  deps.Messages,
		repeaters: deps.Repeaters,
		telemetry: deps.Telemetry,
		bus:       deps.Bus,
		poller:    deps.Poller,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests up to the shutdown timeout.
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
