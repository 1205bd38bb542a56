package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/showloop/internal/catalog"
	"github.com/nerrad567/showloop/internal/history"
	"github.com/nerrad567/showloop/internal/infrastructure/config"
	"github.com/nerrad567/showloop/internal/infrastructure/logging"
	"github.com/nerrad567/showloop/internal/playback"
	"github.com/nerrad567/showloop/internal/process"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Command sources recorded in history.
const (
	SourceAPI       = "api"
	SourceWebSocket = "websocket"
)

// Controller is the playback surface the API drives. *playback.Player
// implements it.
type Controller interface {
	Execute(cmd playback.Command) playback.Snapshot
	State() playback.Snapshot
	Last() playback.Snapshot
}

// ConnectionStatus reports broker connectivity. *mqtt.Client implements it.
type ConnectionStatus interface {
	IsConnected() bool
}

// RendererStatus reports the supervised display process. *process.Manager
// implements it.
type RendererStatus interface {
	Stats() process.Stats
}

// HealthChecker is implemented by *database.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	PlayerID  string
	PublicURL string
	Player    Controller
	Catalog   *catalog.Catalog

	// Optional.
	History  history.Repository
	Metrics  http.Handler
	MQTT     ConnectionStatus
	Database HealthChecker
	Renderer RendererStatus
	Hub      *Hub   // If set, the server uses this hub instead of creating its own
	PanelDir string // Serve the display page from disk instead of the embedded copy
	Version  string
}

// Server is the HTTP API server for showloop.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	playerID    string
	publicURL   string
	player      Controller
	catalog     *catalog.Catalog
	history     history.Repository
	metrics     http.Handler
	mqtt        ConnectionStatus
	db          HealthChecker
	renderer    RendererStatus
	panelDir    string
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Player == nil {
		return nil, fmt.Errorf("player is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		playerID:  deps.PlayerID,
		publicURL: deps.PublicURL,
		player:    deps.Player,
		catalog:   deps.Catalog,
		history:   deps.History,
		metrics:   deps.Metrics,
		mqtt:      deps.MQTT,
		db:        deps.Database,
		renderer:  deps.Renderer,
		panelDir:  deps.PanelDir,
		version:   deps.Version,
		startTime: time.Now(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
		s.hub.SetController(deps.Player, deps.Catalog)
	}

	return s, nil
}

// Hub returns the WebSocket hub used by the server.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listen address and serves HTTP in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// An injected hub is run by its owner, who also feeds it player events.
	if !s.externalHub {
		go s.hub.Run(srvCtx, nil)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Bind before returning so an unusable address fails startup.
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
