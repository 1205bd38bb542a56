package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/showloop/migrations"

	"github.com/nerrad567/showloop/internal/api"
	"github.com/nerrad567/showloop/internal/auth"
	"github.com/nerrad567/showloop/internal/catalog"
	"github.com/nerrad567/showloop/internal/history"
	"github.com/nerrad567/showloop/internal/infrastructure/config"
	"github.com/nerrad567/showloop/internal/infrastructure/database"
	"github.com/nerrad567/showloop/internal/infrastructure/influxdb"
	"github.com/nerrad567/showloop/internal/infrastructure/logging"
	"github.com/nerrad567/showloop/internal/infrastructure/mqtt"
	"github.com/nerrad567/showloop/internal/playback"
	"github.com/nerrad567/showloop/internal/process"
	"github.com/nerrad567/showloop/internal/remote"
	"github.com/nerrad567/showloop/internal/render"
	"github.com/nerrad567/showloop/internal/telemetry"
)

// rendererSubject is the token subject of the supervised display.
const rendererSubject = "renderer"

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the player, API server, and kiosk renderer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(root.configPath))
		},
	}
}

// run is the serve logic, separated from the command for testability.
// It returns nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting showloop",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version).With("player", cfg.Player.ID)
	log.Info("configuration loaded", "path", configPath)

	cat, adjustments, err := catalog.Load(cfg.Playback.CatalogFile)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	for _, a := range adjustments {
		log.Warn("catalog value adjusted", "scene", a.SceneID, "field", a.Field, "from", a.From, "to", a.To)
	}
	log.Info("catalog loaded",
		"path", cfg.Playback.CatalogFile,
		"scenes", cat.Len(),
		"loop_ms", cat.TotalDurationMs(),
	)

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	player, err := newPlayer(cfg, cat, log)
	if err != nil {
		return err
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Everything that can fail is built before any goroutine starts.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hub.SetController(player, cat)

	registry, err := render.NewRegistry(cat, hub)
	if err != nil {
		return fmt.Errorf("building renderers: %w", err)
	}
	dispatcher := render.NewDispatcher(cat, registry, hub, player)
	dispatcher.SetLogger(log.Component("render"))

	historyRepo := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(historyRepo, cfg.Player.ID, log.Component("history"))

	metrics := telemetry.NewMetrics(cfg.Player.ID, player.DroppedEvents)
	var points telemetry.PointWriter
	if influxClient != nil {
		points = influxClient
	}
	sink := telemetry.NewSink(metrics, points, cfg.Player.ID)

	consumers := []consumer{
		{"websocket hub", func(ctx context.Context, events <-chan playback.Event) error {
			hub.Run(ctx, events)
			return nil
		}},
		{"render dispatcher", func(ctx context.Context, events <-chan playback.Event) error {
			dispatcher.Run(ctx, events)
			return nil
		}},
		{"history recorder", recorder.Run},
		{"telemetry", sink.Run},
	}

	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log.Component("api"),
		PlayerID:  cfg.Player.ID,
		PublicURL: cfg.GetPublicURL(),
		Player:    player,
		Catalog:   cat,
		History:   historyRepo,
		Metrics:   metrics.Handler(),
		Database:  db,
		Hub:       hub,
		Version:   version,
	}

	var bridge *remote.Bridge
	if mqttClient != nil {
		bridge = remote.NewBridge(mqttClient, player, cat, cfg.Player.ID, byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated to 0-2
		bridge.SetLogger(log.Component("remote"))
		consumers = append(consumers, consumer{"mqtt bridge", bridge.Run})
		deps.MQTT = mqttClient
	}

	var renderer *process.Manager
	if cfg.Renderer.Enabled {
		renderer = newRenderer(cfg, hub, log.Component(process.RendererName))
		deps.Renderer = renderer
	} else {
		log.Info("renderer disabled", "panel", cfg.GetPublicURL()+"/panel/")
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// abort stops and joins everything started so far, so no goroutine
	// outlives the deferred database and broker Close calls.
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	// Subscriptions are taken before the player starts so no consumer
	// misses the opening phase_started.
	for _, c := range consumers {
		events, unsubscribe := player.Subscribe(cfg.Playback.EventBuffer)
		g.Go(func() error {
			defer unsubscribe()
			if err := c.run(gctx, events); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return player.Run(gctx)
	})

	// The player loop is running, so commands arriving from here on are served.
	if bridge != nil {
		if err := bridge.Start(); err != nil {
			return abort(fmt.Errorf("starting MQTT bridge: %w", err))
		}
	}

	if err := srv.Start(gctx); err != nil {
		return abort(fmt.Errorf("starting API server: %w", err))
	}
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	// A renderer that cannot start is logged, not fatal: the API and the
	// remote control keep working.
	if renderer != nil {
		g.Go(func() error {
			if err := renderer.Run(gctx); err != nil {
				log.Error("renderer failed to start", "binary", cfg.Renderer.Binary, "error", err)
			}
			return nil
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Deferred Close() calls run in reverse order: InfluxDB, MQTT, database.
	log.Info("showloop stopped")
	return nil
}

// consumer is a named reader of player events.
type consumer struct {
	name string
	run  func(context.Context, <-chan playback.Event) error
}

// newPlayer creates the player from the playback settings.
// A zero settle delay in config means "advance immediately".
func newPlayer(cfg *config.Config, cat *catalog.Catalog, log *logging.Logger) (*playback.Player, error) {
	policy, err := playback.ParseJumpPolicy(cfg.Playback.JumpPolicy)
	if err != nil {
		return nil, err
	}
	settle := cfg.GetSettleDelay()
	if settle == 0 {
		settle = -1
	}

	player, err := playback.NewPlayer(cat, playback.Options{
		Quantum:     cfg.GetQuantum(),
		SettleDelay: settle,
		JumpPolicy:  policy,
		Logger:      log.Component("playback"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}
	return player, nil
}

func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT, cfg.Player.ID)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// newRenderer builds the kiosk display supervisor. Each launch gets a
// fresh display token; the health check watches for its WebSocket.
func newRenderer(cfg *config.Config, hub *api.Hub, log *logging.Logger) *process.Manager {
	mint := func() (string, error) {
		return auth.IssueToken(cfg.Security.JWT.Secret, auth.RoleDisplay, rendererSubject, cfg.Player.ID, cfg.GetDisplayTokenTTL())
	}

	mgr := process.NewManager(process.NewRendererConfig(cfg.Renderer, cfg.GetPublicURL(), mint, hub))
	mgr.SetLogger(log)
	return mgr
}

// healthCheck verifies infrastructure connections before serving.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
