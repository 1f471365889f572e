// meshgate bridges a mesh-radio companion device onto the home network:
// an HTTP/WebSocket API for channels and messages, background workers that
// drain the device queue and poll repeater telemetry, and optional MQTT and
// InfluxDB fan-out.
//
// The companion device is a single-link serial peer, so every device
// operation in the process funnels through one access gate.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nmoncrief/meshgate/migrations"

	"github.com/nmoncrief/meshgate/internal/api"
	"github.com/nmoncrief/meshgate/internal/auth"
	"github.com/nmoncrief/meshgate/internal/events"
	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
	"github.com/nmoncrief/meshgate/internal/infrastructure/database"
	"github.com/nmoncrief/meshgate/internal/infrastructure/influxdb"
	"github.com/nmoncrief/meshgate/internal/infrastructure/logging"
	"github.com/nmoncrief/meshgate/internal/infrastructure/mqtt"
	"github.com/nmoncrief/meshgate/internal/mesh"
	_ "github.com/nmoncrief/meshgate/internal/mesh/meshsim" // registers the "sim" driver
	"github.com/nmoncrief/meshgate/internal/relay"
	"github.com/nmoncrief/meshgate/internal/store"
	"github.com/nmoncrief/meshgate/internal/workers"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting meshgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and bring the schema up to date
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	messages := store.NewMessageStore(db)
	repeaters := store.NewRepeaterStore(db)
	telemetry := store.NewTelemetryStore(db)

	// Device access: one gate, one driver, one connection profile
	connector, err := mesh.Driver(cfg.Device.Driver)
	if err != nil {
		return fmt.Errorf("selecting device driver: %w", err)
	}
	profile := mesh.ProfileFromConfig(cfg.Device)
	gate := mesh.NewGate()
	cache := mesh.NewSlotCache(cfg.Cache.TTLDuration(), log)
	channels := mesh.NewChannelService(gate, connector, profile, cache, log)
	log.Info("device driver selected",
		"driver", cfg.Device.Driver,
		"transport", cfg.Device.Transport,
	)

	// Event bus fans persisted messages out to WebSocket clients and MQTT
	bus := events.NewBus(cfg.Events, log)
	go bus.Run(ctx)

	// Optional MQTT relay
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT relay enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", cfg.MQTT.TopicPrefix,
		)

		go relay.New(bus, mqttClient, cfg.MQTT, log).Run(ctx)
	} else {
		log.Info("MQTT disabled")
	}

	// Optional InfluxDB telemetry mirror
	var influxClient *influxdb.Client
	var mirror workers.Mirror
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
		mirror = &influxMirror{client: influxClient}
		log.Info("InfluxDB mirror enabled",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Background workers
	drainer := workers.NewDrainer(gate, connector, profile, messages, bus, cfg.Workers, log)
	go drainer.Run(ctx)

	poller := workers.NewRepeaterPoller(gate, connector, profile, repeaters, telemetry, mirror, cfg.Workers, log)
	go poller.Run(ctx)

	// HTTP API
	authSvc := auth.NewService(cfg.Security)
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Auth:      authSvc,
		Channels:  channels,
		Gate:      gate,
		Connector: connector,
		Profile:   profile,
		Messages:  messages,
		Repeaters: repeaters,
		Telemetry: telemetry,
		Bus:       bus,
		Poller:    poller,
		DB:        db,
		MQTT:      mqttClient,
		Influx:    influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MESHGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MESHGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// hashPassword reads a password from stdin and prints its Argon2id PHC hash
// for use in the security.users config section. Reading from stdin keeps the
// password out of shell history.
func hashPassword() error {
	fmt.Fprint(os.Stderr, "Password: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		return fmt.Errorf("no password given")
	}
	password := scanner.Text()
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Println(hash)
	return nil
}

// influxMirror adapts the InfluxDB client to the poller's Mirror interface.
type influxMirror struct {
	client *influxdb.Client
}

// WriteTelemetryPoint implements workers.Mirror.
func (m *influxMirror) WriteTelemetryPoint(p store.TelemetryPoint) {
	m.client.WriteRepeaterMetric(p.RepeaterID, p.RepeaterName, p.MetricKey, p.MetricValue, p.RecordedAt)
}
