// fleetstate - Device State Projection Engine
//
// This is the main entry point for the fleetstate service. fleetstate folds
// device event streams into per-assignment state records and serves them
// over a REST API, a WebSocket stream, and MQTT state topics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/oakmere/fleetstate/migrations"

	"github.com/oakmere/fleetstate/internal/api"
	"github.com/oakmere/fleetstate/internal/directory"
	"github.com/oakmere/fleetstate/internal/infrastructure/config"
	"github.com/oakmere/fleetstate/internal/infrastructure/database"
	"github.com/oakmere/fleetstate/internal/infrastructure/influxdb"
	"github.com/oakmere/fleetstate/internal/infrastructure/logging"
	"github.com/oakmere/fleetstate/internal/infrastructure/mqtt"
	"github.com/oakmere/fleetstate/internal/ingest"
	"github.com/oakmere/fleetstate/internal/presence"
	"github.com/oakmere/fleetstate/internal/state"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting fleetstate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Build the directory resolver chain
	var resolver directory.Resolver = directory.NewHTTPResolver(cfg.Directory.BaseURL, cfg.ResolverTimeout())
	if cfg.Directory.CacheTTL > 0 {
		resolver = directory.NewCachedResolver(resolver, cfg.ResolverCacheTTL())
	}
	log.Info("directory resolver initialised",
		"base_url", cfg.Directory.BaseURL,
		"cache_ttl", cfg.ResolverCacheTTL().String(),
	)

	// Initialise the state manager
	repo := state.NewSQLiteRepository(db.DB)
	engine := state.NewEngine(cfg.State.MaxMeasurementNames)
	manager := state.NewManager(repo, resolver, engine)
	manager.SetLogger(log)

	// The WebSocket hub is created up front so it can be registered as a
	// listener before any traffic flows.
	hub := api.NewHub(cfg.WebSocket, log)
	manager.AddListener(hub)

	// Connect to MQTT broker (optional)
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional) and archive merged events
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
		manager.AddListener(ingest.NewArchiver(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the MQTT intake and state publisher
	if mqttClient != nil {
		topics := mqtt.Topics{Prefix: cfg.Ingest.TopicPrefix}
		qos := byte(cfg.MQTT.QoS)

		publisher := ingest.NewPublisher(mqttClient, topics, qos)
		publisher.SetLogger(log)
		manager.AddListener(publisher)

		service := ingest.NewService(mqttClient, manager, resolver, topics, qos)
		service.SetLogger(log)
		if startErr := service.Start(); startErr != nil {
			return fmt.Errorf("starting ingest: %w", startErr)
		}
	}

	// Start the presence monitor
	if cfg.Presence.Enabled {
		monitor := presence.NewMonitor(manager, presence.Config{
			CheckInterval:   cfg.Presence.CheckInterval,
			MissingInterval: cfg.Presence.MissingInterval,
		})
		monitor.SetLogger(log)
		monitor.Start(ctx)
		defer func() {
			log.Info("stopping presence monitor")
			monitor.Stop()
		}()
	} else {
		log.Info("presence monitor disabled")
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Manager:     manager,
		DB:          db,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Presence monitor
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("fleetstate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETSTATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETSTATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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
