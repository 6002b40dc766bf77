// glowlogger records Glowmarkt electricity meter readings.
//
// It keeps one MQTT subscription alive, stores every reading exactly once
// in SQLite and checkpoints the write-ahead log in the background. An
// optional InfluxDB mirror and an operational HTTP endpoint can be enabled
// in the configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/glowmarkt-logger/migrations"

	"github.com/nerrad567/glowmarkt-logger/internal/api"
	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/config"
	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/database"
	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/influxdb"
	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/logging"
	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/mqtt"
	"github.com/nerrad567/glowmarkt-logger/internal/ingest"
	"github.com/nerrad567/glowmarkt-logger/internal/maintenance"
	"github.com/nerrad567/glowmarkt-logger/internal/meter"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components together and blocks until ctx is cancelled.
//
// Configuration, database and migration failures are returned before any
// background work starts. Once running, broker and storage failures are
// logged and retried; run only returns nil on shutdown.
func run(ctx context.Context, opts *options) error {
	log := logging.Default()
	log.Info("starting glowlogger",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	envFile, err := config.LoadDotEnv(opts.envFile)
	if err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	configPath := opts.resolveConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Apply(config.Overrides{
		DatabasePath: opts.database,
		Broker:       opts.broker,
		Topic:        opts.topic,
		Username:     opts.username,
		Password:     opts.password,
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "env_file", envFile)

	db, err := database.Open(database.Config{
		Path:           cfg.Database.Path,
		WALMode:        cfg.Database.WALMode,
		BusyTimeout:    cfg.Database.BusyTimeout,
		PoolSize:       cfg.Database.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout(),
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
	log.Info("database opened", "path", cfg.Database.Path, "pool_size", cfg.Database.PoolSize)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	checkpointMode, err := database.ParseCheckpointMode(cfg.Maintenance.CheckpointMode)
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	repo := meter.NewSQLiteRepository(db)

	metrics := ingest.NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline := ingest.NewPipeline(repo, metrics)
	pipeline.SetLogger(log.With("component", "pipeline"))

	var mirror api.MirrorChecker
	if influxClient := connectInfluxDB(cfg.InfluxDB, log); influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		pipeline.SetSink(influxClient)
		mirror = influxClient
	}

	dialer := mqtt.NewDialer(mqtt.OptionsFromConfig(cfg.MQTT))
	dialer.SetLogger(log.With("component", "mqtt"))

	session := ingest.NewSession(ingest.Config{
		Dialer:  dialer,
		Handler: pipeline,
		Settings: ingest.Settings{
			Broker:   cfg.MQTT.Broker.URL,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Auth.Username,
			Password: cfg.MQTT.Auth.Password,
		},
		ClientIDPrefix: cfg.MQTT.Broker.ClientIDPrefix,
		PollInterval:   cfg.PollInterval(),
		Logger:         log.With("component", "session"),
		Metrics:        metrics,
	})

	task := maintenance.NewTask(maintenance.Config{
		Checkpointer: db,
		Interval:     cfg.CheckpointInterval(),
		Mode:         checkpointMode,
		Logger:       log.With("component", "maintenance"),
	})

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log.With("component", "api"),
			DB:          db,
			Readings:    repo,
			Session:     session,
			Maintenance: task,
			Mirror:      mirror,
			Gatherer:    registry,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		session.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		task.Run(ctx)
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"client_id", session.ClientID(),
		"topic", cfg.MQTT.Topic,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB (if enabled), then the database.
	log.Info("glowlogger stopped")
	return nil
}

// connectInfluxDB connects the optional reading mirror.
//
// The mirror is best effort: when InfluxDB is unreachable at startup the
// logger keeps ingesting into SQLite without it.
func connectInfluxDB(cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	if !cfg.Enabled {
		log.Info("InfluxDB mirror disabled")
		return nil
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without mirror", "url", cfg.URL, "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client
}
