// Package main is the entry point for the drone gateway.
//
// The gateway exposes the drone's motor, LEDs and altimeter over HTTP.
// A single dispatch loop owns request handling and hands the slow device
// operations to a bounded worker pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/drone-gateway/internal/api"
	"github.com/nerrad567/drone-gateway/internal/control"
	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/config"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/database"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/drone-gateway/internal/metrics"
	"github.com/nerrad567/drone-gateway/internal/telemetry"
	"github.com/nerrad567/drone-gateway/internal/worker"
	"github.com/nerrad567/drone-gateway/migrations"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when neither --config nor DRONEGW_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	// retentionInterval is how often old operation history is pruned.
	retentionInterval = time.Hour

	// statsInterval is how often gateway stats are written to InfluxDB.
	statsInterval = 10 * time.Second

	// queueDrainTimeout bounds how long shutdown waits on each telemetry sink.
	queueDrainTimeout = 10 * time.Second

	hoursPerDay = 24
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("dronegateway", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file (default $DRONEGW_CONFIG or "+defaultConfigPath+")")
	fs.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}
	return opts, nil
}

// run is the main application logic, separated for testability.
// It returns when ctx is cancelled and every component has shut down.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("dronegateway %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Default logger until config is loaded
	log := logging.Default()
	log.Info("starting drone gateway", "version", version, "commit", commit, "date", date)

	cfg, err := config.Load(getConfigPath(opts.configPath))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	if opts.logLevel != "" {
		if err := log.SetLevel(opts.logLevel); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	log.Info("configuration loaded",
		"devices", 2+len(cfg.Devices.Lights),
		"workers", cfg.Workers.Size,
	)

	registry, err := device.NewRegistryFromConfig(cfg.Devices)
	if err != nil {
		return fmt.Errorf("building device registry: %w", err)
	}
	registry.SetLogger(log.Component("device"))

	metrics.Register(prometheus.DefaultRegisterer)
	recorder := metrics.NewRecorder()
	registry.AddObserver(recorder)

	pool, err := worker.New(cfg.Workers.Size,
		worker.WithLogger(log.Component("worker")),
		worker.WithRecorder(recorder),
	)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer func() {
		log.Info("stopping worker pool")
		pool.Close()
	}()

	dispatcher := dispatch.New(pool,
		dispatch.WithLogger(log.Component("dispatch")),
		dispatch.WithRecorder(recorder),
		dispatch.WithInboxSize(cfg.Dispatcher.InboxSize),
	)
	control.Register(dispatcher, registry, log.Component("control"))

	components := make(map[string]api.HealthChecker)

	// Slow sinks sit behind a bounded queue so they never hold a worker.
	// Each queue is closed after the pool and before its backend.
	var queues []*telemetry.QueuedObserver

	// Operation history (optional)
	var history telemetry.HistoryRepository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(ctx, cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if dbErr = db.Migrate(ctx, migrations.FS); dbErr != nil {
			return fmt.Errorf("running migrations: %w", dbErr)
		}

		repo := telemetry.NewSQLiteHistory(db.DB)
		historyQueue := telemetry.NewQueuedObserver("history",
			telemetry.NewHistoryObserver(repo, log.Component("history")),
			telemetry.DefaultQueueSize, log.Component("history"))
		defer closeQueue(log, historyQueue)
		registry.AddObserver(historyQueue)
		queues = append(queues, historyQueue)
		history = repo
		components["database"] = db
	}

	// MQTT state publishing (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		log.Info("MQTT connected", "broker", cfg.MQTT.Broker.Host, "port", cfg.MQTT.Broker.Port)

		mqttQueue := telemetry.NewQueuedObserver("mqtt",
			telemetry.NewMQTTPublisher(mqttClient, mqttClient.Topics(), log.Component("mqtt")),
			telemetry.DefaultQueueSize, log.Component("mqtt"))
		defer closeQueue(log, mqttQueue)
		registry.AddObserver(mqttQueue)
		queues = append(queues, mqttQueue)
		components["mqtt"] = mqttClient
	}

	// Operation telemetry (optional)
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
		influxLog := log.Component("influxdb")
		influxClient.SetOnError(func(err error) {
			influxLog.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		influxQueue := telemetry.NewQueuedObserver("influxdb",
			telemetry.NewInfluxRecorder(influxClient),
			telemetry.DefaultQueueSize, influxLog)
		defer closeQueue(log, influxQueue)
		registry.AddObserver(influxQueue)
		queues = append(queues, influxQueue)
		components["influxdb"] = influxClient
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		Registry:   registry,
		Dispatcher: dispatcher,
		Pool:       pool,
		History:    history,
		Components: components,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	registry.AddObserver(telemetry.NewHubObserver(server.Hub()))

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	// The loop outlives the listener so requests in flight at shutdown are
	// still answered.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(loopCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		err := server.Close()
		stopLoop()
		return err
	})
	if history != nil && cfg.Database.RetentionDays > 0 {
		retention := time.Duration(cfg.Database.RetentionDays) * hoursPerDay * time.Hour
		g.Go(func() error {
			telemetry.RunRetention(gctx, history, retention, retentionInterval, log.Component("history"))
			return nil
		})
	}
	if influxClient != nil {
		host, _ := os.Hostname() //nolint:errcheck // Tag is informational
		g.Go(func() error {
			telemetry.RunStatsReporter(gctx, influxClient, host, statsInterval, gatewayStats(dispatcher, pool, influxClient, queues))
			return nil
		})
	}

	log.Info("drone gateway started",
		"address", server.Addr(),
		"devices", registry.Count(""),
		"components", len(components),
	)

	waitErr := g.Wait()

	// Operations abandoned at shutdown still notify observers; let them
	// finish before the telemetry queues drain and the backends close.
	pool.Close()

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}

	log.Info("drone gateway stopped")
	return nil
}

// closeQueue drains q, bounded by queueDrainTimeout.
func closeQueue(log *logging.Logger, q *telemetry.QueuedObserver) {
	ctx, cancel := context.WithTimeout(context.Background(), queueDrainTimeout)
	defer cancel()

	err := q.Close(ctx)
	stats := q.Stats()
	if err != nil {
		log.Warn("telemetry queue not drained", "sink", q.Name(), "pending", stats.Pending, "error", err)
		return
	}
	log.Info("telemetry queue drained", "sink", q.Name(), "delivered", stats.Delivered, "dropped", stats.Dropped)
}

// gatewayStats snapshots the dispatcher, pool, telemetry queue and InfluxDB
// write counters as InfluxDB fields.
func gatewayStats(d *dispatch.Dispatcher, p *worker.Pool, influx *influxdb.Client, queues []*telemetry.QueuedObserver) telemetry.StatsFunc {
	return func() map[string]interface{} {
		ds, ps, ws := d.Stats(), p.Stats(), influx.Stats()
		var dropped uint64
		for _, q := range queues {
			dropped += q.Stats().Dropped
		}
		return map[string]interface{}{
			"requests_accepted":  int64(ds.Accepted),  //nolint:gosec // Counter fits in int64
			"requests_completed": int64(ds.Completed), //nolint:gosec // Counter fits in int64
			"requests_suspended": ds.Suspended,
			"handler_panics":     int64(ds.Panics), //nolint:gosec // Counter fits in int64
			"workers_active":     int64(ps.Active),
			"workers_queued":     int64(ps.Queued),
			"workers_peak":       int64(ps.PeakActive),
			"influx_queued":      int64(ws.Queued), //nolint:gosec // Counter fits in int64
			"influx_failed":      int64(ws.Failed), //nolint:gosec // Counter fits in int64
			"telemetry_dropped":  int64(dropped),   //nolint:gosec // Counter fits in int64
		}
	}
}

// getConfigPath returns the configuration file path.
// Priority: --config flag, then DRONEGW_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("DRONEGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
