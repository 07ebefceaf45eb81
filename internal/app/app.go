package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"spe/internal/config"
	"spe/internal/events"
	"spe/internal/logging"
	mcpserver "spe/internal/mcp"
	"spe/internal/metrics"
	"spe/internal/plugins"
	"spe/internal/remote"
	"spe/internal/secret"
	"spe/internal/service"
	"spe/internal/storage"
	"spe/internal/telemetry"
)

// Options are process-level inputs that don't belong in the config file.
type Options struct {
	Version string
	// LogOutput overrides the configured log destination.
	LogOutput io.Writer
	// Secrets overrides the platform secret store.
	Secrets secret.SecretStore
}

// App owns every long-lived component and their shutdown order.
type App struct {
	cfg *config.Config
	log *logging.Logger

	backend   *storage.Backend
	remote    *remote.Client
	mqtt      *events.MQTTEmitter
	influx    *metrics.Influx
	secrets   secret.SecretStore
	state     *service.StateHandler
	scheduler *service.SyncScheduler
	watcher   *service.CatalogWatcher
	mcp       *mcpserver.Server

	shutdownTracing func(context.Context) error
}

// New builds the application from cfg. Optional sinks (MQTT, InfluxDB) that
// fail to connect are logged and skipped; storage failures are fatal.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{cfg: cfg}
	if opts.LogOutput != nil {
		a.log = logging.NewWithWriter(cfg.Logging, opts.Version, opts.LogOutput)
	} else {
		a.log = logging.New(cfg.Logging, opts.Version)
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	traceOut := opts.LogOutput
	if traceOut == nil {
		traceOut = os.Stderr
	}
	a.shutdownTracing, err = telemetry.Init(ctx, cfg.Tracing, telemetry.Options{
		ServiceVersion: opts.Version,
		Writer:         traceOut,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	a.backend, err = storage.Open(ctx, storage.Options{
		Driver:   cfg.Storage.Driver,
		Path:     cfg.Storage.Path,
		DSN:      cfg.Storage.DSN,
		Database: cfg.Storage.Database,
		BlobDir:  cfg.Storage.BlobDir,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.log.Info("storage ready", "driver", cfg.Storage.Driver)

	deps := service.Deps{
		Store:       a.backend.Store,
		Blobs:       a.backend.Blobs,
		Registry:    plugins.NewRegistry(),
		Fetch:       plugins.HTTPFetcher(&http.Client{Timeout: cfg.RemoteTimeout(), Transport: otelhttp.NewTransport(http.DefaultTransport)}),
		Logger:      a.log,
		MaxParallel: cfg.Sync.MaxParallel,
	}

	if cfg.Remote.BaseURL != "" {
		a.remote, err = remote.New(remote.Options{
			BaseURL: cfg.Remote.BaseURL,
			Timeout: cfg.RemoteTimeout(),
			Logger:  a.log,
		})
		if err != nil {
			return nil, fmt.Errorf("remote: %w", err)
		}
		deps.Remote = a.remote
	}

	emitters := service.MultiEmitter{service.LogEmitter{Log: a.log}}
	a.mqtt, err = events.Connect(cfg.Events.MQTT, a.log)
	switch {
	case err == nil:
		emitters = append(emitters, a.mqtt)
	case errors.Is(err, events.ErrDisabled):
	default:
		a.log.Warn("mqtt unavailable, events stay local", "error", err)
	}
	deps.Emitter = emitters

	a.influx, err = metrics.Connect(cfg.Metrics.InfluxDB, a.log)
	switch {
	case err == nil:
		deps.Metrics = a.influx
	case errors.Is(err, metrics.ErrDisabled):
	default:
		a.log.Warn("influxdb unavailable, metrics disabled", "error", err)
	}
	err = nil

	a.state = service.NewStateHandler(deps)
	if err = a.state.LoadCatalog(ctx); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	a.secrets = opts.Secrets
	if a.secrets == nil {
		a.secrets = secret.Default(config.DataDir())
	}

	a.scheduler = service.NewSyncScheduler(a.state, a.log)
	a.watcher = service.NewCatalogWatcher(a.state, a.log)
	a.mcp = mcpserver.New(mcpserver.Deps{
		State:   a.state,
		Secrets: a.secrets,
		Logger:  a.log,
		Version: opts.Version,
	})
	return a, nil
}

// State exposes the state handler.
func (a *App) State() *service.StateHandler {
	return a.state
}

// Logger returns the application logger.
func (a *App) Logger() *logging.Logger {
	return a.log
}

// Close stops background work and releases connections in reverse order of
// creation. It is safe to call on a partially built App.
func (a *App) Close() error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}

	var errs []error
	if a.influx != nil {
		errs = append(errs, a.influx.Close())
	}
	if a.mqtt != nil {
		errs = append(errs, a.mqtt.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(context.Background()))
	}
	return errors.Join(errs...)
}
