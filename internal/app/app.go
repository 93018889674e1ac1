// Package app wires configuration, source adapters, the in-memory
// listener, tracing, and the HTTP query API into one process
// lifecycle, adapted from the teacher's internal/app.App (same
// New/Start/Stop/Run shape, trimmed to the components a trace
// database actually owns: no sinks, no security/SLO/discovery
// enterprise layer).
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tracedb/internal/config"
	"tracedb/internal/httpapi"
	"tracedb/internal/listener"
	"tracedb/internal/metrics"
	"tracedb/internal/otelspan"
	"tracedb/internal/registry"
	"tracedb/internal/snapshot"
	"tracedb/internal/source/dockersource"
	"tracedb/internal/source/filesource"
	"tracedb/internal/source/kafkasource"
)

// sourceAdapter is the lifecycle shared by kafkasource.Adapter,
// dockersource.Adapter, and filesource.Adapter: Start blocks until
// its context is cancelled, Stop releases the underlying connection.
type sourceAdapter interface {
	Start(ctx context.Context) error
	Stop() error
}

// App coordinates a database process: configuration, the registry and
// listener that hold all in-memory state, every enabled source
// adapter, the tracing manager, and the read-only HTTP API.
type App struct {
	config *config.Config
	logger *logrus.Logger

	registry *registry.Registry
	listener *listener.Listener
	tracer   *otelspan.Manager

	sources       []sourceAdapter
	httpServer    *http.Server
	metricsServer *http.Server

	ctx        context.Context
	cancel     context.CancelFunc
	configFile string
	wg         sync.WaitGroup
}

// New loads configuration and initializes every component, but starts
// nothing: call Start or Run to begin ingesting.
func New(configFile string) (*App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		config:     cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		configFile: configFile,
	}

	if err := a.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return a, nil
}

func (a *App) initializeComponents() error {
	a.registry = registry.New()
	a.listener = listener.New(a.registry, a.logger)

	tracer, err := otelspan.New(otelspan.Config{
		Enabled:     a.config.Tracing.Enabled,
		ServiceName: a.config.Tracing.ServiceName,
		Endpoint:    a.config.Tracing.Endpoint,
		SampleRatio: a.config.Tracing.SampleRatio,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	a.tracer = tracer
	a.listener.SetTracer(tracer)

	if err := a.restoreSnapshot(); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	if err := a.initSources(); err != nil {
		return fmt.Errorf("failed to initialize sources: %w", err)
	}

	a.initHTTPServer()
	a.initMetricsServer()
	return nil
}

func (a *App) initSources() error {
	if a.config.Sources.Kafka.Enabled {
		kc := a.config.Sources.Kafka
		adapter, err := kafkasource.New(kafkasource.Config{
			Brokers:       kc.Brokers,
			Topic:         kc.Topic,
			GroupID:       kc.GroupID,
			SASLEnabled:   kc.SASLEnabled,
			SASLUser:      kc.SASLUser,
			SASLPassword:  kc.SASLPassword,
			SASLMechanism: kc.SASLMechanism,
			BatchSize:     500,
			FlushInterval: time.Second,
		}, a.listener, a.registry, a.logger)
		if err != nil {
			return fmt.Errorf("kafka source: %w", err)
		}
		a.sources = append(a.sources, adapter)
	}

	if a.config.Sources.Docker.Enabled {
		dc := a.config.Sources.Docker
		adapter, err := dockersource.New(dockersource.Config{
			Host:          dc.Host,
			ContainerName: dc.ContainerName,
			BatchSize:     500,
		}, a.listener, a.registry, a.logger)
		if err != nil {
			return fmt.Errorf("docker source: %w", err)
		}
		a.sources = append(a.sources, adapter)
	}

	if a.config.Sources.File.Enabled {
		for _, path := range a.config.Sources.File.Paths {
			adapter, err := filesource.New(filesource.Config{
				Path:      path,
				Seek:      filesource.SeekEnd,
				BatchSize: 500,
			}, a.listener, a.registry, a.logger)
			if err != nil {
				return fmt.Errorf("file source %s: %w", path, err)
			}
			a.sources = append(a.sources, adapter)
		}
	}
	return nil
}

func (a *App) initHTTPServer() {
	if !a.config.HTTP.Enabled {
		return
	}
	srv := httpapi.New(a.listener, a.tracer, a.logger)
	a.httpServer = &http.Server{
		Addr:    a.config.HTTP.Address,
		Handler: srv.Router(),
	}
}

func (a *App) initMetricsServer() {
	if !a.config.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:    a.config.Metrics.Address,
		Handler: mux,
	}
}

// restoreSnapshot loads a previously exported snapshot file at
// startup when snapshotting is enabled and the file is present. A
// missing snapshot file on first run is not an error.
func (a *App) restoreSnapshot() error {
	if !a.config.Snapshot.Enabled || a.config.Snapshot.Path == "" {
		return nil
	}
	data, err := os.ReadFile(a.config.Snapshot.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot %s: %w", a.config.Snapshot.Path, err)
	}
	if err := snapshot.Import(data, a.listener, a.registry); err != nil {
		return fmt.Errorf("import snapshot %s: %w", a.config.Snapshot.Path, err)
	}
	a.logger.WithField("path", a.config.Snapshot.Path).Info("restored snapshot")
	return nil
}

// persistSnapshot exports the listener's current state to disk, used
// on graceful shutdown when snapshotting is enabled.
func (a *App) persistSnapshot() {
	if !a.config.Snapshot.Enabled || a.config.Snapshot.Path == "" {
		return
	}
	codec, err := snapshot.CodecByName(a.config.Snapshot.Codec)
	if err != nil {
		a.logger.WithError(err).Error("failed to resolve snapshot codec")
		return
	}
	data, err := snapshot.Export(a.listener, codec)
	if err != nil {
		a.logger.WithError(err).Error("failed to export snapshot")
		return
	}
	if err := os.WriteFile(a.config.Snapshot.Path, data, 0o644); err != nil {
		a.logger.WithError(err).Error("failed to write snapshot")
		return
	}
	a.logger.WithField("path", a.config.Snapshot.Path).Info("wrote snapshot")
}

// Start launches every enabled source adapter and HTTP server in its
// own goroutine, returning once everything has been launched.
func (a *App) Start() error {
	a.logger.Info("starting tracedb")

	for _, src := range a.sources {
		src := src
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := src.Start(a.ctx); err != nil && a.ctx.Err() == nil {
				a.logger.WithError(err).Error("source adapter stopped unexpectedly")
			}
		}()
	}

	if a.httpServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.httpServer.Addr).Info("starting http api")
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("http api server error")
			}
		}()
	}

	if a.metricsServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.metricsServer.Addr).Info("starting metrics server")
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("metrics server error")
			}
		}()
	}

	a.logger.Info("tracedb started")
	return nil
}

// Stop cancels every source adapter's context, shuts down the HTTP
// and metrics servers, persists a snapshot if enabled, and waits for
// every background goroutine to exit.
func (a *App) Stop() error {
	a.logger.Info("stopping tracedb")
	a.cancel()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("failed to shut down http api")
		}
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("failed to shut down metrics server")
		}
	}

	for _, src := range a.sources {
		if err := src.Stop(); err != nil {
			a.logger.WithError(err).Error("failed to stop source adapter")
		}
	}

	a.wg.Wait()

	a.persistSnapshot()

	if err := a.tracer.Shutdown(context.Background()); err != nil {
		a.logger.WithError(err).Error("failed to shut down tracer")
	}

	a.logger.Info("tracedb stopped")
	return nil
}

// Run starts the application and blocks until a shutdown signal is
// received or the app's context is cancelled, then performs graceful
// shutdown.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	select {
	case <-sigChan:
		a.logger.Info("shutdown signal received")
	case <-a.ctx.Done():
	}
	return a.Stop()
}
