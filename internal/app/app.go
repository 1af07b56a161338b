// Package app wires the alert engine, the simulated feed, the MQTT exporter
// and the HTTP API together from loaded settings.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/wildalert/internal/alert"
	"github.com/tphakala/wildalert/internal/api"
	"github.com/tphakala/wildalert/internal/api/auth"
	"github.com/tphakala/wildalert/internal/conf"
	"github.com/tphakala/wildalert/internal/engine"
	"github.com/tphakala/wildalert/internal/events"
	"github.com/tphakala/wildalert/internal/ingest"
	"github.com/tphakala/wildalert/internal/logger"
	"github.com/tphakala/wildalert/internal/mqtt"
	"github.com/tphakala/wildalert/internal/notice"
	"github.com/tphakala/wildalert/internal/observability"
	"github.com/tphakala/wildalert/internal/suncalc"
	"github.com/tphakala/wildalert/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// Option customizes construction, mainly for tests and the simulate command.
type Option func(*options)

type options struct {
	console     io.Writer
	clock       func() time.Time
	source      ingest.Source
	ticker      ingest.TickerFactory
	mqttClient  mqtt.Client
	skipRuntime bool
}

// WithConsoleWriter redirects console logging.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithClock replaces the engine and notice clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithIngestSource replaces the ingestor's random source.
func WithIngestSource(src ingest.Source) Option {
	return func(o *options) { o.source = src }
}

// WithIngestTicker replaces the ingestor's ticker.
func WithIngestTicker(f ingest.TickerFactory) Option {
	return func(o *options) { o.ticker = f }
}

// WithMQTTClient replaces the broker client used by the exporter.
func WithMQTTClient(c mqtt.Client) Option {
	return func(o *options) { o.mqttClient = c }
}

// WithoutRuntimeCollectors skips the Go and process collectors.
func WithoutRuntimeCollectors() Option {
	return func(o *options) { o.skipRuntime = true }
}

// App owns every long-lived component.
type App struct {
	settings *conf.Settings

	central *logger.CentralLogger
	log     logger.Logger

	metrics  *observability.Metrics
	notices  *notice.Center
	bus      *events.EventBus
	mqtt     mqtt.Client
	engine   *engine.Engine
	ingestor *ingest.Ingestor
	server   *api.Server

	sentry    bool
	closeOnce sync.Once
	closeErr  error
}

// New builds the application. Components disabled in settings are left nil.
func New(settings *conf.Settings, opts ...Option) (*App, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{settings: settings}
	if err := a.initLogging(o); err != nil {
		return nil, err
	}
	if err := a.init(o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initLogging(o *options) error {
	logCfg := a.settings.Logging
	if a.settings.Debug {
		logCfg.DefaultLevel = string(logger.LogLevelDebug)
		if logCfg.Console != nil {
			console := *logCfg.Console
			console.Level = string(logger.LogLevelDebug)
			logCfg.Console = &console
		}
	}

	var logOpts []logger.Option
	if o.console != nil {
		logOpts = append(logOpts, logger.WithConsoleWriter(o.console))
	}
	central, err := logger.NewCentralLogger(&logCfg, logOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	a.central = central
	a.log = central.Module("app")
	return nil
}

func (a *App) init(o *options) error {
	s := a.settings

	enabled, err := telemetry.InitSentry(SentryConfig(s), s.Version, a.central.Module("telemetry"))
	if err != nil {
		a.log.Warn("sentry initialization failed, continuing without telemetry", logger.Error(err))
	}
	a.sentry = enabled

	if a.metrics, err = observability.NewMetrics(); err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	if !o.skipRuntime {
		if err := a.metrics.RegisterRuntimeCollectors(); err != nil {
			a.log.Warn("runtime collectors unavailable", logger.Error(err))
		}
	}

	a.notices = notice.NewCenter(NoticeConfig(s), a.central.Module("notice"))
	if o.clock != nil {
		a.notices.SetClock(o.clock)
	}

	a.bus = events.New(EventsConfig(s), a.central.Module("events"))
	if err := a.initMQTT(o); err != nil {
		return err
	}

	a.engine = engine.New(alert.NewStore(), engine.Options{
		Clock:   o.clock,
		Logger:  a.central.Module("engine"),
		Metrics: a.metrics.Alerts,
		Notices: a.notices,
		Events:  a.bus,
	})
	if s.Seed.Demo {
		if err := a.engine.SeedDemo(); err != nil {
			return fmt.Errorf("failed to seed demo alerts: %w", err)
		}
	}

	if s.Ingest.Enabled {
		if err := a.initIngest(o); err != nil {
			return err
		}
	}

	if s.WebServer.Enabled {
		if err := a.initServer(); err != nil {
			return err
		}
	}

	a.log.Info("wildalert initialized",
		logger.String("version", s.Version),
		logger.Bool("ingest", a.ingestor != nil),
		logger.Bool("mqtt", a.mqtt != nil),
		logger.Bool("webserver", a.server != nil),
		logger.Bool("sentry", a.sentry),
		logger.Int("seeded_alerts", a.engine.Store().Len()))
	return nil
}

func (a *App) initMQTT(o *options) error {
	if !a.settings.MQTT.Enabled {
		return nil
	}
	cfg := MQTTConfig(a.settings)
	log := a.central.Module("mqtt")

	client := o.mqttClient
	if client == nil {
		var err error
		if client, err = mqtt.NewClient(cfg, a.metrics.MQTT, log); err != nil {
			return fmt.Errorf("failed to create MQTT client: %w", err)
		}
	}
	if err := a.bus.RegisterConsumer(mqtt.NewExporter(client, cfg, a.metrics.MQTT, log)); err != nil {
		return fmt.Errorf("failed to register MQTT exporter: %w", err)
	}
	a.mqtt = client
	return nil
}

func (a *App) initIngest(o *options) error {
	ingestOpts := []ingest.Option{
		ingest.WithLogger(a.central.Module("ingest")),
		ingest.WithMetrics(a.metrics.Alerts),
		ingest.WithDaylight(suncalc.New(a.settings.Ingest.Latitude, a.settings.Ingest.Longitude)),
	}
	switch {
	case o.source != nil:
		ingestOpts = append(ingestOpts, ingest.WithSource(o.source))
	case a.settings.Ingest.Seed != 0:
		seed := a.settings.Ingest.Seed
		ingestOpts = append(ingestOpts, ingest.WithSource(rand.New(rand.NewPCG(seed, seed))))
	}
	if o.clock != nil {
		ingestOpts = append(ingestOpts, ingest.WithClock(o.clock))
	}
	if o.ticker != nil {
		ingestOpts = append(ingestOpts, ingest.WithTicker(o.ticker))
	}

	ing, err := ingest.New(IngestConfig(a.settings), a.engine, ingestOpts...)
	if err != nil {
		return fmt.Errorf("failed to create ingestor: %w", err)
	}
	a.ingestor = ing
	return nil
}

func (a *App) initServer() error {
	authService, err := auth.NewService(AuthConfig(a.settings), a.central.Module("auth"))
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}
	server, err := api.New(api.ConfigFromSettings(a.settings), a.engine, authService,
		api.WithLogger(a.central.Module("api")),
		api.WithMetrics(a.metrics),
		api.WithVersion(a.settings.Version))
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	a.server = server
	return nil
}

// Run starts every enabled component and blocks until ctx is cancelled or a
// component fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.mqtt != nil {
		g.Go(func() error {
			if err := a.mqtt.Connect(gctx); err != nil {
				// decisions are dropped until the broker is reachable
				a.log.Warn("MQTT broker unavailable", logger.Error(err))
			}
			return nil
		})
	}
	if a.ingestor != nil {
		g.Go(func() error { return a.ingestor.Run(gctx) })
	}
	if a.server != nil {
		g.Go(func() error { return a.server.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		a.log.Error("component failed", logger.Error(runErr))
	}
	return errors.Join(runErr, a.Close())
}

// Close stops every component. Safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		timeout := shutdownTimeout(a.settings)
		var errs []error

		if a.ingestor != nil {
			a.ingestor.Stop()
		}
		if a.engine != nil {
			a.engine.Close()
		}
		if a.bus != nil {
			if err := a.bus.Shutdown(timeout); err != nil {
				errs = append(errs, fmt.Errorf("event bus: %w", err))
			}
		}
		if a.mqtt != nil {
			a.mqtt.Disconnect()
		}
		if a.sentry {
			telemetry.Shutdown(telemetryFlushTimeout)
		}
		if a.log != nil {
			a.log.Info("wildalert stopped")
		}
		if a.central != nil {
			if err := a.central.Close(); err != nil {
				errs = append(errs, fmt.Errorf("logger: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Engine returns the alert engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Ingestor returns the ingestor, or nil when ingest is disabled.
func (a *App) Ingestor() *ingest.Ingestor { return a.ingestor }

// Server returns the HTTP server, or nil when the webserver is disabled.
func (a *App) Server() *api.Server { return a.server }

// Metrics returns the metric collectors.
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// EventStats returns the lifecycle event bus counters.
func (a *App) EventStats() events.EventBusStats { return a.bus.GetStats() }
