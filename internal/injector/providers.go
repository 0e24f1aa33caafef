package injector

import (
	"github.com/google/wire"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/observability/metrics"
	"github.com/zeusync/grabkit/internal/core/scene"
	"github.com/zeusync/grabkit/internal/server"
)

// App is everything a host process needs to drive one configured scene.
type App struct {
	Config  scene.Config
	Logger  *log.Logger
	Events  bus.EventBus
	Scene   *scene.Scene
	Handles scene.Handles
	Stream  *server.StreamServer
	Metrics *metrics.Metrics
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideBus,
	ProvideMetrics,
	ProvideScene,
	ProvideHandles,
	ProvideStream,
	wire.Struct(new(App), "*"),
)

// ProvideLogger builds the process logger; the cleanup flushes it.
func ProvideLogger(cfg scene.Config) (*log.Logger, func(), error) {
	logger, err := log.NewWithConfig(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

// ProvideMetrics counts every event published on the bus.
func ProvideMetrics(events bus.EventBus) *metrics.Metrics {
	m := metrics.New()
	events.AddObserver(m)
	return m
}

func ProvideScene(cfg scene.Config, logger log.Log, events bus.EventBus) *scene.Scene {
	return scene.New(cfg.Defaults, logger.Named("scene"), events)
}

func ProvideHandles(cfg scene.Config, s *scene.Scene) (scene.Handles, error) {
	return cfg.Build(s)
}

// ProvideStream always builds the stream server; App users start it only
// when cfg.Stream.Enabled is set. With metrics enabled the scrape endpoint is
// served on the same listener.
func ProvideStream(cfg scene.Config, events bus.EventBus, m *metrics.Metrics, logger log.Log) (*server.StreamServer, error) {
	s := server.NewStreamServer(events, server.Config{
		Addr:         cfg.Stream.Addr,
		ClientBuffer: cfg.Stream.Buffer,
		UpdateRate:   cfg.Stream.UpdateRate,
	}, logger.Named("stream"))
	if cfg.Metrics.Enabled {
		s.Handle(cfg.Metrics.Path, m.Handler())
		if err := m.RegisterStream(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}
