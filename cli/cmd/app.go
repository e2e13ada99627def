package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	redissink "github.com/swordworks/dsv4l2/adapter/redis"
	sqlitesink "github.com/swordworks/dsv4l2/adapter/sqlite"
	"github.com/swordworks/dsv4l2/config"
	"github.com/swordworks/dsv4l2/device"
	"github.com/swordworks/dsv4l2/driver/sim"
	"github.com/swordworks/dsv4l2/log"
	"github.com/swordworks/dsv4l2/profile"
	"github.com/swordworks/dsv4l2/rt"
)

// App is the assembled runtime environment a command operates in: config,
// event runtime with its sinks, the profile registry, and the device
// manager.
type App struct {
	Cfg      *config.Config
	Runtime  *rt.Runtime
	Registry *profile.Registry
	Manager  *device.Manager
	Logger   *log.Logger

	closers []func() error
}

// Setup assembles the environment from the --config file (or built-in
// defaults when absent) and starts the event runtime.
func Setup(c *cli.Context) (*App, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := log.NewLogger()

	rtCfg := rt.Config{
		Mission:      cfg.Mission,
		RingCapacity: cfg.RingCapacity,
		Logger:       logger,
	}
	if cfg.Instrumentation != "" {
		level, ok := rt.ParseLevel(cfg.Instrumentation)
		if !ok {
			return nil, fmt.Errorf("invalid instrumentation level %q", cfg.Instrumentation)
		}
		rtCfg.Level = level
		rtCfg.HasLevel = true
	}
	runtime := rt.Init(rtCfg)

	app := &App{Cfg: cfg, Runtime: runtime, Logger: logger}

	if err := app.wireSinks(); err != nil {
		return nil, err
	}

	registry := &profile.Registry{}
	if cfg.ProfileDir != "" {
		loaded, err := profile.LoadDir(cfg.ProfileDir, logger)
		if err != nil {
			return nil, err
		}
		registry = loaded
	}
	app.Registry = registry

	opener := sim.New()
	for _, dev := range cfg.Devices.Simulated {
		simCfg := sim.DeviceConfig{Card: dev.Card, Driver: "dsv4l2-sim"}
		if dev.TempestCtrl {
			simCfg.Controls = map[uint32]int32{profile.DefaultTempestCtrlID: 0}
		}
		opener.Add(dev.Path, simCfg)
	}

	manager, err := device.NewManager(device.ManagerConfig{
		Opener:   opener,
		Registry: registry,
		DevDir:   cfg.Devices.DevDir,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	app.Manager = manager

	return app, nil
}

// wireSinks registers the configured sinks with the runtime.
func (a *App) wireSinks() error {
	if path := a.Cfg.Sinks.File; path != "" {
		fileSink, err := rt.NewFileSink(path)
		if err != nil {
			return err
		}
		a.Runtime.RegisterSink(fileSink.Func())
		a.closers = append(a.closers, fileSink.Close)
	}

	if url := a.Cfg.Sinks.Redis.URL; url != "" {
		redisSink, err := redissink.New(redissink.Config{
			URL:     url,
			Channel: a.Cfg.Sinks.Redis.Channel,
			Timeout: a.Cfg.Sinks.Redis.Timeout.Duration,
		})
		if err != nil {
			return err
		}
		a.Runtime.RegisterSink(redisSink.Func())
		a.closers = append(a.closers, redisSink.Close)
	}

	if path := a.Cfg.Sinks.SQLite.Path; path != "" {
		sqliteSink, err := sqlitesink.New(sqlitesink.Config{
			Path:       path,
			Background: a.Cfg.Sinks.SQLite.Background,
		})
		if err != nil {
			return err
		}
		a.Runtime.RegisterSink(sqliteSink.Func())
		a.closers = append(a.closers, sqliteSink.Close)
	}

	return nil
}

// Close flushes the runtime and releases every sink.
func (a *App) Close() error {
	a.Runtime.Flush()
	var err error
	for _, closeFn := range a.closers {
		err = multierr.Append(err, closeFn())
	}
	return err
}
