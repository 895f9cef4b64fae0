package main

import (
	"context"
	"fmt"

	"github.com/HerbHall/logsentinel/internal/collector"
	"github.com/HerbHall/logsentinel/internal/config"
	"github.com/HerbHall/logsentinel/internal/event"
	"github.com/HerbHall/logsentinel/internal/insight"
	"github.com/HerbHall/logsentinel/internal/llm"
	"github.com/HerbHall/logsentinel/internal/loki"
	"github.com/HerbHall/logsentinel/internal/registry"
	"github.com/HerbHall/logsentinel/internal/report"
	"github.com/HerbHall/logsentinel/internal/store"
	"github.com/HerbHall/logsentinel/internal/version"
	"github.com/HerbHall/logsentinel/internal/webhook"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds the shared services every subcommand runs on.
type app struct {
	v      *viper.Viper
	cfg    *config.ViperConfig
	logger *zap.Logger
	db     *store.SQLiteStore // nil unless a database is configured
	loki   *loki.Client
	bus    *event.Bus
	reg    *registry.Registry

	collector *collector.Module
	insight   *insight.Module
}

// bootstrap loads configuration, opens the shared services, and initializes
// every enabled plugin. overrides are applied on top of file and environment
// values. The caller must Close the returned app.
func bootstrap(ctx context.Context, configPath string, overrides map[string]any) (*app, error) {
	v, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for key, val := range overrides {
		v.Set(key, val)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{v: v, cfg: config.New(v), logger: logger}

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Debug("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	if needsDatabase(v) {
		dsn := v.GetString("database.dsn")
		db, err := store.New(dsn)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		if err := db.CheckVersion(ctx, version.Short()); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("database initialized",
			zap.String("component", "database"),
			zap.String("dsn", dsn),
		)
	}

	lokiCfg := loki.DefaultConfig()
	if err := a.cfg.Sub("loki").Unmarshal(&lokiCfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("unmarshal loki config: %w", err)
	}
	a.loki = loki.NewClient(lokiCfg)

	a.bus = event.NewBus(logger.Named("event"))
	a.reg = registry.New(logger.Named("registry"))

	a.collector = collector.New(a.loki)
	a.insight = insight.New()
	modules := []plugin.Plugin{
		a.insight,
		llm.New(),
		report.New(),
		webhook.New(),
		a.collector,
	}
	for _, m := range modules {
		info := m.Info()
		if !info.Required && !v.GetBool("plugins."+info.Name+".enabled") {
			logger.Info("plugin disabled by configuration", zap.String("name", info.Name))
			continue
		}
		if err := a.reg.Register(m); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to register plugin: %w", err)
		}
	}

	if err := a.reg.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("plugin validation failed: %w", err)
	}

	if err := a.reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  a.cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Store:   a.store(),
			Bus:     a.bus,
			Plugins: a.reg,
		}
	}); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize plugins: %w", err)
	}
	return a, nil
}

// needsDatabase reports whether the shared SQLite store must be opened.
func needsDatabase(v *viper.Viper) bool {
	return v.GetBool("database.enabled") || v.GetString("plugins.insight.backend") == insight.BackendSQLite
}

// store returns the database as a plugin.Store, or a nil interface when no
// database is open.
func (a *app) store() plugin.Store {
	if a.db == nil {
		return nil
	}
	return a.db
}

// ready reports whether the daemon can serve: the database answers and Loki
// reports ready.
func (a *app) ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.DB().PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := a.loki.Ready(ctx); err != nil {
		return fmt.Errorf("loki: %w", err)
	}
	return nil
}

// Close releases the database and flushes the logger.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
