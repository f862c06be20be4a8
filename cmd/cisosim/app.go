package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Guivernoir/CISO-sim/pkg/catalog"
	"github.com/Guivernoir/CISO-sim/pkg/config"
	"github.com/Guivernoir/CISO-sim/pkg/engine"
	"github.com/Guivernoir/CISO-sim/pkg/observability"
	"github.com/Guivernoir/CISO-sim/pkg/persistence"
	"github.com/Guivernoir/CISO-sim/pkg/savestore"
	"github.com/Guivernoir/CISO-sim/pkg/version"
)

// app is everything a command needs, built from the environment.
type app struct {
	cfg       *config.Config
	tuning    config.Tuning
	logger    *slog.Logger
	telemetry *observability.Provider
	engine    *engine.Engine
	catalog   *catalog.Catalog
	saves     *persistence.Manager
	store     savestore.Store
}

func bootstrap(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel, stderr)
	slog.SetDefault(logger)

	tuning, err := config.LoadTuning(cfg.Profile)
	if err != nil {
		return nil, err
	}

	otel := observability.DefaultConfig()
	otel.ServiceVersion = version.Engine
	otel.Enabled = cfg.TelemetryEnabled
	otel.OTLPEndpoint = cfg.OTLPEndpoint
	telemetry, err := observability.New(ctx, otel)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	eng, err := engine.New(tuning.Engine, engine.WithLogger(logger.With("component", "engine")), engine.WithTelemetry(telemetry))
	if err != nil {
		return nil, err
	}

	var cat *catalog.Catalog
	if cfg.CatalogDir == "" {
		cat, err = catalog.Default(ctx)
	} else {
		var loader *catalog.Loader
		if loader, err = catalog.NewLoader(); err == nil {
			cat, err = loader.LoadDir(ctx, cfg.CatalogDir)
		}
	}
	if err != nil {
		return nil, err
	}

	saves, err := persistence.NewManager(
		persistence.WithKDFParams(tuning.KDF),
		persistence.WithBounds(tuning.Engine.Bounds),
		persistence.WithLogger(logger.With("component", "persistence")),
		persistence.WithTelemetry(telemetry),
	)
	if err != nil {
		return nil, err
	}

	store, err := savestore.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("save store: %w", err)
	}

	logger.Debug("bootstrapped",
		"profile", tuning.Name,
		"catalog", cat.Version(),
		"storage", cfg.Storage.Backend,
		"telemetry", cfg.TelemetryEnabled,
	)
	return &app{
		cfg:       cfg,
		tuning:    tuning,
		logger:    logger,
		telemetry: telemetry,
		engine:    eng,
		catalog:   cat,
		saves:     saves,
		store:     store,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if c, ok := a.store.(io.Closer); ok {
		_ = c.Close()
	}
	_ = a.telemetry.Shutdown(ctx)
}
