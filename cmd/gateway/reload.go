package main

import (
	"context"
	"reflect"

	"github.com/vyrodovalexey/tenantgw/internal/config"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// startConfigWatcher starts the configuration watcher. It returns nil
// when the gateway runs without a configuration file or the watcher
// cannot start; the gateway keeps serving the initial snapshot.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	flags cliFlags,
	lookup config.LookupFunc,
) *config.Watcher {
	if flags.configPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(flags.configPath, lookup,
		func(cfg *config.GatewayConfig) {
			reloadConfig(ctx, app, cfg, flags)
		},
		config.WithLogger(app.logger),
		config.WithErrorCallback(func(error) {
			app.metrics.RecordConfigReload(false)
		}),
	)
	if err != nil {
		app.logger.Error("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		app.logger.Error("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}

// reloadConfig builds a snapshot from cfg and installs it. A snapshot
// that fails to build is discarded and the running one stays live.
func reloadConfig(ctx context.Context, app *application, cfg *config.GatewayConfig, flags cliFlags) {
	if applyFlagOverrides(cfg, flags) {
		if err := config.ValidateConfig(cfg); err != nil {
			app.logger.Error("reloaded configuration rejected", observability.Error(err))
			app.metrics.RecordConfigReload(false)
			return
		}
	}

	if prev := app.live(); prev != nil {
		warnRestartRequired(prev.config, cfg, app.logger)
	}

	snap, err := app.buildSnapshot(ctx, cfg)
	if err != nil {
		app.logger.Error("failed to apply reloaded configuration, keeping previous snapshot",
			observability.Error(err),
		)
		app.metrics.RecordConfigReload(false)
		return
	}

	app.install(snap)
	app.metrics.RecordConfigReload(true)
	app.logger.Info("configuration applied")
}

// warnRestartRequired logs settings that only take effect on restart.
// They belong to components shared by every snapshot.
func warnRestartRequired(prev, next *config.GatewayConfig, logger observability.Logger) {
	var sections []string
	if prev.Listen != next.Listen {
		sections = append(sections, "listen")
	}
	if !reflect.DeepEqual(prev.RateLimit, next.RateLimit) {
		sections = append(sections, "rateLimit")
	}
	if !reflect.DeepEqual(prev.ServiceIdentity.Vault, next.ServiceIdentity.Vault) {
		sections = append(sections, "serviceIdentity.vault")
	}
	if prev.Observability != next.Observability {
		sections = append(sections, "observability")
	}
	if len(sections) == 0 {
		return
	}

	logger.Warn("configuration changes require a restart to take effect",
		observability.Strings("sections", sections),
	)
}
