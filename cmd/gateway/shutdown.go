package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/tenantgw/internal/config"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// runGateway starts serving and blocks until shutdown.
func runGateway(ctx context.Context, app *application, flags cliFlags, lookup config.LookupFunc) error {
	if err := app.server.Start(ctx); err != nil {
		app.logger.Error("failed to start gateway", observability.Error(err))
		app.closeShared(ctx)
		return err
	}

	watcher := startConfigWatcher(ctx, app, flags, lookup)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	return waitForShutdown(ctx, app, watcher, sigCh)
}

// waitForShutdown blocks until a termination signal, a fatal serve error
// or ctx cancellation, then shuts down gracefully. SIGHUP reloads the
// configuration file.
func waitForShutdown(
	ctx context.Context,
	app *application,
	watcher *config.Watcher,
	sigCh <-chan os.Signal,
) error {
	errCh := app.server.Errors()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				forceReload(app, watcher)
				continue
			}
			app.logger.Info("received shutdown signal", observability.String("signal", sig.String()))
			shutdown(app, watcher)
			return nil

		case err := <-errCh:
			shutdown(app, watcher)
			if err != nil {
				return fmt.Errorf("gateway stopped serving: %w", err)
			}
			return nil

		case <-ctx.Done():
			app.logger.Info("context cancelled, shutting down")
			shutdown(app, watcher)
			return nil
		}
	}
}

func forceReload(app *application, watcher *config.Watcher) {
	if watcher == nil {
		app.logger.Info("SIGHUP ignored, no configuration file is watched")
		return
	}
	app.logger.Info("SIGHUP received, reloading configuration")
	if err := watcher.ForceReload(); err != nil {
		app.logger.Error("configuration reload failed, keeping previous snapshot", observability.Error(err))
		app.metrics.RecordConfigReload(false)
	}
}

// shutdown drains in-flight requests within the configured shutdown
// timeout, then releases shared components.
func shutdown(app *application, watcher *config.Watcher) {
	timeout := config.DefaultShutdownTimeout
	if snap := app.live(); snap != nil {
		if d := snap.config.Listen.ShutdownTimeout.Duration(); d > 0 {
			timeout = d
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			app.logger.Error("failed to stop config watcher", observability.Error(err))
		}
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	// Vault and the limiter stay open until the listener has drained.
	app.closeShared(shutdownCtx)

	app.logger.Info("gateway stopped")
}
