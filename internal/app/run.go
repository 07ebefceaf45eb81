package app

import (
	"context"
	"fmt"
	"io"

	"spe/internal/domain"
	"spe/internal/secret"
)

// Run restores a remembered session, starts background sync and serves the
// MCP tools on in/out until ctx ends. With MCP disabled it only runs the
// background work.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	a.restoreSession(ctx)

	if expr := a.cfg.Sync.Schedule; expr != "" {
		if a.remote == nil {
			a.log.Warn("sync schedule set without remote.base_url, ignoring")
		} else if err := a.scheduler.Start(ctx, expr); err != nil {
			return fmt.Errorf("sync scheduler: %w", err)
		}
	}

	if a.cfg.Sync.WatchCatalog {
		if path := a.backend.WatchPath; path != "" {
			if err := a.watcher.Start(ctx, path); err != nil {
				return fmt.Errorf("catalog watcher: %w", err)
			}
		} else {
			a.log.Warn("catalog watching needs a file-backed store", "driver", a.cfg.Storage.Driver)
		}
	}

	if !a.cfg.MCP.Enabled {
		a.log.Info("running without mcp, waiting for shutdown")
		<-ctx.Done()
		return nil
	}
	if err := a.mcp.Serve(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// restoreSession logs in with remembered credentials. Failures are logged;
// the app keeps working locally.
func (a *App) restoreSession(ctx context.Context) {
	if a.remote == nil || !a.cfg.Remote.Remember || a.cfg.Remote.Email == "" {
		return
	}
	password, ok, err := secret.Recall(a.secrets, a.cfg.Remote.Email)
	if err != nil {
		a.log.Warn("reading remembered credentials", "error", err)
		return
	}
	if !ok {
		return
	}
	report, err := a.state.Login(ctx, domain.Credentials{Email: a.cfg.Remote.Email, Password: password})
	if err != nil {
		a.log.Warn("restoring session", "error", err)
		return
	}
	a.log.Info("session restored",
		"adopted", len(report.Adopted),
		"preloaded", len(report.Preloaded),
		"pushed", len(report.Pushed))
}
