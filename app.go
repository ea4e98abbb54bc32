package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"screenrec/internal/bootstrap"
	"screenrec/internal/config"
	"screenrec/internal/domain"
	"screenrec/internal/events"
	"screenrec/internal/httpapi"
	"screenrec/internal/logging"
	"screenrec/internal/procstat"
)

const shutdownTimeout = 30 * time.Second

// App is the recorder service root. It receives session events from the
// controller and forwards them to the log and to websocket clients.
type App struct {
	logger *slog.Logger
	hub    *events.Hub
}

func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = logging.Discard()
	}
	return &App{
		logger: logger,
		hub:    events.NewHub(logger.With("component", "events"), events.DefaultKeepAliveWindow),
	}
}

// Run serves the control API until ctx ends, then stops any running capture
// so its files are finalized before the process exits.
func (a *App) Run(ctx context.Context, cfg config.Config) error {
	services, err := bootstrap.Build(cfg, a, a.logger)
	if err != nil {
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return err
	}
	controller := services.Controller
	a.hub.SetSnapshotSource(controller.Status)

	server := httpapi.New(controller, a.hub, a.logger.With("component", "api"), httpapi.Options{
		AuthToken: cfg.Server.AuthToken,
		Enrich:    procstat.Enrich,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go services.Watchdog.Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.Addr())
	}()

	a.logger.Info("recorder listening",
		"addr", cfg.Addr(),
		"recordings", cfg.RecordingsFolder,
		"capture_mode", cfg.Capture.Mode,
		"keep_alive_timeout", cfg.KeepAliveTimeout(),
	)
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecorderReady)

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("api server failed: %w", err)
		}
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := controller.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("capture shutdown failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api shutdown failed", "error", err)
	}
	return runErr
}

// SessionStateChanged logs and broadcasts session lifecycle updates.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.logger.Info("session state changed",
		"state", state,
		"reason", reason,
		"message", events.ReasonMessage(reason),
	)
	a.hub.SessionStateChanged(state, reason)
}

// KeepAlive broadcasts keep-alive receipts.
func (a *App) KeepAlive(at time.Time) {
	a.logger.Log(context.Background(), logging.LevelTrace, "keep-alive received", "at", at)
	a.hub.KeepAlive(at)
}

// SessionError logs and broadcasts backend errors.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.logger.Warn("session error",
		"code", code,
		"message", events.ErrorMessage(code, detail),
		"detail", detail,
	)
	a.hub.SessionError(code, detail)
}
