// Package app wires the scheduler, reconciler, HTTP API and Telegram listener
// together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/shamebot/internal/server"
	"github.com/edgard/shamebot/internal/trigger"
)

// ReconcileObserver records reconciliation passes.
type ReconcileObserver interface {
	ObserveReconcile(seconds float64)
	ReconcileFailed()
}

// App owns the long-running components of the service.
type App struct {
	logger     *slog.Logger
	scheduler  *trigger.Scheduler
	reconciler *trigger.Reconciler
	server     *server.Server
	tgBot      *tgbot.Bot
	observer   ReconcileObserver
}

// New creates the orchestrator. tgBot and observer may be nil.
func New(
	logger *slog.Logger,
	scheduler *trigger.Scheduler,
	reconciler *trigger.Reconciler,
	srv *server.Server,
	tgBot *tgbot.Bot,
	observer ReconcileObserver,
) *App {
	return &App{
		logger:     logger.With("component", "orchestrator"),
		scheduler:  scheduler,
		reconciler: reconciler,
		server:     srv,
		tgBot:      tgBot,
		observer:   observer,
	}
}

// Run starts the dispatch loop, resumes persisted triggers, then serves until
// ctx is cancelled or a component fails. A failed resume is logged and the
// service keeps serving; triggers it could not rebuild come back on the next
// registration of their task or the next restart.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting orchestrator...")

	a.scheduler.Start()
	defer func() {
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
	}()

	report, err := a.reconciler.Run(ctx)
	if a.observer != nil {
		a.observer.ObserveReconcile(report.Duration.Seconds())
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if a.observer != nil {
			a.observer.ReconcileFailed()
		}
		a.logger.Error("Failed to resume triggers, serving without them", "error", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gCtx)
	})

	if a.tgBot != nil {
		g.Go(func() error {
			a.logger.Info("Starting Telegram command listener...")
			a.tgBot.Start(gCtx)
			a.logger.Info("Telegram command listener stopped.")

			if gCtx.Err() == nil {
				return errors.New("telegram listener stopped unexpectedly")
			}
			return nil
		})
	}

	a.logger.Info("Orchestrator running. Waiting for shutdown signal or error...")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Orchestrator stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Orchestrator stopped gracefully.")
	return nil
}
