package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	tgbot "github.com/go-telegram/bot"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgard/shamebot/internal/app"
	"github.com/edgard/shamebot/internal/database"
	"github.com/edgard/shamebot/internal/logger"
	"github.com/edgard/shamebot/internal/metrics"
	"github.com/edgard/shamebot/internal/notify"
	"github.com/edgard/shamebot/internal/server"
	"github.com/edgard/shamebot/internal/telegram"
	"github.com/edgard/shamebot/internal/trigger"
)

// serve wires every component and blocks until ctx is cancelled.
func (c *cli) serve(ctx context.Context) error {
	cfg, log := c.cfg, c.log

	db, err := database.WaitForDB(ctx, cfg.Database.Path, cfg.Database.RetryEvery, log)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNew(reg)

	var (
		tg       *tgbot.Bot
		notifier trigger.Notifier
	)
	if cfg.Telegram.Enabled {
		tg, err = telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
		if err != nil {
			return err
		}
		notifier, err = notify.NewTelegram(tg, store, notify.TelegramOptions{
			ChatID:   cfg.Telegram.ChatID,
			AppURL:   cfg.App.URL,
			Location: cfg.Location(),
			Logger:   log,
		})
		if err != nil {
			return err
		}
	} else {
		log.Warn("Telegram disabled, notifications will only be logged")
		notifier = notify.NewLog(log)
	}

	sched, err := trigger.NewScheduler(store, store, notifier, trigger.Options{
		Logger:        log,
		Location:      cfg.Location(),
		PesterUnit:    cfg.PesterUnit(),
		NotifyTimeout: cfg.Scheduler.NotifyTimeout,
		FireMissed:    cfg.Scheduler.FireMissed,
		Recorder:      m,
	})
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return err
	}

	if tg != nil {
		cmds := telegram.RegisterAllCommands(telegram.HandlerDeps{
			Logger:      log,
			AdminUserID: cfg.Telegram.AdminUserID,
			Jobs:        sched,
		})
		if err := telegram.RegisterHandlers(tg, log, cmds); err != nil {
			return err
		}
	}

	if schedule := cfg.Scheduler.MaintenanceSchedule; schedule != "" {
		err := sched.AddPeriodic("sql_maintenance", schedule, func(ctx context.Context) error {
			_, err := store.RunMaintenance(ctx)
			return err
		})
		if err != nil {
			log.Error("Failed to schedule database maintenance", "schedule", schedule, "error", err)
			return err
		}
	}

	reconciler := trigger.NewReconciler(sched, store, log, cfg.Scheduler.ReconcileConcurrency)
	srv := server.New(server.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Debug:           cfg.Logger.Level == "debug",
	}, store, sched, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), log)

	log.Info("Starting service...")
	runErr := app.New(log, sched, reconciler, srv, tg, m).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		return runErr
	}

	log.Info("Service stopped gracefully.")
	return nil
}

// migrate applies pending migrations and exits.
func (c *cli) migrate(ctx context.Context) error {
	db, err := database.WaitForDB(ctx, c.cfg.Database.Path, c.cfg.Database.RetryEvery, c.log)
	if err != nil {
		return err
	}
	database.CloseDB(db)
	c.log.Info("Migrations up to date", "path", c.cfg.Database.Path)
	return nil
}

// jobs prints the persisted trigger record of one task as JSON.
func (c *cli) jobs(ctx context.Context, out io.Writer, arg string) error {
	taskID, err := uuid.Parse(arg)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", arg, err)
	}

	// Read-only: never migrate a database we were only asked to inspect.
	db, err := database.OpenDB(c.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.CloseDB(db)

	record, err := database.NewStore(db, c.log).GetTriggerRecord(ctx, taskID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}
