package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"maptap/internal/config"
	"maptap/internal/jobs"
	"maptap/internal/keepalive"
	"maptap/internal/schedule"
	"maptap/internal/store"
	"maptap/internal/tracker"
	"maptap/internal/transport/telegram"
	logx "maptap/pkg/logx"
)

func main() {
	var (
		cfgPath string
		envPath string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.StringVar(&envPath, "env", "", "optional .env file with secrets")
	flag.Parse()

	if err := run(cfgPath, envPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath, envPath string) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load env: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer func() { _ = closeLog() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loc, err := time.LoadLocation(cfg.Tracker.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		Repo:        cfg.Store.Repo,
		Token:       cfg.Store.Token,
		Path:        cfg.Store.Path,
		BusyTimeout: config.Duration(cfg.Store.BusyTimeout, 0),
		URI:         cfg.Store.URI,
		Database:    cfg.Store.Database,
		Collection:  cfg.Store.Collection,
		Timeout:     config.Duration(cfg.Store.Timeout, 20*time.Second),
	}, log.With(logx.String("component", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	svc := tracker.NewService(st, tracker.Config{
		ScoresPath:    cfg.Store.ScoresPath,
		UsersPath:     cfg.Store.UsersPath,
		MaxScore:      cfg.Tracker.MaxScore,
		RetentionDays: cfg.Tracker.RetentionDays,
	}, loc, log.With(logx.String("component", "tracker")))

	engine := schedule.NewEngine(st, cfg.Store.SchedulePath, loc, log.With(logx.String("component", "schedule")))

	bot, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		ChatID:       cfg.Telegram.ChatID,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		PollTimeout:  config.Duration(cfg.Telegram.PollTimeout, 10*time.Second),
		RatePerSec:   cfg.Telegram.RatePerSec,
		Emojis: telegram.Emojis{
			Recorded: cfg.Telegram.Emojis.Recorded,
			TooHigh:  cfg.Telegram.Emojis.TooHigh,
			Rescan:   cfg.Telegram.Emojis.Rescan,
		},
		URL: cfg.Tracker.URL,
	}, svc, engine, log.With(logx.String("component", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	jobs.Register(engine, svc, bot, jobs.Config{
		RivalryGap:        cfg.Tracker.RivalryGap,
		RivalryMinPlayers: cfg.Tracker.RivalryMinPlayers,
	}, log.With(logx.String("component", "jobs")))

	sched := schedule.NewService(engine, loc, log.With(logx.String("component", "cron")))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop(context.Background())

	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}
	defer bot.Stop(context.Background())

	ka := keepalive.New(keepalive.Config{
		Enabled: cfg.Keepalive.Enabled,
		Addr:    cfg.Keepalive.Addr,
	}, log.With(logx.String("component", "keepalive")))
	if err := ka.Start(ctx); err != nil {
		return fmt.Errorf("start keepalive: %w", err)
	}
	defer ka.Stop(context.Background())

	// Hot-reload ingestion limits; everything else needs a restart.
	watcher := config.NewWatcher(cfgPath, log.With(logx.String("component", "config")), func(next *config.Config) {
		svc.SetLimits(next.Tracker.MaxScore, next.Tracker.RetentionDays)
	})
	watcher.Seed(cfg)
	go func() { _ = watcher.Run(ctx) }()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("maptap bot up",
		logx.String("store", cfg.Store.Driver),
		logx.String("tz", cfg.Tracker.Timezone),
		logx.Int64("chat", cfg.Telegram.ChatID))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")
	return nil
}
