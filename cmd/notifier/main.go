package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"gitlab_notify/internal/cache"
	"gitlab_notify/internal/config"
	"gitlab_notify/internal/gitlab"
	"gitlab_notify/internal/notify"
	"gitlab_notify/internal/platform"
	"gitlab_notify/internal/scheduler"
	"gitlab_notify/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	avatars, err := cache.LoadAvatarCache(ctx, store)
	if err != nil {
		log.Error("load avatar cache", "error", err)
		os.Exit(1)
	}
	nc, err := cache.LoadNotificationCache(ctx, store)
	if err != nil {
		log.Error("load notification cache", "error", err)
		os.Exit(1)
	}

	client := gitlab.New(cfg, http.DefaultClient, avatars)

	if cfg.APIPath != "" {
		if version, err := client.Version(ctx); err != nil {
			log.Warn("probe gitlab version", "error", err)
		} else {
			cfg.SetGitLabVersion(version)
			log.Info("gitlab instance", "version", version, "api_version", client.APIVersion())
		}

		if cfg.UserID == 0 {
			user, err := client.CurrentUser(ctx)
			if err != nil {
				log.Warn("resolve current user", "error", err)
			} else {
				cfg.UserID = user.ID
				log.Info("authenticated", "user", user.Username, "user_id", user.ID)
			}
		}
	}

	sink, err := platform.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
	if err != nil {
		log.Error("create telegram sink", "error", err)
		os.Exit(1)
	}

	notifier := notify.New(cfg, sink, nc, store)
	sched := scheduler.New(client, notifier, cfg, log)

	log.Info("starting notifier", "polling_second", cfg.PollingSecond)

	sched.Run(ctx)

	log.Info("notifier stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
