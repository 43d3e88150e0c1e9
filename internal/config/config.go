// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gitlab_notify/internal/model"
)

// Config holds the application configuration.
type Config struct {
	APIPath          string
	GitLabPath       string
	PrivateToken     string
	PollingSecond    int
	PerPage          int
	IgnoreOwnEvents  bool
	UserID           int64
	EventKinds       map[model.EventKind]bool
	TelegramBotToken string
	TelegramChatID   int64
	DatabasePath     string
	LogLevel         string

	gitlabMajor int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	chatID, err := envInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}

	apiPath := strings.TrimRight(os.Getenv("GITLAB_API_PATH"), "/")
	gitlabPath := strings.TrimRight(os.Getenv("GITLAB_PATH"), "/")
	if apiPath != "" && os.Getenv("GITLAB_PRIVATE_TOKEN") == "" {
		return nil, fmt.Errorf("GITLAB_PRIVATE_TOKEN is required when GITLAB_API_PATH is set")
	}

	pollingSecond, err := envInt("POLLING_SECOND", 60)
	if err != nil {
		return nil, err
	}
	perPage, err := envInt("PER_PAGE", 100)
	if err != nil {
		return nil, err
	}
	userID, err := envInt64("GITLAB_USER_ID", 0)
	if err != nil {
		return nil, err
	}

	kinds, err := parseEventKinds(os.Getenv("EVENT_KINDS"))
	if err != nil {
		return nil, err
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/notifier.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		APIPath:          apiPath,
		GitLabPath:       gitlabPath,
		PrivateToken:     os.Getenv("GITLAB_PRIVATE_TOKEN"),
		PollingSecond:    pollingSecond,
		PerPage:          perPage,
		IgnoreOwnEvents:  os.Getenv("IGNORE_OWN_EVENTS") == "true",
		UserID:           userID,
		EventKinds:       kinds,
		TelegramBotToken: token,
		TelegramChatID:   chatID,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
	}, nil
}

// SetGitLabVersion records the instance version probed at startup.
// Unparseable versions leave the previous value untouched.
func (c *Config) SetGitLabVersion(version string) {
	major := strings.SplitN(version, ".", 2)[0]
	n, err := strconv.Atoi(major)
	if err != nil {
		return
	}
	c.gitlabMajor = n
}

// IsGitLab16_0 reports whether the instance is GitLab 16.0 or newer, which
// changed activity links to carry a "-/" path segment.
func (c *Config) IsGitLab16_0() bool {
	return c.gitlabMajor >= 16
}

// parseEventKinds parses a comma-separated kind list into a filter map.
// An empty list enables every kind.
func parseEventKinds(raw string) (map[model.EventKind]bool, error) {
	kinds := make(map[model.EventKind]bool, len(model.AllEventKinds))
	if raw == "" {
		for _, k := range model.AllEventKinds {
			kinds[k] = true
		}
		return kinds, nil
	}

	known := make(map[model.EventKind]bool, len(model.AllEventKinds))
	for _, k := range model.AllEventKinds {
		known[k] = true
	}

	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := model.EventKind(s)
		if !known[k] {
			return nil, fmt.Errorf("unknown event kind %q in EVENT_KINDS", s)
		}
		kinds[k] = true
	}
	return kinds, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64(key string, def int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}
