// Package notify implements the notification decision gate: deduplication,
// own-event suppression, message emission, badge counting, and history.
package notify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gitlab_notify/internal/cache"
	"gitlab_notify/internal/config"
	"gitlab_notify/internal/model"
)

// Platform is the injected notification capability.
type Platform interface {
	Create(id string, opts Options)
	SetBadgeText(text string)
}

// Options is the payload handed to the platform for one notification.
type Options struct {
	Type     string
	IconURL  string
	Title    string
	Message  string
	Priority int
}

// HistorySink receives the entries of emitted notifications.
type HistorySink interface {
	AddNotifiedHistories(ctx context.Context, entries []model.HistoryEntry) error
}

// Notifier gates events through the notification cache and policy filters
// and emits platform notifications for the ones that pass.
type Notifier struct {
	cfg       *config.Config
	platform  Platform
	cache     *cache.NotificationCache
	histories HistorySink
	count     int
}

// New creates a Notifier.
func New(cfg *config.Config, platform Platform, nc *cache.NotificationCache, histories HistorySink) *Notifier {
	return &Notifier{
		cfg:       cfg,
		platform:  platform,
		cache:     nc,
		histories: histories,
	}
}

// Request carries everything Notify needs to decide and emit.
type Request struct {
	Project         model.Project
	Event           model.ProjectEvent
	Target          model.ResolvedTarget
	Now             time.Time
	Message         string
	AuthorID        int64
	AuthorAvatarURL string
}

// Notify surfaces one event. It returns false without side effects when
// the event was already notified or belongs to the current user while own
// events are ignored. Otherwise it emits the platform notification,
// advances the unread badge, marks the cache, and appends a history entry.
func (n *Notifier) Notify(ctx context.Context, req Request) (bool, error) {
	if n.cache.Has(req.Event) {
		return false, nil
	}

	// Own-event suppression is a display filter, not a dedup fact: the
	// cache stays unmarked so the event may still notify after a policy
	// change.
	if n.cfg.IgnoreOwnEvents && req.AuthorID == n.cfg.UserID {
		return false, nil
	}

	key := cache.Key(req.Event)
	targetURL := n.SanitizeURL(req.Target.TargetURL)

	n.platform.Create(key, Options{
		Type:     "basic",
		IconURL:  req.Project.AvatarURL,
		Title:    req.Project.Name,
		Message:  req.Message,
		Priority: 0,
	})
	n.count++
	n.platform.SetBadgeText(strconv.Itoa(n.count))

	if err := n.cache.Add(ctx, req.Event); err != nil {
		return true, fmt.Errorf("mark notified: %w", err)
	}

	entry := model.HistoryEntry{
		ID:              key,
		ProjectID:       req.Event.ProjectID,
		ProjectName:     req.Project.Name,
		TargetType:      req.Event.TargetType,
		TargetID:        req.Target.TargetID,
		TargetURL:       targetURL,
		ActionName:      req.Event.ActionName,
		TargetTitle:     req.Event.TargetTitle,
		AuthorID:        req.AuthorID,
		AuthorName:      req.Event.Author.Name,
		AuthorAvatarURL: req.AuthorAvatarURL,
		Message:         req.Message,
		CreatedAt:       req.Event.CreatedAt,
		NotifiedAt:      req.Now.UTC().Format(time.RFC3339),
	}
	if err := n.histories.AddNotifiedHistories(ctx, []model.HistoryEntry{entry}); err != nil {
		return true, fmt.Errorf("append history: %w", err)
	}
	return true, nil
}

// Seen reports whether the event is already in the notification cache.
// The poller uses it to skip target resolution for stale events.
func (n *Notifier) Seen(e model.ProjectEvent) bool {
	return n.cache.Has(e)
}

// UnreadCount returns the number of notifications emitted so far.
func (n *Notifier) UnreadCount() int {
	return n.count
}

var (
	multiSlashRe  = regexp.MustCompile(`//+`)
	resourceSegRe = regexp.MustCompile(`/(issues|merge_requests|milestones)/`)
)

// SanitizeURL normalizes a target URL for display and linking: runs of
// slashes after the scheme collapse to one, and on GitLab 16.0+ instances
// the "-/" path segment is inserted before the resource path when missing.
// Pure and idempotent.
func (n *Notifier) SanitizeURL(raw string) string {
	scheme := ""
	rest := raw
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme = raw[:i+3]
		rest = raw[i+3:]
	}
	rest = multiSlashRe.ReplaceAllString(rest, "/")

	if n.cfg.IsGitLab16_0() && !strings.Contains(rest, "/-/") {
		if loc := resourceSegRe.FindStringIndex(rest); loc != nil {
			rest = rest[:loc[0]] + "/-" + rest[loc[0]:]
		}
	}
	return scheme + rest
}
