// Package scheduler drives the periodic poll of project activity.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"gitlab_notify/internal/config"
	"gitlab_notify/internal/gitlab"
	"gitlab_notify/internal/model"
	"gitlab_notify/internal/notify"
)

// Client is the slice of the GitLab client the poller needs.
type Client interface {
	LoadProjects(ctx context.Context) ([]model.Project, error)
	GetProjectEvents(ctx context.Context, projectID int64) ([]model.ProjectEvent, error)
	ResolveTarget(ctx context.Context, ref gitlab.TargetRef) (*model.ResolvedTarget, error)
	LoadAvatarURLs(ctx context.Context, userIDs []int64) map[int64]string
}

// Notifier is the notification gate the poller hands fresh events to.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (bool, error)
	Seen(e model.ProjectEvent) bool
}

// Scheduler periodically polls each watched project and notifies new events.
type Scheduler struct {
	client   Client
	notifier Notifier
	cfg      *config.Config
	log      *slog.Logger
	tick     time.Duration
}

// New creates a Scheduler polling at the configured interval.
func New(client Client, notifier Notifier, cfg *config.Config, log *slog.Logger) *Scheduler {
	tick := time.Duration(cfg.PollingSecond) * time.Second
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		client:   client,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		tick:     tick,
	}
}

// SetTickInterval overrides the configured poll interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the poll loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.CheckAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckAll(ctx)
		}
	}
}

// CheckAll runs one poll cycle over every watched project.
func (s *Scheduler) CheckAll(ctx context.Context) {
	projects, err := s.client.LoadProjects(ctx)
	if err != nil {
		s.log.Error("load projects", "error", err)
		return
	}

	for _, p := range projects {
		if ctx.Err() != nil {
			return
		}
		if p.Events == nil {
			p.Events = s.cfg.EventKinds
		}
		s.pollProject(ctx, p)
	}
}

func (s *Scheduler) pollProject(ctx context.Context, p model.Project) {
	s.log.Debug("checking project", "project_id", p.ID, "name", p.Name)

	events, err := s.client.GetProjectEvents(ctx, p.ID)
	if err != nil {
		s.log.Error("get project events", "project_id", p.ID, "error", err)
		return
	}

	var fresh []model.ProjectEvent
	for _, ev := range events {
		if !p.WantsEvent(ev.Kind()) {
			continue
		}
		if s.notifier.Seen(ev) {
			continue
		}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return
	}

	avatars := s.client.LoadAvatarURLs(ctx, authorIDs(fresh))

	sent := 0
	for _, ev := range fresh {
		target, err := s.resolve(ctx, p, ev)
		if err != nil {
			s.log.Error("resolve target", "project_id", p.ID, "target_type", ev.TargetType,
				"target_id", ev.TargetID, "error", err)
			continue
		}

		ok, err := s.notifier.Notify(ctx, notify.Request{
			Project:         p,
			Event:           ev,
			Target:          target,
			Now:             time.Now(),
			Message:         notify.FormatMessage(ev, target),
			AuthorID:        ev.AuthorID,
			AuthorAvatarURL: avatars[ev.AuthorID],
		})
		if err != nil {
			s.log.Error("notify", "project_id", p.ID, "error", err)
			continue
		}
		if ok {
			sent++
		}
	}

	if sent > 0 {
		s.log.Info("sent notifications", "project_id", p.ID, "name", p.Name, "count", sent)
	}
}

// resolve produces the browsable target for an event. Issues, merge
// requests, and milestones go through the API to translate the internal id
// into an IID; push events link to the branch commits page.
func (s *Scheduler) resolve(ctx context.Context, p model.Project, ev model.ProjectEvent) (model.ResolvedTarget, error) {
	if ev.HasTarget() {
		target, err := s.client.ResolveTarget(ctx, gitlab.TargetRef{
			TargetType:  ev.TargetType,
			TargetID:    ev.TargetID,
			ProjectID:   ev.ProjectID,
			ProjectName: p.Path,
		})
		if err != nil {
			return model.ResolvedTarget{}, err
		}
		return *target, nil
	}

	target := model.ResolvedTarget{TargetID: ev.TargetID}
	if ev.Data != nil {
		target.TargetURL = s.cfg.GitLabPath + "/" + p.Path + "/commits/" + ev.Data.BranchName()
	}
	return target, nil
}

func authorIDs(events []model.ProjectEvent) []int64 {
	seen := make(map[int64]bool, len(events))
	var ids []int64
	for _, ev := range events {
		if ev.AuthorID == 0 || seen[ev.AuthorID] {
			continue
		}
		seen[ev.AuthorID] = true
		ids = append(ids, ev.AuthorID)
	}
	return ids
}
