// Package model defines the domain types used across the application.
package model

import "strings"

// EventKind classifies project activity for per-project filtering.
type EventKind string

// Supported event kinds.
const (
	KindCommit       EventKind = "Commit"
	KindIssue        EventKind = "Issue"
	KindMergeRequest EventKind = "MergeRequest"
	KindMilestone    EventKind = "Milestone"
)

// AllEventKinds lists every supported kind in display order.
var AllEventKinds = []EventKind{KindCommit, KindIssue, KindMergeRequest, KindMilestone}

// Project is a watched GitLab project together with the event kinds the
// user wants notifications for.
type Project struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name_with_namespace"`
	Path      string             `json:"path_with_namespace"`
	AvatarURL string             `json:"avatar_url"`
	Events    map[EventKind]bool `json:"-"`
}

// WantsEvent reports whether notifications for the given kind are enabled.
// A project with no filter map accepts everything.
func (p Project) WantsEvent(kind EventKind) bool {
	if p.Events == nil {
		return true
	}
	return p.Events[kind]
}

// User is a GitLab user summary as embedded in events and returned by the
// users endpoints.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	State     string `json:"state"`
	AvatarURL string `json:"avatar_url"`
	WebURL    string `json:"web_url"`
}

// Branch is a repository branch from the branches endpoint.
type Branch struct {
	Name    string `json:"name"`
	Merged  bool   `json:"merged"`
	Default bool   `json:"default"`
}

// Trigger is a CI pipeline trigger token resource.
type Trigger struct {
	ID          int64  `json:"id"`
	Token       string `json:"token"`
	Description string `json:"description"`
}

// Commit is a single commit inside a push event payload.
type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// PushData is the payload attached to push/commit events.
type PushData struct {
	Ref        string   `json:"ref"`
	Before     string   `json:"before"`
	After      string   `json:"after"`
	TotalCount int      `json:"total_commits_count"`
	Commits    []Commit `json:"commits"`
}

// BranchName returns the push ref without its refs/heads/ prefix.
func (d PushData) BranchName() string {
	return strings.TrimPrefix(d.Ref, "refs/heads/")
}

// ProjectEvent is one activity record from the project events endpoint.
// CreatedAt is kept as the raw wire string: it participates in the
// notification cache key, which must be byte-stable across fetches.
type ProjectEvent struct {
	ProjectID   int64     `json:"project_id"`
	ActionName  string    `json:"action_name"`
	TargetID    int64     `json:"target_id"`
	TargetType  string    `json:"target_type"`
	TargetTitle string    `json:"target_title"`
	Title       string    `json:"title"`
	CreatedAt   string    `json:"created_at"`
	AuthorID    int64     `json:"author_id"`
	Author      User      `json:"author"`
	Data        *PushData `json:"data"`
}

// Kind maps the event's target type to an EventKind. Events without a
// target type (pushes) count as commits.
func (e ProjectEvent) Kind() EventKind {
	switch e.TargetType {
	case "Issue":
		return KindIssue
	case "MergeRequest":
		return KindMergeRequest
	case "Milestone":
		return KindMilestone
	}
	return KindCommit
}

// HasTarget reports whether the event references a resolvable entity
// (issue, merge request, or milestone).
func (e ProjectEvent) HasTarget() bool {
	switch e.TargetType {
	case "Issue", "MergeRequest", "Milestone":
		return true
	}
	return false
}

// ResolvedTarget is an event target resolved to its project-scoped IID and
// browsable URL. Events carry the internal numeric id, which is not what
// GitLab shows in URLs for issues, merge requests, and milestones.
type ResolvedTarget struct {
	TargetID  int64
	TargetURL string
}

// HistoryEntry records one emitted notification. ID equals the
// notification cache key that gated the emission.
type HistoryEntry struct {
	ID              string
	ProjectID       int64
	ProjectName     string
	TargetType      string
	TargetID        int64
	TargetURL       string
	ActionName      string
	TargetTitle     string
	AuthorID        int64
	AuthorName      string
	AuthorAvatarURL string
	Message         string
	CreatedAt       string
	NotifiedAt      string
}
