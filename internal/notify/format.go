package notify

import (
	"fmt"
	"strings"

	"gitlab_notify/internal/model"
)

// FormatMessage renders the user-visible text for one event.
// Target events read like "[Issue] #830 Public project search field closed";
// push events use the branch and head commit instead.
func FormatMessage(e model.ProjectEvent, target model.ResolvedTarget) string {
	if e.HasTarget() {
		title := e.TargetTitle
		if title == "" {
			title = e.Title
		}
		return fmt.Sprintf("[%s] #%d %s %s", e.TargetType, target.TargetID, title, e.ActionName)
	}

	if e.Data != nil {
		branch := e.Data.BranchName()
		if len(e.Data.Commits) > 0 {
			head := e.Data.Commits[len(e.Data.Commits)-1]
			return fmt.Sprintf("[Commit] %s %s: %s", e.ActionName, branch, firstLine(head.Message))
		}
		return fmt.Sprintf("[Commit] %s %s", e.ActionName, branch)
	}

	return fmt.Sprintf("[%s] %s", e.Kind(), e.ActionName)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimRight(s[:i], "\r")
	}
	return s
}
