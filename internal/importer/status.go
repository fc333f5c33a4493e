package importer

import "github.com/xxxsen/feedhub/internal/model"

var statusAliases = map[string][]string{
	model.PostStatusOpen:        {"open", "new", "pending", "todo", "backlog", "submitted", "idea", "requested"},
	model.PostStatusUnderReview: {"underreview", "review", "reviewing", "inreview", "needsreview", "triage", "considering"},
	model.PostStatusPlanned:     {"planned", "plan", "scheduled", "upcoming", "roadmap", "next", "later"},
	model.PostStatusInProgress:  {"inprogress", "progress", "started", "doing", "wip", "building", "active", "indevelopment"},
	model.PostStatusCompleted:   {"completed", "complete", "done", "shipped", "released", "live", "resolved", "fixed", "launched"},
	model.PostStatusClosed:      {"closed", "declined", "rejected", "wontfix", "wontdo", "duplicate", "archived", "cancelled", "canceled"},
}

var statusIndex = buildStatusIndex()

func buildStatusIndex() map[string]string {
	index := make(map[string]string)
	for status, aliases := range statusAliases {
		for _, alias := range aliases {
			index[alias] = status
		}
	}
	return index
}

// NormalizeStatus maps a free-form status onto a post status.
func NormalizeStatus(raw string) (string, bool) {
	status, ok := statusIndex[normalizeKey(raw)]
	return status, ok
}
