package importer

import "github.com/xxxsen/feedhub/internal/model"

// Report accumulates run counters and issue lists. Lists stop growing at the cap
// while the totals keep counting.
type Report struct {
	maxIssues int

	Created      int
	Updated      int
	Skipped      int
	Truncated    int
	ErrorTotal   int
	WarningTotal int
	LimitReached bool
	Errors       []model.ImportIssue
	Warnings     []model.ImportIssue
}

func newReport(maxIssues int) *Report {
	return &Report{
		maxIssues: maxIssues,
		Errors:    make([]model.ImportIssue, 0),
		Warnings:  make([]model.ImportIssue, 0),
	}
}

func (r *Report) Error(row *int, msg string) {
	r.ErrorTotal++
	if len(r.Errors) < r.maxIssues {
		r.Errors = append(r.Errors, model.ImportIssue{Row: row, Message: msg})
	}
}

func (r *Report) Warn(row *int, msg string) {
	r.WarningTotal++
	if len(r.Warnings) < r.maxIssues {
		r.Warnings = append(r.Warnings, model.ImportIssue{Row: row, Message: msg})
	}
}

func (r *Report) Imported() int {
	return r.Created + r.Updated
}

// RowRef is the row reference stored on issues: the 1-indexed physical line the
// record starts on, so blank lines and multi-line cells do not shift it.
func RowRef(line int) *int {
	return &line
}
