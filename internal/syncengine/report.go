package syncengine

import "github.com/zjrosen/dockswap/internal/titles/domain"

// EntryResult is the outcome of syncing one settings entry.
type EntryResult struct {
	EntryID  string
	Path     string
	Captured bool
	Restored bool
	Disabled bool
	Err      error
}

// Changed reports whether anything was written.
func (r EntryResult) Changed() bool {
	return r.Captured || r.Restored
}

// Report summarizes one SyncTitle or Seed call.
type Report struct {
	TitleID   string
	TitleName string
	Plan      Plan
	Skipped   bool
	Entries   []EntryResult
}

// Failures counts entries that ended in an error.
func (r Report) Failures() int {
	n := 0
	for _, e := range r.Entries {
		if e.Err != nil {
			n++
		}
	}
	return n
}

// Changed reports whether any entry was captured or restored.
func (r Report) Changed() bool {
	for _, e := range r.Entries {
		if e.Changed() {
			return true
		}
	}
	return false
}

func newReport(t *domain.Title, plan Plan) Report {
	return Report{TitleID: t.ID, TitleName: t.Name, Plan: plan}
}
