package models

import (
	"fmt"
	"path"
	"strings"
)

// Issue is the canonical finding produced by reviewers and consumed by the
// aggregation pipeline and the fix orchestrator. Severity and Category are
// from closed enums; Priority is computed by aggregation, never supplied.
type Issue struct {
	File          string   `json:"file"`
	StartLine     *int     `json:"start_line,omitempty"`
	EndLine       *int     `json:"end_line,omitempty"`
	Severity      Severity `json:"severity"`
	Category      Category `json:"category"`
	Message       string   `json:"message"`
	Suggestion    string   `json:"suggestion,omitempty"`
	CurrentCode   string   `json:"current_code,omitempty"`
	SuggestedCode string   `json:"suggested_code,omitempty"`
	FlaggedBy     []string `json:"flagged_by,omitempty"`
	Effort        *int     `json:"estimated_effort,omitempty"` // 1-5
	FilesToModify *int     `json:"estimated_files,omitempty"`
	Priority      int      `json:"priority"`
}

// Key returns the deduplication key: (normalized file path, line or null,
// category). Issues sharing a key are merged by the aggregation pipeline.
func (i *Issue) Key() string {
	line := "-"
	if i.StartLine != nil {
		line = fmt.Sprintf("%d", *i.StartLine)
	}
	return strings.ToLower(path.Clean(filepathToSlash(i.File))) + "|" + line + "|" + string(i.Category)
}

// Clone returns a deep copy. Issues flow upward between components and are
// copied, never shared mutably.
func (i *Issue) Clone() Issue {
	c := *i
	if i.StartLine != nil {
		v := *i.StartLine
		c.StartLine = &v
	}
	if i.EndLine != nil {
		v := *i.EndLine
		c.EndLine = &v
	}
	if i.Effort != nil {
		v := *i.Effort
		c.Effort = &v
	}
	if i.FilesToModify != nil {
		v := *i.FilesToModify
		c.FilesToModify = &v
	}
	c.FlaggedBy = append([]string(nil), i.FlaggedBy...)
	return c
}

// CloneIssues deep-copies a slice of issues.
func CloneIssues(issues []Issue) []Issue {
	if issues == nil {
		return nil
	}
	out := make([]Issue, len(issues))
	for n := range issues {
		out[n] = issues[n].Clone()
	}
	return out
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// IssueBatch is a group of issues fixed together by a single fixer loop.
// Size and workload limits are enforced by the batching algorithm; a batch
// may exceed the workload cap only when it holds a single oversize issue.
type IssueBatch struct {
	ID             string     `json:"id"`
	Issues         []Issue    `json:"issues"`
	WorkloadPoints int        `json:"workload_points"`
	Scope          BatchScope `json:"scope"`
}
