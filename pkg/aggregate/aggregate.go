// Package aggregate merges per-reviewer issue lists into the final report
// inputs: deduplication, priority scoring, ordering, overall score, and the
// recommendation verdict. The pipeline is pure and idempotent; running it on
// its own output returns the same output.
package aggregate

import (
	"math"
	"sort"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// severityBase is the priority base per severity.
var severityBase = map[models.Severity]float64{
	models.SeverityCritical: 40,
	models.SeverityHigh:     30,
	models.SeverityMedium:   20,
	models.SeverityLow:      10,
}

// categoryMultiplier boosts security and performance findings.
var categoryMultiplier = map[models.Category]float64{
	models.CategorySecurity:    1.5,
	models.CategoryPerformance: 1.2,
}

// scoreDeduction is the overall-score penalty per severity.
var scoreDeduction = map[models.Severity]float64{
	models.SeverityCritical: 2.0,
	models.SeverityHigh:     1.0,
	models.SeverityMedium:   0.5,
	models.SeverityLow:      0.1,
}

// Run executes the whole pipeline: dedup, priority, sort. The input is not
// mutated.
func Run(issues []models.Issue) []models.Issue {
	out := Deduplicate(issues)
	for i := range out {
		out[i].Priority = PriorityScore(&out[i])
	}
	Sort(out)
	return out
}

// Deduplicate merges issues sharing a (file, line, category) key. Input
// order is the stable order: the first issue seen for a key anchors the
// merged result, and later duplicates fold into it.
func Deduplicate(issues []models.Issue) []models.Issue {
	out := make([]models.Issue, 0, len(issues))
	index := make(map[string]int, len(issues))

	for i := range issues {
		key := issues[i].Key()
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, issues[i].Clone())
			continue
		}
		merge(&out[at], &issues[i])
	}
	return out
}

// merge folds dup into kept under the published rules: highest severity,
// union of flagged_by, longest non-empty message and suggestion, first
// non-empty code snippets.
func merge(kept, dup *models.Issue) {
	if dup.Severity.Rank() > kept.Severity.Rank() {
		kept.Severity = dup.Severity
	}
	for _, name := range dup.FlaggedBy {
		if !contains(kept.FlaggedBy, name) {
			kept.FlaggedBy = append(kept.FlaggedBy, name)
		}
	}
	if len(dup.Message) > len(kept.Message) {
		kept.Message = dup.Message
	}
	if len(dup.Suggestion) > len(kept.Suggestion) {
		kept.Suggestion = dup.Suggestion
	}
	if kept.CurrentCode == "" {
		kept.CurrentCode = dup.CurrentCode
	}
	if kept.SuggestedCode == "" {
		kept.SuggestedCode = dup.SuggestedCode
	}
	if kept.Effort == nil && dup.Effort != nil {
		e := *dup.Effort
		kept.Effort = &e
	}
	if kept.FilesToModify == nil && dup.FilesToModify != nil {
		f := *dup.FilesToModify
		kept.FilesToModify = &f
	}
}

// PriorityScore computes the priority for one issue:
// min(100, round(base × multiplier + 5 × (flagged_by − 1))).
func PriorityScore(issue *models.Issue) int {
	base := severityBase[issue.Severity]
	mult, ok := categoryMultiplier[issue.Category]
	if !ok {
		mult = 1.0
	}
	bonus := 5.0 * float64(max(len(issue.FlaggedBy)-1, 0))

	p := int(math.Round(base*mult + bonus))
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// Sort orders issues by priority descending, then severity rank, file path,
// and start line ascending.
func Sort(issues []models.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := &issues[i], &issues[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return lineOf(a) < lineOf(b)
	})
}

func lineOf(issue *models.Issue) int {
	if issue.StartLine == nil {
		return -1
	}
	return *issue.StartLine
}

// OverallScore starts at 10.0 and deducts per issue severity, clamped to
// [0.0, 10.0].
func OverallScore(issues []models.Issue) float64 {
	score := 10.0
	for i := range issues {
		score -= scoreDeduction[issues[i].Severity]
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	// One decimal place, matching the deduction granularity.
	return math.Round(score*10) / 10
}

// SeverityCounts tallies issues per severity.
func SeverityCounts(issues []models.Issue) map[models.Severity]int {
	counts := make(map[models.Severity]int, 4)
	for i := range issues {
		counts[issues[i].Severity]++
	}
	return counts
}

// Recommend maps the issue set to a verdict: request-changes on any critical
// or more than three highs, approve-with-changes on one to three highs,
// approve otherwise.
func Recommend(issues []models.Issue) models.Recommendation {
	counts := SeverityCounts(issues)
	switch {
	case counts[models.SeverityCritical] > 0 || counts[models.SeverityHigh] > 3:
		return models.RecommendationRequestChanges
	case counts[models.SeverityHigh] >= 1:
		return models.RecommendationApproveWithChanges
	default:
		return models.RecommendationApprove
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
