package fix

import (
	"fmt"
	"sort"

	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/models"
)

// Workload estimates the fix cost of one issue as effort × files, using
// configured defaults when the reviewer supplied no estimates.
func Workload(issue *models.Issue, cfg *config.FixConfig) int {
	effort := cfg.DefaultEffort
	if issue.Effort != nil {
		effort = *issue.Effort
	}
	files := cfg.DefaultFiles
	if issue.FilesToModify != nil {
		files = *issue.FilesToModify
	}
	return effort * files
}

// BuildBatches splits issues into fix batches, backend batches first. Within
// each class the issues are taken in descending workload order and packed
// greedily: an issue whose workload alone exceeds the cap takes its own
// batch; otherwise it joins the current batch while the batch stays within
// the issue-count and workload caps, else it opens a new one.
func BuildBatches(issues []models.Issue, cfg *config.FixConfig) []models.IssueBatch {
	byScope := map[models.BatchScope][]models.Issue{}
	for i := range issues {
		scope := Classify(&issues[i], cfg)
		byScope[scope] = append(byScope[scope], issues[i].Clone())
	}

	var batches []models.IssueBatch
	for _, scope := range []models.BatchScope{models.BatchScopeBackend, models.BatchScopeFrontend} {
		batches = append(batches, packScope(byScope[scope], scope, cfg)...)
	}
	for i := range batches {
		batches[i].ID = fmt.Sprintf("batch_%d_%s", i+1, batches[i].Scope)
	}
	return batches
}

func packScope(issues []models.Issue, scope models.BatchScope, cfg *config.FixConfig) []models.IssueBatch {
	if len(issues) == 0 {
		return nil
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return Workload(&issues[i], cfg) > Workload(&issues[j], cfg)
	})

	var batches []models.IssueBatch
	current := models.IssueBatch{Scope: scope}

	flush := func() {
		if len(current.Issues) > 0 {
			batches = append(batches, current)
			current = models.IssueBatch{Scope: scope}
		}
	}

	for i := range issues {
		w := Workload(&issues[i], cfg)
		if w > cfg.MaxWorkloadPoints {
			// Oversize issue: its own batch, ahead of the in-progress one.
			flush()
			batches = append(batches, models.IssueBatch{
				Issues:         []models.Issue{issues[i]},
				WorkloadPoints: w,
				Scope:          scope,
			})
			continue
		}
		if len(current.Issues) >= cfg.MaxIssuesPerBatch || current.WorkloadPoints+w > cfg.MaxWorkloadPoints {
			flush()
		}
		current.Issues = append(current.Issues, issues[i])
		current.WorkloadPoints += w
	}
	flush()
	return batches
}
