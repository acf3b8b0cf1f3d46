package review

import (
	"encoding/json"
	"strings"

	"github.com/turbowrap/turbowrap/pkg/llm"
	"github.com/turbowrap/turbowrap/pkg/models"
)

// ParseIssues extracts the issue list from a reviewer's raw output and
// normalizes it: enum values are lowercased and validated, out-of-range
// efforts are clamped, and every issue is tagged with the reviewer name.
// Unknown severities degrade to medium and unknown categories to quality
// rather than discarding the finding.
func ParseIssues(output, reviewer string) ([]models.Issue, error) {
	raw, err := llm.ExtractJSON(output)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Issues []models.Issue `json:"issues"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Issues == nil {
		// Some backends emit a bare array despite the contract.
		var bare []models.Issue
		if bareErr := json.Unmarshal(raw, &bare); bareErr != nil {
			return nil, &llm.Error{Kind: llm.ErrKindInvalidOutput, Raw: output, Err: err}
		}
		envelope.Issues = bare
	}

	out := make([]models.Issue, 0, len(envelope.Issues))
	for _, issue := range envelope.Issues {
		if issue.File == "" && issue.Message == "" {
			continue
		}
		normalize(&issue, reviewer)
		out = append(out, issue)
	}
	return out, nil
}

func normalize(issue *models.Issue, reviewer string) {
	issue.Severity = models.Severity(strings.ToLower(string(issue.Severity)))
	if !issue.Severity.IsValid() {
		issue.Severity = models.SeverityMedium
	}
	issue.Category = models.Category(strings.ToLower(string(issue.Category)))
	if !issue.Category.IsValid() {
		issue.Category = models.CategoryQuality
	}
	if issue.Effort != nil {
		e := *issue.Effort
		if e < 1 {
			e = 1
		}
		if e > 5 {
			e = 5
		}
		issue.Effort = &e
	}
	if issue.FilesToModify != nil && *issue.FilesToModify < 1 {
		f := 1
		issue.FilesToModify = &f
	}
	issue.FlaggedBy = []string{reviewer}
	// Priority is assigned by aggregation, never trusted from the backend.
	issue.Priority = 0
}
