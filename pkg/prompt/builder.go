// Package prompt builds the prompts exchanged with the primary and
// challenger backends. All prompts end with an explicit JSON contract so the
// tolerant parser has a stable shape to recover.
package prompt

import (
	"encoding/json"
	"strings"
	"text/template"

	"github.com/turbowrap/turbowrap/pkg/models"
)

const issueSchema = `Respond with a single JSON object of this exact shape:
{
  "issues": [
    {
      "file": "relative/path.go",
      "start_line": 10,
      "end_line": 12,
      "severity": "critical|high|medium|low",
      "category": "security|performance|architecture|quality|style|testing|documentation",
      "message": "what is wrong and why it matters",
      "suggestion": "how to fix it",
      "current_code": "the offending snippet",
      "suggested_code": "the corrected snippet",
      "estimated_effort": 2,
      "estimated_files": 1
    }
  ]
}
Return {"issues": []} if you find nothing. No prose outside the JSON.`

const evalSchema = `Respond with a single JSON object of this exact shape:
{
  "satisfaction_score": 0,
  "feedback": "what is weak or wrong in the result",
  "missed_issues": ["finding the result should have included"],
  "challenges": ["specific claim you dispute and why"]
}
satisfaction_score is an integer from 0 to 100. No prose outside the JSON.`

const editSchema = `Respond with a single JSON object of this exact shape:
{
  "edits": [
    {"path": "relative/path.go", "content": "the complete new file content"}
  ],
  "notes": "short summary of what was changed"
}
Every edit carries the FULL new content of its file. No prose outside the JSON.`

var templates = template.Must(template.New("prompts").Parse(`
{{define "reviewer_initial"}}{{.Focus}}

Repository type: {{.RepoType}}.{{if .WorkspacePath}}
Confine your review to files under {{.WorkspacePath}}.{{end}}

Repository context:
{{.RepoContext}}

Review the code above. Report every genuine issue in your area of focus with
file, line, severity, and a concrete suggestion. Do not pad the list.

{{.Schema}}{{end}}

{{define "reviewer_refine"}}{{.Focus}}

Your previous review:
{{.Previous}}

An independent challenger evaluated that review:
Feedback: {{.Feedback}}{{if .MissedIssues}}
Missed issues:
{{range .MissedIssues}}- {{.}}
{{end}}{{end}}{{if .Challenges}}Disputed claims:
{{range .Challenges}}- {{.}}
{{end}}{{end}}
Produce an improved review. Address the feedback, add genuinely missed
issues, and drop or correct disputed findings you cannot defend.

{{.Schema}}{{end}}

{{define "review_challenge"}}You are a skeptical review validator. Another
model produced the code review below for role "{{.Role}}". Judge its quality:
coverage of real issues, absence of fabricated ones, severity calibration,
and usefulness of the suggestions.

Review under evaluation:
{{.Output}}

{{.Schema}}{{end}}

{{define "fixer_initial"}}You are an expert software engineer fixing reviewed
issues. Apply the minimal correct change for each issue below.{{if .WorkspacePath}}
You may only modify files under {{.WorkspacePath}}.{{end}}

Issues to fix:
{{.Issues}}

Repository context:
{{.RepoContext}}

{{.Schema}}{{end}}

{{define "fixer_refine"}}You are an expert software engineer fixing reviewed
issues. Your previous fix attempt:
{{.Previous}}

An independent challenger evaluated that attempt:
Feedback: {{.Feedback}}{{if .Challenges}}
Disputed changes:
{{range .Challenges}}- {{.}}
{{end}}{{end}}
Produce a corrected set of edits for the same issues.

Issues to fix:
{{.Issues}}

{{.Schema}}{{end}}

{{define "fix_challenge"}}You are a skeptical fix validator. Another model
proposed the edits below to resolve the listed issues. Judge whether each
issue is actually fixed, whether the edits introduce regressions, and whether
they stay minimal.

Issues:
{{.Issues}}

Proposed edits:
{{.Output}}

{{.Schema}}{{end}}

{{define "evaluate"}}You are a principal engineer summarizing a completed
code review. Below is the aggregated report. Write a short qualitative
assessment: the dominant themes, the riskiest findings, and the most
valuable next steps. Plain prose, at most two paragraphs.

Aggregated report:
{{.Report}}{{end}}
`))

// Builder renders prompts. It is stateless and safe for concurrent use.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ReviewerInitial renders the iteration-1 prompt for a reviewer role.
func (b *Builder) ReviewerInitial(role Role, repoType, repoContext, workspacePath string) string {
	return render("reviewer_initial", map[string]any{
		"Focus":         Focus(role),
		"RepoType":      repoType,
		"RepoContext":   repoContext,
		"WorkspacePath": workspacePath,
		"Schema":        issueSchema,
	})
}

// ReviewerRefine renders a refinement prompt from the previous output and
// the challenger's verdict.
func (b *Builder) ReviewerRefine(role Role, previous, feedback string, missedIssues, challenges []string) string {
	return render("reviewer_refine", map[string]any{
		"Focus":        Focus(role),
		"Previous":     previous,
		"Feedback":     feedback,
		"MissedIssues": missedIssues,
		"Challenges":   challenges,
		"Schema":       issueSchema,
	})
}

// ReviewChallenge renders the challenger prompt for a reviewer's output.
func (b *Builder) ReviewChallenge(role Role, output string) string {
	return render("review_challenge", map[string]any{
		"Role":   string(role),
		"Output": output,
		"Schema": evalSchema,
	})
}

// FixerInitial renders the iteration-1 prompt for one fix batch.
func (b *Builder) FixerInitial(batch *models.IssueBatch, repoContext, workspacePath string) string {
	return render("fixer_initial", map[string]any{
		"Issues":        renderIssues(batch.Issues),
		"RepoContext":   repoContext,
		"WorkspacePath": workspacePath,
		"Schema":        editSchema,
	})
}

// FixerRefine renders a fix refinement prompt.
func (b *Builder) FixerRefine(batch *models.IssueBatch, previous, feedback string, challenges []string) string {
	return render("fixer_refine", map[string]any{
		"Issues":     renderIssues(batch.Issues),
		"Previous":   previous,
		"Feedback":   feedback,
		"Challenges": challenges,
		"Schema":     editSchema,
	})
}

// FixChallenge renders the challenger prompt for a fix batch's edits.
func (b *Builder) FixChallenge(batch *models.IssueBatch, output string) string {
	return render("fix_challenge", map[string]any{
		"Issues": renderIssues(batch.Issues),
		"Output": output,
		"Schema": evalSchema,
	})
}

// Evaluate renders the single-shot evaluator prompt over the aggregated
// report.
func (b *Builder) Evaluate(report string) string {
	return render("evaluate", map[string]any{"Report": report})
}

func render(name string, data map[string]any) string {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		// Templates are parsed at init and data is always a map; an error
		// here is a programming bug.
		panic(err)
	}
	return strings.TrimSpace(sb.String())
}

// renderIssues serializes issues as indented JSON, the least ambiguous form
// for the backends to consume.
func renderIssues(issues []models.Issue) string {
	blob, err := json.MarshalIndent(issues, "", "  ")
	if err != nil {
		return ""
	}
	return string(blob)
}
