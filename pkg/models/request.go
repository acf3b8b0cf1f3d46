package models

// ReviewSource identifies what to review. Exactly one field is set.
type ReviewSource struct {
	Dir    string   `json:"dir,omitempty"`
	PRURL  string   `json:"pr_url,omitempty"`
	Commit string   `json:"commit,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// ReviewOptions tunes a single review request. Nil threshold/iteration
// overrides fall back to configuration.
type ReviewOptions struct {
	Mode                  string `json:"mode,omitempty"`
	IncludeFunctional     bool   `json:"include_functional,omitempty"`
	ChallengerEnabled     *bool  `json:"challenger_enabled,omitempty"`
	SatisfactionThreshold *int   `json:"satisfaction_threshold,omitempty"`
	MaxIterations         *int   `json:"max_iterations,omitempty"`
}

// ReviewRequest is the envelope accepted by the review orchestrator.
type ReviewRequest struct {
	Source        ReviewSource  `json:"source"`
	WorkspacePath string        `json:"workspace_path,omitempty"`
	Options       ReviewOptions `json:"options"`
}

// FixRequest is the envelope accepted by the fix orchestrator.
type FixRequest struct {
	TaskID        string  `json:"task_id"`
	RepositoryID  string  `json:"repository_id"`
	Issues        []Issue `json:"issues"`
	WorkspacePath string  `json:"workspace_path,omitempty"`
	Push          bool    `json:"push,omitempty"`
}
