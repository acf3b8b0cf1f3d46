package models

import "time"

// ReviewerSummary captures one reviewer's contribution to a final report,
// including the challenger loop metadata for that reviewer.
type ReviewerSummary struct {
	Reviewer       string            `json:"reviewer"`
	Status         ConvergenceStatus `json:"status"`
	Score          int               `json:"score"`
	ScoreHistory   []int             `json:"score_history,omitempty"`
	Iterations     int               `json:"iterations"`
	IssueCount     int               `json:"issue_count"`
	FromCheckpoint bool              `json:"from_checkpoint,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// FinalReport is the terminal output of a review.
type FinalReport struct {
	ID             string            `json:"id"`
	TaskID         string            `json:"task_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Repository     string            `json:"repository"`
	RepoType       RepoType          `json:"repo_type"`
	Reviewers      []ReviewerSummary `json:"reviewers"`
	Issues         []Issue           `json:"issues"`
	SeverityCounts map[Severity]int  `json:"severity_counts"`
	OverallScore   float64           `json:"overall_score"`
	Recommendation Recommendation    `json:"recommendation"`
	NextSteps      []string          `json:"next_steps,omitempty"`
	Assessment     string            `json:"assessment,omitempty"`
	Partial        bool              `json:"partial"`
}

// BatchResult is the per-batch outcome of a fix request.
type BatchResult struct {
	BatchID    string            `json:"batch_id"`
	Scope      BatchScope        `json:"scope"`
	Status     ConvergenceStatus `json:"status"`
	Score      int               `json:"score"`
	Iterations int               `json:"iterations"`
	Applied    bool              `json:"applied"`
	Error      string            `json:"error,omitempty"`
}

// IssueResult is the per-issue outcome of a fix request.
type IssueResult struct {
	Issue   Issue      `json:"issue"`
	BatchID string     `json:"batch_id,omitempty"`
	Outcome FixOutcome `json:"outcome"`
}

// FixReport is the terminal output of a fix. Either CommitID is set and at
// least one batch was applied, or CommitID is empty and no working-tree
// change survived (atomicity contract).
type FixReport struct {
	ID           string        `json:"id"`
	TaskID       string        `json:"task_id"`
	RepositoryID string        `json:"repository_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Branch       string        `json:"branch,omitempty"`
	CommitID     string        `json:"commit_id,omitempty"`
	Pushed       bool          `json:"pushed"`
	Batches      []BatchResult `json:"batches"`
	Issues       []IssueResult `json:"issues"`
	FailureKind  string        `json:"failure_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
}
