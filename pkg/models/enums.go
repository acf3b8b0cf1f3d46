// Package models defines the domain types shared across the orchestration
// core: issues, batches, tasks, loop runs, checkpoints, and reports.
package models

// Severity classifies how serious an issue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity is one of the closed enum values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Rank returns a comparable rank, higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category classifies the kind of finding.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryArchitecture  Category = "architecture"
	CategoryQuality       Category = "quality"
	CategoryStyle         Category = "style"
	CategoryTesting       Category = "testing"
	CategoryDocumentation Category = "documentation"
)

// IsValid checks if the category is one of the closed enum values.
func (c Category) IsValid() bool {
	switch c {
	case CategorySecurity, CategoryPerformance, CategoryArchitecture,
		CategoryQuality, CategoryStyle, CategoryTesting, CategoryDocumentation:
		return true
	default:
		return false
	}
}

// RepoType labels a repository by the kind of code it contains.
type RepoType string

const (
	RepoTypeBackend   RepoType = "backend"
	RepoTypeFrontend  RepoType = "frontend"
	RepoTypeFullstack RepoType = "fullstack"
	RepoTypeOther     RepoType = "other"
)

// BatchScope classifies which side of the stack a fix batch targets.
type BatchScope string

const (
	BatchScopeBackend  BatchScope = "backend"
	BatchScopeFrontend BatchScope = "frontend"
)

// Recommendation is the terminal verdict of a review.
type Recommendation string

const (
	RecommendationApprove            Recommendation = "approve"
	RecommendationApproveWithChanges Recommendation = "approve-with-changes"
	RecommendationRequestChanges     Recommendation = "request-changes"
)

// ConvergenceStatus is the terminal classification of a loop run.
type ConvergenceStatus string

const (
	ConvergenceRunning          ConvergenceStatus = "running"
	ConvergenceThresholdMet     ConvergenceStatus = "threshold_met"
	ConvergenceStagnated        ConvergenceStatus = "stagnated"
	ConvergenceForcedAcceptance ConvergenceStatus = "forced_acceptance"
	ConvergenceMaxIterations    ConvergenceStatus = "max_iterations_reached"
	ConvergenceFailed           ConvergenceStatus = "failed"
)

// IsTerminal reports whether the status ends the loop.
func (s ConvergenceStatus) IsTerminal() bool {
	return s != ConvergenceRunning && s != ""
}

// Accepted reports whether the loop's final primary result should be used.
// MaxIterations results are usable too but are flagged in reports; callers
// that care check the status explicitly.
func (s ConvergenceStatus) Accepted() bool {
	switch s {
	case ConvergenceThresholdMet, ConvergenceForcedAcceptance, ConvergenceStagnated:
		return true
	default:
		return false
	}
}

// TaskKind identifies what a queued task does.
type TaskKind string

const (
	TaskKindReview TaskKind = "review"
	TaskKindFix    TaskKind = "fix"
)

// TaskState is the lifecycle state of a queued task.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateInQueue    TaskState = "in_queue"
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
)

// FixOutcome is the per-issue result of a fix request.
type FixOutcome string

const (
	FixOutcomeFixed   FixOutcome = "fixed"
	FixOutcomeSkipped FixOutcome = "skipped"
	FixOutcomeFailed  FixOutcome = "failed"
)
