package store

import (
	"context"
	"sync"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// MemoryStore is a mutex-protected in-memory Store. All values are copied on
// the way in and out; callers never share mutable state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]*models.Task
	loopRuns    map[string][]*models.LoopRun          // task id → runs
	checkpoints map[string]map[string]*models.Checkpoint // task id → reviewer → cp
	finals      map[string]*models.FinalReport
	fixes       map[string]*models.FixReport
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]*models.Task),
		loopRuns:    make(map[string][]*models.LoopRun),
		checkpoints: make(map[string]map[string]*models.Checkpoint),
		finals:      make(map[string]*models.FinalReport),
		fixes:       make(map[string]*models.FixReport),
	}
}

// SaveTask implements Store.
func (s *MemoryStore) SaveTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
	return nil
}

// GetTask implements Store.
func (s *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}

// ListTasks implements Store. With no states given, all tasks are returned.
func (s *MemoryStore) ListTasks(_ context.Context, states ...models.TaskState) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[models.TaskState]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}

	var out []*models.Task
	for _, task := range s.tasks {
		if len(wanted) == 0 || wanted[task.State] {
			out = append(out, task.Clone())
		}
	}
	return out, nil
}

// SaveLoopRun implements Store. Saving a run with an existing ID replaces
// the stored copy.
func (s *MemoryStore) SaveLoopRun(_ context.Context, run *models.LoopRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	cp.History = append([]int(nil), run.History...)
	cp.Invocations = append([]models.Invocation(nil), run.Invocations...)

	runs := s.loopRuns[run.TaskID]
	for i, existing := range runs {
		if existing.ID == run.ID {
			runs[i] = &cp
			return nil
		}
	}
	s.loopRuns[run.TaskID] = append(runs, &cp)
	return nil
}

// ListLoopRuns implements Store.
func (s *MemoryStore) ListLoopRuns(_ context.Context, taskID string) ([]*models.LoopRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.loopRuns[taskID]
	out := make([]*models.LoopRun, 0, len(runs))
	for _, run := range runs {
		cp := *run
		cp.History = append([]int(nil), run.History...)
		cp.Invocations = append([]models.Invocation(nil), run.Invocations...)
		out = append(out, &cp)
	}
	return out, nil
}

// SaveCheckpoint implements Store.
func (s *MemoryStore) SaveCheckpoint(_ context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byReviewer, ok := s.checkpoints[cp.TaskID]
	if !ok {
		byReviewer = make(map[string]*models.Checkpoint)
		s.checkpoints[cp.TaskID] = byReviewer
	}
	clone := *cp
	clone.Issues = models.CloneIssues(cp.Issues)
	byReviewer[cp.Reviewer] = &clone
	return nil
}

// LoadCheckpoints implements Store.
func (s *MemoryStore) LoadCheckpoints(_ context.Context, taskID string) (map[string]*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.Checkpoint)
	for reviewer, cp := range s.checkpoints[taskID] {
		clone := *cp
		clone.Issues = models.CloneIssues(cp.Issues)
		out[reviewer] = &clone
	}
	return out, nil
}

// ClearCheckpoints implements Store.
func (s *MemoryStore) ClearCheckpoints(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, taskID)
	return nil
}

// SaveFinalReport implements Store.
func (s *MemoryStore) SaveFinalReport(_ context.Context, report *models.FinalReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *report
	clone.Issues = models.CloneIssues(report.Issues)
	s.finals[report.ID] = &clone
	return nil
}

// GetFinalReport implements Store.
func (s *MemoryStore) GetFinalReport(_ context.Context, id string) (*models.FinalReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.finals[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *report
	clone.Issues = models.CloneIssues(report.Issues)
	return &clone, nil
}

// GetFinalReportByTask implements Store.
func (s *MemoryStore) GetFinalReportByTask(_ context.Context, taskID string) (*models.FinalReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, report := range s.finals {
		if report.TaskID == taskID {
			clone := *report
			clone.Issues = models.CloneIssues(report.Issues)
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// SaveFixReport implements Store.
func (s *MemoryStore) SaveFixReport(_ context.Context, report *models.FixReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *report
	s.fixes[report.ID] = &clone
	return nil
}

// GetFixReport implements Store.
func (s *MemoryStore) GetFixReport(_ context.Context, id string) (*models.FixReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.fixes[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *report
	return &clone, nil
}

// GetFixReportByTask implements Store.
func (s *MemoryStore) GetFixReportByTask(_ context.Context, taskID string) (*models.FixReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, report := range s.fixes {
		if report.TaskID == taskID {
			clone := *report
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}
