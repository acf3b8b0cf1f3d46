// Package queue provides the in-process priority task queue and the worker
// pool that drains it. The queue is not durable by itself; durability is the
// store's responsibility.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/turbowrap/turbowrap/pkg/models"
)

// TaskQueue is a mutex-protected priority queue with a processing set.
// Ordering is strict higher-priority-first with FIFO among equal priorities.
// Fix tasks targeting a repository that already has a fix in flight are held
// back until that fix completes, serializing working-tree mutation.
type TaskQueue struct {
	mu            sync.Mutex
	heap          taskHeap
	seq           uint64
	processing    map[string]*models.Task
	inFlightRepos map[string]string // repository id → task id
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		processing:    make(map[string]*models.Task),
		inFlightRepos: make(map[string]string),
	}
}

// Enqueue adds a task. O(log n). State transitions pending → in_queue.
func (q *TaskQueue) Enqueue(task *models.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := task.Clone()
	t.State = models.TaskStateInQueue
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	q.seq++
	heap.Push(&q.heap, &queuedTask{task: t, seq: q.seq})
}

// Dequeue returns the highest-priority admissible task, transitioned to
// processing with its start time stamped, or nil when none is available.
func (q *TaskQueue) Dequeue() *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Held-back tasks are re-pushed after the scan with their original
	// sequence numbers, preserving FIFO order among equals.
	var heldBack []*queuedTask
	defer func() {
		for _, qt := range heldBack {
			heap.Push(&q.heap, qt)
		}
	}()

	for q.heap.Len() > 0 {
		qt := heap.Pop(&q.heap).(*queuedTask)
		task := qt.task

		if task.Kind == models.TaskKindFix && task.RepositoryID != "" {
			if _, busy := q.inFlightRepos[task.RepositoryID]; busy {
				heldBack = append(heldBack, qt)
				continue
			}
			q.inFlightRepos[task.RepositoryID] = task.ID
		}

		now := time.Now()
		task.State = models.TaskStateProcessing
		task.ProcessingStartedAt = &now
		q.processing[task.ID] = task
		return task.Clone()
	}
	return nil
}

// Complete transitions a processing task to completed.
func (q *TaskQueue) Complete(id string) *models.Task {
	return q.finish(id, models.TaskStateCompleted, "")
}

// Fail transitions a processing task to failed with an error message.
func (q *TaskQueue) Fail(id string, errMsg string) *models.Task {
	return q.finish(id, models.TaskStateFailed, errMsg)
}

func (q *TaskQueue) finish(id string, state models.TaskState, errMsg string) *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.processing[id]
	if !ok {
		return nil
	}
	delete(q.processing, id)
	q.releaseRepoLocked(task)

	now := time.Now()
	task.State = state
	task.CompletedAt = &now
	task.ErrorMessage = errMsg
	return task.Clone()
}

// Requeue moves a processing task back to in_queue, incrementing its attempt
// count and keeping its priority. Used by zombie recovery.
func (q *TaskQueue) Requeue(id string) *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.processing[id]
	if !ok {
		return nil
	}
	delete(q.processing, id)
	q.releaseRepoLocked(task)

	task.State = models.TaskStateInQueue
	task.ProcessingStartedAt = nil
	task.Attempts++
	q.seq++
	heap.Push(&q.heap, &queuedTask{task: task, seq: q.seq})
	return task.Clone()
}

// Remove drops a processing task without a terminal state transition. Used
// on cancellation, where the caller records the outcome elsewhere.
func (q *TaskQueue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task, ok := q.processing[id]; ok {
		delete(q.processing, id)
		q.releaseRepoLocked(task)
	}
}

// DetectZombies returns clones of processing tasks whose start time is older
// than age by wall clock. The caller decides requeue versus terminal-fail.
func (q *TaskQueue) DetectZombies(age time.Duration) []*models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var zombies []*models.Task
	for _, task := range q.processing {
		if task.ProcessingStartedAt != nil && task.ProcessingStartedAt.Before(cutoff) {
			zombies = append(zombies, task.Clone())
		}
	}
	return zombies
}

// Depth returns the number of queued (not processing) tasks.
func (q *TaskQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// ProcessingCount returns the number of tasks currently processing.
func (q *TaskQueue) ProcessingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.processing)
}

func (q *TaskQueue) releaseRepoLocked(task *models.Task) {
	if task.Kind == models.TaskKindFix && task.RepositoryID != "" {
		if owner, ok := q.inFlightRepos[task.RepositoryID]; ok && owner == task.ID {
			delete(q.inFlightRepos, task.RepositoryID)
		}
	}
}

// queuedTask pairs a task with a monotonic sequence number for FIFO ties.
type queuedTask struct {
	task *models.Task
	seq  uint64
}

// taskHeap implements container/heap ordered by priority descending, then
// sequence ascending.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*queuedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
