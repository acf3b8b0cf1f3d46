package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbowrap/turbowrap/pkg/models"
)

func newTask(id string, kind models.TaskKind, priority int) *models.Task {
	return &models.Task{
		ID:       id,
		Kind:     kind,
		Priority: priority,
		State:    models.TaskStatePending,
	}
}

func TestDequeueHighestPriorityFirst(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(newTask("low", models.TaskKindReview, 10))
	q.Enqueue(newTask("high", models.TaskKindReview, 90))
	q.Enqueue(newTask("mid", models.TaskKindReview, 50))

	assert.Equal(t, "high", q.Dequeue().ID)
	assert.Equal(t, "mid", q.Dequeue().ID)
	assert.Equal(t, "low", q.Dequeue().ID)
	assert.Nil(t, q.Dequeue())
}

func TestDequeueFIFOAmongEqualPriorities(t *testing.T) {
	q := NewTaskQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(newTask(fmt.Sprintf("task-%d", i), models.TaskKindReview, 50))
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("task-%d", i), q.Dequeue().ID)
	}
}

func TestDequeueStampsProcessingState(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(newTask("t1", models.TaskKindReview, 1))

	task := q.Dequeue()
	require.NotNil(t, task)
	assert.Equal(t, models.TaskStateProcessing, task.State)
	require.NotNil(t, task.ProcessingStartedAt)
	assert.Equal(t, 1, q.ProcessingCount())
	assert.Equal(t, 0, q.Depth())
}

func TestCompleteAndFail(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(newTask("ok", models.TaskKindReview, 1))
	q.Enqueue(newTask("bad", models.TaskKindReview, 1))

	a := q.Dequeue()
	b := q.Dequeue()

	done := q.Complete(a.ID)
	require.NotNil(t, done)
	assert.Equal(t, models.TaskStateCompleted, done.State)
	require.NotNil(t, done.CompletedAt)

	failed := q.Fail(b.ID, "boom")
	require.NotNil(t, failed)
	assert.Equal(t, models.TaskStateFailed, failed.State)
	assert.Equal(t, "boom", failed.ErrorMessage)

	assert.Nil(t, q.Complete("unknown"))
	assert.Equal(t, 0, q.ProcessingCount())
}

func TestFixTasksSerializePerRepository(t *testing.T) {
	q := NewTaskQueue()
	first := newTask("fix-1", models.TaskKindFix, 90)
	first.RepositoryID = "repo-a"
	second := newTask("fix-2", models.TaskKindFix, 80)
	second.RepositoryID = "repo-a"
	other := newTask("fix-3", models.TaskKindFix, 70)
	other.RepositoryID = "repo-b"
	q.Enqueue(first)
	q.Enqueue(second)
	q.Enqueue(other)

	got := q.Dequeue()
	assert.Equal(t, "fix-1", got.ID)

	// repo-a is busy: the next admissible task is the repo-b fix.
	got = q.Dequeue()
	assert.Equal(t, "fix-3", got.ID)
	assert.Nil(t, q.Dequeue(), "fix-2 held back while repo-a is in flight")

	q.Complete("fix-1")
	got = q.Dequeue()
	require.NotNil(t, got)
	assert.Equal(t, "fix-2", got.ID)
}

func TestReviewTasksDoNotSerialize(t *testing.T) {
	q := NewTaskQueue()
	a := newTask("r1", models.TaskKindReview, 50)
	a.RepositoryID = "repo-a"
	b := newTask("r2", models.TaskKindReview, 50)
	b.RepositoryID = "repo-a"
	q.Enqueue(a)
	q.Enqueue(b)

	assert.NotNil(t, q.Dequeue())
	assert.NotNil(t, q.Dequeue())
}

func TestDetectZombies(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(newTask("stuck", models.TaskKindReview, 1))
	task := q.Dequeue()
	require.NotNil(t, task)

	assert.Empty(t, q.DetectZombies(time.Hour))

	// Zero age: anything started before now is a zombie.
	time.Sleep(time.Millisecond)
	zombies := q.DetectZombies(0)
	require.Len(t, zombies, 1)
	assert.Equal(t, "stuck", zombies[0].ID)
}

func TestRequeueKeepsPriorityAndCountsAttempt(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(newTask("t1", models.TaskKindFix, 77))
	task := q.Dequeue()
	require.NotNil(t, task)

	requeued := q.Requeue(task.ID)
	require.NotNil(t, requeued)
	assert.Equal(t, models.TaskStateInQueue, requeued.State)
	assert.Equal(t, 1, requeued.Attempts)
	assert.Equal(t, 77, requeued.Priority)
	assert.Nil(t, requeued.ProcessingStartedAt)
	assert.Equal(t, 0, q.ProcessingCount())

	again := q.Dequeue()
	require.NotNil(t, again)
	assert.Equal(t, "t1", again.ID)
}

func TestRequeueReleasesRepoSlot(t *testing.T) {
	q := NewTaskQueue()
	fix := newTask("f1", models.TaskKindFix, 50)
	fix.RepositoryID = "repo-a"
	q.Enqueue(fix)

	task := q.Dequeue()
	require.NotNil(t, task)
	require.NotNil(t, q.Requeue(task.ID))

	// The slot must be free so the requeued task can be claimed again.
	again := q.Dequeue()
	require.NotNil(t, again)
	assert.Equal(t, "f1", again.ID)
}
