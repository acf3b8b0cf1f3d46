package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbowrap/turbowrap/pkg/models"
)

func TestCancelInFlightReview(t *testing.T) {
	inv := NewScriptedInvoker()
	blocked := make(chan struct{}, 1)
	inv.AddRouted("reviewer_general", ScriptEntry{BlockUntilCanceled: true, OnBlock: blocked})

	app := NewTestApp(t, inv)
	repo := app.SeedRepo(map[string]string{"README.md": "docs\n"})

	taskID := app.SubmitReview(&models.ReviewRequest{Source: models.ReviewSource{Dir: repo}})

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("reviewer never reached the backend")
	}

	status := app.PostJSON("/api/v1/tasks/"+taskID+"/cancel", nil, nil)
	require.Equal(t, http.StatusAccepted, status)

	task := app.WaitForTask(taskID, 5*time.Second)
	assert.Equal(t, models.TaskStateFailed, task.State)
	assert.Contains(t, task.ErrorMessage, "canceled")
}

func TestCancelQueuedTaskNotInFlight(t *testing.T) {
	app := NewTestApp(t, NewScriptedInvoker())

	status := app.PostJSON("/api/v1/tasks/never-submitted/cancel", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
