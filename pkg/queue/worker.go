package queue

import (
	"log/slog"
	"math/rand"
	"time"
)

// worker polls the queue on a jittered interval and hands claimed tasks to
// the pool for execution. Jitter keeps workers from synchronizing their
// polls after a quiet period.
type worker struct {
	id     int
	pool   *WorkerPool
	logger *slog.Logger

	busy          bool
	currentTaskID string
	lastActive    time.Time
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	w.logger.Debug("Worker started")

	for {
		select {
		case <-w.pool.stopCh:
			w.logger.Debug("Worker stopping")
			return
		case <-time.After(w.pollDelay()):
		}

		for {
			task := w.pool.queue.Dequeue()
			if task == nil {
				break
			}
			w.setBusy(task.ID)
			w.pool.runTask(w, task)
			w.setIdle()

			select {
			case <-w.pool.stopCh:
				w.logger.Debug("Worker stopping")
				return
			default:
			}
		}
	}
}

func (w *worker) pollDelay() time.Duration {
	base := w.pool.cfg.PollInterval
	if w.pool.cfg.PollIntervalJitter > 0 {
		base += time.Duration(rand.Int63n(int64(w.pool.cfg.PollIntervalJitter)))
	}
	return base
}

func (w *worker) setBusy(taskID string) {
	w.pool.mu.Lock()
	defer w.pool.mu.Unlock()
	w.busy = true
	w.currentTaskID = taskID
	w.lastActive = time.Now()
}

func (w *worker) setIdle() {
	w.pool.mu.Lock()
	defer w.pool.mu.Unlock()
	w.busy = false
	w.currentTaskID = ""
	w.lastActive = time.Now()
}

func (w *worker) health() WorkerHealth {
	h := WorkerHealth{ID: w.id, Busy: w.busy, CurrentTaskID: w.currentTaskID}
	if !w.lastActive.IsZero() {
		t := w.lastActive
		h.LastActive = &t
	}
	return h
}
