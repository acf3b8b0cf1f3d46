package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turbowrap/turbowrap/pkg/config"
	"github.com/turbowrap/turbowrap/pkg/metrics"
	"github.com/turbowrap/turbowrap/pkg/models"
	"github.com/turbowrap/turbowrap/pkg/store"
)

// persistTimeout bounds state writes made outside a task's own context.
const persistTimeout = 10 * time.Second

// WorkerPool owns the task queue, its workers, and the zombie scan. Tasks
// enter through Submit and leave through the executor; every state
// transition is mirrored to the store so restarts can reconstruct history.
type WorkerPool struct {
	cfg      config.QueueConfig
	queue    *TaskQueue
	executor TaskExecutor
	store    store.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	workers []*worker
	cancels map[string]context.CancelFunc
	running bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	zombieScans atomic.Int64
}

// NewWorkerPool creates a pool. The metrics argument may be nil.
func NewWorkerPool(cfg config.QueueConfig, executor TaskExecutor, st store.Store, m *metrics.Metrics) *WorkerPool {
	return &WorkerPool{
		cfg:      cfg,
		queue:    NewTaskQueue(),
		executor: executor,
		store:    st,
		metrics:  m,
		logger:   slog.With("component", "worker_pool"),
		cancels:  make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the workers and the zombie scan loop.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.baseCtx, p.baseCancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := &worker{id: i, pool: p, logger: p.logger.With("worker_id", i)}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go w.run()
	}

	p.wg.Add(1)
	go p.zombieScanLoop()

	p.logger.Info("Worker pool started", "workers", p.cfg.WorkerCount)
}

// Stop drains the pool: workers stop claiming new tasks, in-flight tasks get
// up to the configured graceful shutdown timeout, then are hard-canceled.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()

		p.logger.Info("Worker pool stopping", "timeout", p.cfg.GracefulShutdownTimeout)
		close(p.stopCh)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(p.cfg.GracefulShutdownTimeout):
			p.logger.Warn("Graceful shutdown timeout exceeded, canceling in-flight tasks")
			p.baseCancel()
			<-done
		}
		p.baseCancel()
		p.logger.Info("Worker pool stopped")
	})
}

// Submit persists the task and places it on the queue.
func (p *WorkerPool) Submit(ctx context.Context, task *models.Task) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return ErrPoolStopped
	}

	task.State = models.TaskStateInQueue
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	if err := p.store.SaveTask(ctx, task); err != nil {
		return err
	}
	p.queue.Enqueue(task)
	p.metrics.TaskEnqueued(string(task.Kind))
	p.updateGauges()

	p.logger.Info("Task enqueued", "task_id", task.ID, "kind", task.Kind, "priority", task.Priority)
	return nil
}

// Cancel aborts an in-flight task. Queued tasks cannot be canceled this way;
// they fail fast once a worker claims them and observes the dead context.
func (p *WorkerPool) Cancel(taskID string) error {
	p.mu.Lock()
	cancel, ok := p.cancels[taskID]
	p.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	cancel()
	return nil
}

// Health reports a snapshot of the pool and its workers.
func (p *WorkerPool) Health() PoolHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := PoolHealth{
		Running:     p.running,
		QueueDepth:  p.queue.Depth(),
		Processing:  p.queue.ProcessingCount(),
		ZombieScans: p.zombieScans.Load(),
	}
	for _, w := range p.workers {
		h.Workers = append(h.Workers, w.health())
	}
	return h
}

// Queue exposes the underlying queue for executors that enqueue follow-up
// work and for tests.
func (p *WorkerPool) Queue() *TaskQueue {
	return p.queue
}

func (p *WorkerPool) runTask(w *worker, task *models.Task) {
	ctx, cancel := context.WithCancel(p.baseCtx)
	defer cancel()

	p.mu.Lock()
	p.cancels[task.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancels, task.ID)
		p.mu.Unlock()
	}()

	p.persistTask(task)
	p.updateGauges()
	w.logger.Info("Task processing", "task_id", task.ID, "kind", task.Kind, "attempt", task.Attempts+1)

	err := p.executor.Execute(ctx, task)

	var updated *models.Task
	switch {
	case err == nil:
		updated = p.queue.Complete(task.ID)
		p.metrics.TaskCompleted(string(task.Kind))
		w.logger.Info("Task completed", "task_id", task.ID)
	case ctx.Err() != nil:
		updated = p.queue.Fail(task.ID, "canceled: "+err.Error())
		p.metrics.TaskFailed(string(task.Kind))
		w.logger.Info("Task canceled", "task_id", task.ID)
	default:
		updated = p.queue.Fail(task.ID, err.Error())
		p.metrics.TaskFailed(string(task.Kind))
		w.logger.Error("Task failed", "task_id", task.ID, "error", err)
	}

	// A nil update means the zombie scan already reclaimed the task.
	if updated != nil {
		p.persistTask(updated)
	}
	p.updateGauges()
}

func (p *WorkerPool) zombieScanLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ZombieScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.scanZombies()
		}
	}
}

// scanZombies reclaims tasks stuck in processing past the zombie age.
// Reclaimed tasks are requeued until their attempt budget is spent, then
// terminally failed.
func (p *WorkerPool) scanZombies() {
	p.zombieScans.Add(1)

	zombies := p.queue.DetectZombies(p.cfg.ZombieAge)
	if len(zombies) == 0 {
		return
	}
	p.metrics.ZombiesFound(len(zombies))

	for _, z := range zombies {
		// Cancel the stuck executor so its worker comes back.
		p.mu.Lock()
		if cancel, ok := p.cancels[z.ID]; ok {
			cancel()
		}
		p.mu.Unlock()

		var updated *models.Task
		if z.Attempts+1 >= p.cfg.MaxAttempts {
			updated = p.queue.Fail(z.ID, "zombie task exceeded max attempts")
			p.metrics.TaskFailed(string(z.Kind))
			p.logger.Error("Zombie task failed permanently", "task_id", z.ID, "attempts", z.Attempts+1)
		} else {
			updated = p.queue.Requeue(z.ID)
			p.logger.Warn("Zombie task requeued", "task_id", z.ID, "attempts", z.Attempts+1)
		}
		if updated != nil {
			p.persistTask(updated)
		}
	}
	p.updateGauges()
}

func (p *WorkerPool) persistTask(task *models.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.store.SaveTask(ctx, task); err != nil {
		p.logger.Error("Failed to persist task state", "task_id", task.ID, "state", task.State, "error", err)
	}
}

func (p *WorkerPool) updateGauges() {
	p.metrics.SetQueueDepth(p.queue.Depth())
	p.metrics.SetProcessing(p.queue.ProcessingCount())
}
