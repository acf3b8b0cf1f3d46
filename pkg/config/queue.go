package config

import "time"

// QueueConfig contains task queue and worker pool configuration.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines draining the queue.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the base interval for checking queued tasks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// ZombieAge is how long a task may sit in processing before it is
	// considered a zombie.
	ZombieAge time.Duration `yaml:"zombie_age"`

	// ZombieScanInterval is how often the pool scans for zombies.
	ZombieScanInterval time.Duration `yaml:"zombie_scan_interval"`

	// MaxAttempts is how many times a zombie task is requeued before it is
	// terminally failed.
	MaxAttempts int `yaml:"max_attempts"`

	// GracefulShutdownTimeout bounds the wait for in-flight tasks on Stop.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		PollInterval:            500 * time.Millisecond,
		PollIntervalJitter:      250 * time.Millisecond,
		ZombieAge:               30 * time.Minute,
		ZombieScanInterval:      1 * time.Minute,
		MaxAttempts:             3,
		GracefulShutdownTimeout: 10 * time.Minute,
	}
}
