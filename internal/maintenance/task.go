package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/database"
)

// Task defaults.
const (
	// DefaultInterval is the time between checkpoints.
	DefaultInterval = 60 * time.Second

	// DefaultMode truncates the WAL file after a successful checkpoint.
	DefaultMode = database.CheckpointTruncate

	// runTimeout bounds a single checkpoint, including pool checkout.
	runTimeout = 30 * time.Second
)

// Checkpointer runs a WAL checkpoint. *database.DB implements it.
type Checkpointer interface {
	Checkpoint(ctx context.Context, mode database.CheckpointMode) (database.CheckpointResult, error)
}

// Logger defines the logging interface for the maintenance task.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds configuration for a Task.
type Config struct {
	Checkpointer Checkpointer

	// Interval defaults to DefaultInterval.
	Interval time.Duration

	// Mode defaults to DefaultMode.
	Mode database.CheckpointMode

	// Clock defaults to the wall clock.
	Clock clock.Clock

	Logger Logger
}

// Status summarises the task's recent runs.
type Status struct {
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError string
	Last      database.CheckpointResult
}

// Task checkpoints the WAL on a fixed cadence.
type Task struct {
	checkpointer Checkpointer
	interval     time.Duration
	mode         database.CheckpointMode
	clock        clock.Clock
	logger       Logger

	mu     sync.RWMutex
	status Status
}

// NewTask creates a maintenance task with the given configuration.
func NewTask(cfg Config) *Task {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	return &Task{
		checkpointer: cfg.Checkpointer,
		interval:     cfg.Interval,
		mode:         cfg.Mode,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// Run checkpoints every interval until ctx is cancelled.
//
// Ticks are anchored to the start time, so a slow checkpoint does not
// shift later ones. Ticks missed while a checkpoint was running are
// skipped rather than run back to back.
func (t *Task) Run(ctx context.Context) {
	t.logger.Info("maintenance task starting",
		"interval", t.interval,
		"mode", string(t.mode),
	)
	defer t.logger.Info("maintenance task stopped")

	next := t.clock.Now().Add(t.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.After(next.Sub(t.clock.Now())):
		}

		t.RunOnce(ctx)

		now := t.clock.Now()
		for !next.After(now) {
			next = next.Add(t.interval)
		}
	}
}

// RunOnce performs a single checkpoint and records the outcome.
// Failures are logged, never returned.
func (t *Task) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	res, err := t.checkpointer.Checkpoint(runCtx, t.mode)

	t.mu.Lock()
	t.status.Runs++
	t.status.LastRun = t.clock.Now()
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
	} else {
		t.status.LastError = ""
		t.status.Last = res
	}
	t.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.logger.Error("wal checkpoint failed",
			"mode", string(t.mode),
			"error", err,
		)
		return
	}

	if res.Busy {
		t.logger.Warn("wal checkpoint incomplete, database busy",
			"mode", string(t.mode),
			"log_frames", res.LogFrames,
			"checkpointed_frames", res.CheckpointedFrames,
		)
		return
	}
	t.logger.Debug("wal checkpoint complete",
		"mode", string(t.mode),
		"log_frames", res.LogFrames,
		"checkpointed_frames", res.CheckpointedFrames,
	)
}

// Status returns a snapshot of recent runs.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
