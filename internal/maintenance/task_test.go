package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/database"
)

// fakeCheckpointer returns scripted errors in order, then succeeds.
type fakeCheckpointer struct {
	mu    sync.Mutex
	errs  []error
	modes []database.CheckpointMode
	calls chan struct{}
}

func newFakeCheckpointer(errs ...error) *fakeCheckpointer {
	return &fakeCheckpointer{errs: errs, calls: make(chan struct{}, 16)}
}

func (f *fakeCheckpointer) Checkpoint(_ context.Context, mode database.CheckpointMode) (database.CheckpointResult, error) {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		f.calls <- struct{}{}
	}()

	f.modes = append(f.modes, mode)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return database.CheckpointResult{}, err
		}
	}
	return database.CheckpointResult{LogFrames: 3, CheckpointedFrames: 3}, nil
}

func (f *fakeCheckpointer) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for checkpoint")
	}
}

func (f *fakeCheckpointer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modes)
}

func startTask(t *testing.T, task *Task) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func TestNewTask_Defaults(t *testing.T) {
	task := NewTask(Config{Checkpointer: newFakeCheckpointer()})

	if task.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", task.interval, DefaultInterval)
	}
	if task.mode != database.CheckpointTruncate {
		t.Errorf("mode = %q, want TRUNCATE", task.mode)
	}
}

func TestTask_RunsEveryInterval(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cp := newFakeCheckpointer()
	startTask(t, NewTask(Config{Checkpointer: cp, Clock: clk}))

	if err := clk.WaitAdvance(DefaultInterval-time.Second, time.Second, 1); err != nil {
		t.Fatalf("WaitAdvance() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := cp.count(); n != 0 {
		t.Fatalf("checkpoint ran %d times before the interval elapsed", n)
	}

	clk.Advance(time.Second)
	cp.waitCall(t)

	for i := 0; i < 2; i++ {
		if err := clk.WaitAdvance(DefaultInterval, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
		cp.waitCall(t)
	}

	if n := cp.count(); n != 3 {
		t.Errorf("checkpoint ran %d times, want 3", n)
	}
	for _, m := range cp.modes {
		if m != database.CheckpointTruncate {
			t.Errorf("mode = %q, want TRUNCATE", m)
		}
	}
}

func TestTask_FailureKeepsCadence(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cp := newFakeCheckpointer(database.ErrPoolExhausted, errors.New("disk I/O error"))
	task := NewTask(Config{Checkpointer: cp, Clock: clk, Interval: 10 * time.Second})
	startTask(t, task)

	for i := 0; i < 3; i++ {
		if err := clk.WaitAdvance(10*time.Second, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance(#%d) error = %v", i, err)
		}
		cp.waitCall(t)
	}

	// Let RunOnce finish recording the last outcome.
	waitStatus := func() Status {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if st := task.Status(); st.Runs == 3 {
				return st
			}
			time.Sleep(5 * time.Millisecond)
		}
		return task.Status()
	}
	st := waitStatus()

	if st.Runs != 3 || st.Failures != 2 {
		t.Errorf("Status() = runs %d failures %d, want 3 and 2", st.Runs, st.Failures)
	}
	if st.LastError != "" {
		t.Errorf("LastError = %q, want cleared after success", st.LastError)
	}
	if st.Last.LogFrames != 3 {
		t.Errorf("Last.LogFrames = %d, want 3", st.Last.LogFrames)
	}
}

func TestTask_StopsOnCancel(t *testing.T) {
	task := NewTask(Config{Checkpointer: newFakeCheckpointer(), Clock: testclock.NewClock(time.Now())})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTask_RunOnceAgainstDatabase(t *testing.T) {
	db, err := database.Open(database.Config{
		Path:           filepath.Join(t.TempDir(), "maint.db"),
		WALMode:        true,
		BusyTimeout:    1,
		PoolSize:       1,
		AcquireTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	task := NewTask(Config{Checkpointer: db})
	ctx := context.Background()

	held, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}

	task.RunOnce(ctx)
	if st := task.Status(); st.Failures != 1 || st.LastError == "" {
		t.Errorf("Status() after exhausted pool = %+v, want one failure", st)
	}

	held.Close() //nolint:errcheck // Test cleanup

	task.RunOnce(ctx)
	st := task.Status()
	if st.Runs != 2 || st.Failures != 1 {
		t.Errorf("Status() = %+v, want 2 runs and 1 failure", st)
	}
	if st.LastError != "" {
		t.Errorf("LastError = %q after a successful run", st.LastError)
	}
}
