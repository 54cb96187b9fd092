package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ddrozdov/paperstream/app/config"
)

type stubTask struct {
	Task
	err error

	mu   sync.Mutex
	runs int
}

func (t *stubTask) Execute(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	return t.err
}

func (t *stubTask) runCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		// Pointing at a missing directory keeps startup sync a no-op,
		// and the long interval keeps the ticker quiet.
		configLoader: config.NewLoader(filepath.Join(t.TempDir(), "none")),
		interval:     time.Hour,
		workerCount:  1,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 10),
	}
}

func TestSchedulerExecutesEnqueuedTask(t *testing.T) {
	s := newTestScheduler(t)
	s.Start()
	defer s.Stop()

	task := &stubTask{Task: NewTask(TaskTypeRunBatch, "extraction")}
	if err := s.EnqueueTask(task); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	waitFor(t, func() bool { return task.runCount() == 1 })
}

func TestSchedulerRetriesFailedTask(t *testing.T) {
	s := newTestScheduler(t)
	s.Start()
	defer s.Stop()

	task := &stubTask{Task: NewTask(TaskTypeRunBatch, "extraction"), err: errors.New("boom")}
	if err := s.EnqueueTask(task); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	// The first retry is re-enqueued after a one second delay
	waitFor(t, func() bool { return task.runCount() >= 2 })
}

func TestStopDuringRetryBackoff(t *testing.T) {
	s := newTestScheduler(t)
	s.Start()

	task := &stubTask{Task: NewTask(TaskTypeRunBatch, "extraction"), err: errors.New("boom")}
	if err := s.EnqueueTask(task); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}
	waitFor(t, func() bool { return task.runCount() == 1 })

	// A retry goroutine is now waiting out its backoff. Stop must wait for
	// it to observe the cancellation instead of closing the queue under it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Stop()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a retry was pending")
	}

	if got := task.runCount(); got != 1 {
		t.Errorf("Expected no retry after Stop, got %d runs", got)
	}
}
