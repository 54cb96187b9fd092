package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/pipeline"
)

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}

// fakeLedger is an in-memory stand-in for the article ledger, tracking
// per-article stage state the way the SQL compare-and-set statements do.
type fakeLedger struct {
	mu     sync.Mutex
	states map[int64]string // pending, processing, done, failed

	// eligibleOverride, when set, is returned verbatim from Eligible to
	// simulate a selection that went stale before the claim.
	eligibleOverride []int64

	// claimErr, when set, makes every Claim fail with a store error.
	claimErr error
}

func newFakeLedger(pendingIDs ...int64) *fakeLedger {
	states := make(map[int64]string, len(pendingIDs))
	for _, id := range pendingIDs {
		states[id] = "pending"
	}
	return &fakeLedger{states: states}
}

func (l *fakeLedger) Claim(articleID int64, _ pipeline.Stage) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return false, l.claimErr
	}
	if l.states[articleID] != "pending" {
		return false, nil
	}
	l.states[articleID] = "processing"
	return true, nil
}

func (l *fakeLedger) Eligible(_ pipeline.Stage, limit int) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.eligibleOverride != nil {
		ids := l.eligibleOverride
		l.eligibleOverride = nil
		return ids, nil
	}

	var ids []int64
	for id, state := range l.states {
		if state == "pending" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (l *fakeLedger) setState(articleID int64, state string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[articleID] = state
}

func (l *fakeLedger) countState(state string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.states {
		if s == state {
			n++
		}
	}
	return n
}

func (l *fakeLedger) CompleteExtraction(int64, string, pipeline.ContentShape, pipeline.ShapeConfidence) error {
	return nil
}
func (l *fakeLedger) CompleteSummary(int64, string, string) error              { return nil }
func (l *fakeLedger) CompleteAnalysis(int64, string, pipeline.ContentShape) error { return nil }
func (l *fakeLedger) Fail(int64, pipeline.Stage, string, bool) error           { return nil }
func (l *fakeLedger) GetArticle(int64) (*database.Article, error)              { return nil, nil }

// fakeProcessor resolves each claimed article against the fake ledger and
// optionally fails a chosen subset.
type fakeProcessor struct {
	ledger   *fakeLedger
	failIDs  map[int64]bool
	failAll  bool
	// lostClaimIDs simulates articles completed or reset externally while
	// the processor held them: the recording step finds no processing row.
	lostClaimIDs map[int64]bool
	block        chan struct{}
	mu           sync.Mutex
	processed    []int64
}

func (p *fakeProcessor) Process(_ context.Context, articleID int64) error {
	if p.block != nil {
		<-p.block
	}

	p.mu.Lock()
	p.processed = append(p.processed, articleID)
	p.mu.Unlock()

	if p.lostClaimIDs[articleID] {
		p.ledger.setState(articleID, "done")
		return fmt.Errorf("failed to record result for article %d: %w", articleID, database.ErrLostClaim)
	}
	if p.failAll || p.failIDs[articleID] {
		p.ledger.setState(articleID, "failed")
		return fmt.Errorf("processing failed for %d", articleID)
	}
	p.ledger.setState(articleID, "done")
	return nil
}

func newTestRunner(ledger *fakeLedger, guardWindow int, guardTrip float64) *BatchRunner {
	return NewBatchRunner(ledger, 2, guardWindow, guardTrip)
}

func TestRunSingleBatchLeavesRemainder(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3, 4, 5)
	processor := &fakeProcessor{ledger: ledger}
	runner := newTestRunner(ledger, 20, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 2, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Succeeded != 2 {
		t.Errorf("Expected 2 succeeded, got %d", result.Succeeded)
	}
	if result.Cycles != 1 {
		t.Errorf("Expected 1 cycle, got %d", result.Cycles)
	}
	if remaining := ledger.countState("pending"); remaining != 3 {
		t.Errorf("Expected 3 articles still pending, got %d", remaining)
	}
}

func TestRunContinuousDrainsBacklog(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3, 4, 5)
	processor := &fakeProcessor{ledger: ledger}
	runner := newTestRunner(ledger, 20, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 2, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Succeeded != 5 {
		t.Errorf("Expected 5 succeeded, got %d", result.Succeeded)
	}
	if result.Cycles != 3 {
		t.Errorf("Expected 3 cycles (2+2+1), got %d", result.Cycles)
	}
	if remaining := ledger.countState("pending"); remaining != 0 {
		t.Errorf("Expected backlog drained, %d still pending", remaining)
	}
	if result.GuardTripped {
		t.Error("Expected guard not to trip on a clean run")
	}
}

func TestRunLockPreventsOverlap(t *testing.T) {
	ledger := newFakeLedger(1, 2)
	block := make(chan struct{})
	processor := &fakeProcessor{ledger: ledger, block: block}
	runner := newTestRunner(ledger, 20, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(context.Background(), pipeline.StageSummarization, 2, false)
	}()

	// Wait for the first run to claim its articles and start processing
	waitFor(t, func() bool { return ledger.countState("processing") == 2 })

	_, err := runner.Run(context.Background(), pipeline.StageSummarization, 2, false)
	if !errors.Is(err, ErrBatchRunning) {
		t.Errorf("Expected ErrBatchRunning, got %v", err)
	}

	close(block)
	<-done

	// With the lock released the stage is runnable again
	if _, err := runner.Run(context.Background(), pipeline.StageSummarization, 2, false); err != nil {
		t.Errorf("Expected run after release to succeed, got %v", err)
	}
}

func TestRunStagesDoNotShareLocks(t *testing.T) {
	ledger := newFakeLedger(1)
	block := make(chan struct{})
	blocked := &fakeProcessor{ledger: ledger, block: block}

	runner := newTestRunner(ledger, 20, 0.5)
	runner.Register(pipeline.StageSummarization, blocked)
	runner.Register(pipeline.StageExtraction, &fakeProcessor{ledger: ledger})

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(context.Background(), pipeline.StageSummarization, 1, false)
	}()

	waitFor(t, func() bool { return ledger.countState("processing") == 1 })

	// A different stage runs while summarization is mid-batch
	if _, err := runner.Run(context.Background(), pipeline.StageExtraction, 1, false); err != nil {
		t.Errorf("Expected extraction batch to run concurrently, got %v", err)
	}

	close(block)
	<-done
}

func TestGuardTripsOnSustainedFailures(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	processor := &fakeProcessor{ledger: ledger, failAll: true}
	runner := newTestRunner(ledger, 4, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 4, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.GuardTripped {
		t.Fatal("Expected failure rate guard to trip")
	}
	if result.Failed != 4 {
		t.Errorf("Expected guard to stop after the first cycle, got %d failures", result.Failed)
	}
	if remaining := ledger.countState("pending"); remaining != 6 {
		t.Errorf("Expected 6 untouched articles, got %d", remaining)
	}
}

func TestGuardIgnoredInSingleMode(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3, 4)
	processor := &fakeProcessor{ledger: ledger, failAll: true}
	runner := newTestRunner(ledger, 4, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 4, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.GuardTripped {
		t.Error("Expected guard not to be consulted in single mode")
	}
	if result.Failed != 4 {
		t.Errorf("Expected 4 failures, got %d", result.Failed)
	}
}

func TestRunCountsLostClaimsAsSkipped(t *testing.T) {
	ledger := newFakeLedger(1, 3)
	ledger.states[2] = "processing" // claimed elsewhere
	ledger.eligibleOverride = []int64{1, 2, 3}

	processor := &fakeProcessor{ledger: ledger}
	runner := newTestRunner(ledger, 20, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 3, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Succeeded != 2 {
		t.Errorf("Expected 2 succeeded, got %d", result.Succeeded)
	}
	if result.Skipped != 1 {
		t.Errorf("Expected 1 skipped for the lost claim, got %d", result.Skipped)
	}
	if result.Failed != 0 {
		t.Errorf("Expected lost claim not to count as failure, got %d", result.Failed)
	}
}

func TestRunLostClaimDuringProcessingCountedSkipped(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3)
	processor := &fakeProcessor{ledger: ledger, lostClaimIDs: map[int64]bool{2: true}}
	runner := newTestRunner(ledger, 20, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 3, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Succeeded != 2 {
		t.Errorf("Expected 2 succeeded, got %d", result.Succeeded)
	}
	if result.Skipped != 1 {
		t.Errorf("Expected the lost claim counted as skipped, got %d", result.Skipped)
	}
	if result.Failed != 0 {
		t.Errorf("Expected lost claim not to count as failure, got %d", result.Failed)
	}
}

func TestLostClaimsDoNotFeedFailureGuard(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3, 4)
	processor := &fakeProcessor{ledger: ledger,
		lostClaimIDs: map[int64]bool{1: true, 2: true, 3: true, 4: true}}
	runner := newTestRunner(ledger, 2, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 2, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Skipped != 4 {
		t.Errorf("Expected 4 skipped, got %d", result.Skipped)
	}
	if result.GuardTripped {
		t.Error("Expected lost claims not to trip the failure guard")
	}
}

func TestGuardSeesPersistentClaimErrors(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3, 4)
	ledger.claimErr = errors.New("database is locked")
	processor := &fakeProcessor{ledger: ledger}
	runner := newTestRunner(ledger, 4, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	result, err := runner.Run(context.Background(), pipeline.StageSummarization, 4, true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Without the guard this run would spin: the same ids stay eligible
	// while every claim errors out.
	if !result.GuardTripped {
		t.Fatal("Expected claim errors to trip the failure guard")
	}
	if result.Skipped != 4 {
		t.Errorf("Expected 4 skipped claims, got %d", result.Skipped)
	}
	if result.Cycles != 1 {
		t.Errorf("Expected the guard to stop after one cycle, got %d", result.Cycles)
	}
}

func TestRunUnregisteredStage(t *testing.T) {
	runner := newTestRunner(newFakeLedger(), 20, 0.5)

	if _, err := runner.Run(context.Background(), pipeline.StageExtraction, 5, false); err == nil {
		t.Error("Expected error for unregistered stage")
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ledger := newFakeLedger(1, 2, 3)
	processor := &fakeProcessor{ledger: ledger}
	runner := newTestRunner(ledger, 20, 0.5)
	runner.Register(pipeline.StageSummarization, processor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, pipeline.StageSummarization, 2, true)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if got := ledger.countState("pending"); got != 3 {
		t.Errorf("Expected no articles touched after cancellation, got %d pending", got)
	}
}
