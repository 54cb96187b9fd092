package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/pipeline"
)

// ErrBatchRunning is returned when a batch for the stage is already in
// flight. Batches for the same stage never overlap; batches for different
// stages may.
var ErrBatchRunning = errors.New("a batch for this stage is already running")

// StageProcessor handles one claimed article for its stage and reports the
// outcome through the ledger before returning.
type StageProcessor interface {
	Process(ctx context.Context, articleID int64) error
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	Stage        pipeline.Stage `json:"stage"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Cycles       int            `json:"cycles"`
	GuardTripped bool           `json:"guard_tripped,omitempty"`
}

// BatchRunner drives stage batches: select eligible articles, claim each
// one, process claimed articles concurrently, and in continuous mode keep
// cycling until the stage backlog drains or the failure guard trips.
type BatchRunner struct {
	articles    database.ArticleLedger
	processors  map[pipeline.Stage]StageProcessor
	concurrency int

	guardWindow int
	guardTrip   float64

	mu    sync.Mutex
	locks map[pipeline.Stage]*sync.Mutex
}

func NewBatchRunner(articles database.ArticleLedger, concurrency, guardWindow int, guardTrip float64) *BatchRunner {
	return &BatchRunner{
		articles:    articles,
		processors:  make(map[pipeline.Stage]StageProcessor),
		concurrency: concurrency,
		guardWindow: guardWindow,
		guardTrip:   guardTrip,
		locks:       make(map[pipeline.Stage]*sync.Mutex),
	}
}

// Register wires a processor for a stage. Stages without a processor are
// not runnable; the scheduler and API skip them.
func (r *BatchRunner) Register(stage pipeline.Stage, processor StageProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[stage] = processor
	r.locks[stage] = &sync.Mutex{}
}

func (r *BatchRunner) HasProcessor(stage pipeline.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processors[stage]
	return ok
}

// Run executes one batch for the stage, or cycles until the backlog drains
// when continuous is set. Holding the stage's run-lock for the whole run
// keeps concurrent triggers (scheduler tick, API call) from overlapping.
func (r *BatchRunner) Run(ctx context.Context, stage pipeline.Stage, batchSize int, continuous bool) (*BatchResult, error) {
	r.mu.Lock()
	processor, ok := r.processors[stage]
	lock := r.locks[stage]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no processor registered for stage %s", stage)
	}
	if !lock.TryLock() {
		return nil, ErrBatchRunning
	}
	defer lock.Unlock()

	result := &BatchResult{Stage: stage}
	window := newFailureWindow(r.guardWindow)

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids, err := r.articles.Eligible(stage, batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to select eligible articles: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		result.Cycles++

		r.processBatch(ctx, processor, ids, result, window)

		if continuous && window.tripped(r.guardTrip) {
			result.GuardTripped = true
			slog.Warn("Continuous run aborted by failure rate guard",
				"stage", stage, "window", r.guardWindow, "trip", r.guardTrip)
			break
		}
		if !continuous {
			break
		}
	}

	slog.Info("Batch run finished", "stage", stage,
		"succeeded", result.Succeeded, "failed", result.Failed,
		"skipped", result.Skipped, "cycles", result.Cycles,
		"guard_tripped", result.GuardTripped)

	return result, nil
}

// processBatch claims each candidate and fans the claimed ones out over a
// bounded worker group.
func (r *BatchRunner) processBatch(ctx context.Context, processor StageProcessor, ids []int64, result *BatchResult, window *failureWindow) {
	var claimed []int64
	for _, id := range ids {
		ok, err := r.articles.Claim(id, result.Stage)
		if err != nil {
			// A claim error is a store problem, not a stale selection. It
			// feeds the guard window so a broken store cannot spin a
			// continuous run forever over the same ids.
			slog.Error("Failed to claim article", "article_id", id, "stage", result.Stage, "error", err)
			result.Skipped++
			window.record(false)
			continue
		}
		if !ok {
			// Someone else got there first, or the article changed state
			// between selection and claim. Not this run's problem.
			result.Skipped++
			continue
		}
		claimed = append(claimed, id)
	}

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
	)
	sem := make(chan struct{}, r.concurrency)

	for _, id := range claimed {
		wg.Add(1)
		sem <- struct{}{}

		go func(articleID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			err := processor.Process(ctx, articleID)

			resultsMu.Lock()
			defer resultsMu.Unlock()
			switch {
			case err == nil:
				result.Succeeded++
				window.record(true)
			case errors.Is(err, database.ErrLostClaim):
				// The article left its processing state under us. That is
				// a consistency warning, not a stage failure, so it stays
				// out of the guard window.
				result.Skipped++
				slog.Warn("Article lost its claim mid-batch", "article_id", articleID,
					"stage", result.Stage, "error", err)
			default:
				result.Failed++
				window.record(false)
				slog.Debug("Stage processing failed", "article_id", articleID,
					"stage", result.Stage, "error", err)
			}
		}(id)
	}

	wg.Wait()
}

// failureWindow tracks the outcomes of the most recent attempts. The guard
// only speaks once the window is full, so short runs are never judged on a
// handful of samples.
type failureWindow struct {
	mu       sync.Mutex
	outcomes []bool
	next     int
	filled   bool
}

func newFailureWindow(size int) *failureWindow {
	if size < 1 {
		size = 1
	}
	return &failureWindow{outcomes: make([]bool, size)}
}

func (w *failureWindow) record(ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.outcomes[w.next] = ok
	w.next++
	if w.next == len(w.outcomes) {
		w.next = 0
		w.filled = true
	}
}

func (w *failureWindow) tripped(frac float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.filled {
		return false
	}

	failures := 0
	for _, ok := range w.outcomes {
		if !ok {
			failures++
		}
	}
	return float64(failures)/float64(len(w.outcomes)) >= frac
}
