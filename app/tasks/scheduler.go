package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ddrozdov/paperstream/app/cfg"
	"github.com/ddrozdov/paperstream/app/config"
	"github.com/ddrozdov/paperstream/app/database"
	"github.com/ddrozdov/paperstream/app/feed"
	"github.com/ddrozdov/paperstream/app/pipeline"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	feedRepo     database.FeedRepository
	articleRepo  database.ArticleRepository
	configLoader *config.Loader
	httpClient   *http.Client
	parser       *feed.Parser
	ingester     *feed.Ingester
	batchRunner  *BatchRunner
	userAgent    string
	batchSize    int
	interval     time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

func NewScheduler(configLoader *config.Loader, feedRepo database.FeedRepository,
	articleRepo database.ArticleRepository, httpClient *http.Client,
	parser *feed.Parser, ingester *feed.Ingester, batchRunner *BatchRunner) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:     feedRepo,
		articleRepo:  articleRepo,
		configLoader: configLoader,
		httpClient:   httpClient,
		parser:       parser,
		ingester:     ingester,
		batchRunner:  batchRunner,
		userAgent:    cfg.UserAgent,
		batchSize:    cfg.BatchSize,
		interval:     time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:  cfg.WorkerCount,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueStartupTasks reconciles feed definition files with the database.
// Polling and batches start on the first tick, once the sync has settled.
func (s *Scheduler) enqueueStartupTasks() {
	definitions, err := s.configLoader.LoadAll()
	if err != nil {
		slog.Error("Failed to load feed definitions", "error", err)
		return
	}
	if len(definitions) == 0 {
		slog.Debug("No feed definitions found")
		return
	}

	slog.Debug("Syncing feed definitions", "count", len(definitions))

	for _, definition := range definitions {
		syncTask := NewSyncFeedTask(definition, s.feedRepo)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncFeedTask", "feed", definition.Feed.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	s.enqueuePollTasks()
	s.enqueueBatchTasks()
}

func (s *Scheduler) enqueuePollTasks() {
	feeds, err := s.feedRepo.GetEnabledFeeds()
	if err != nil {
		slog.Error("Failed to load enabled feeds", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, f := range feeds {
		if !s.feedDue(f, now) {
			slog.Debug("Feed not due for polling yet", "feed", f.Name, "last_poll_at", f.LastPollAt)
			continue
		}

		pollTask := NewPollFeedTask(f, s.httpClient, s.parser, s.ingester,
			s.feedRepo, s.articleRepo, s.userAgent)
		if err := s.EnqueueTask(pollTask); err != nil {
			slog.Warn("Failed to enqueue PollFeedTask", "feed", f.Name, "error", err)
		}
	}
}

func (s *Scheduler) enqueueBatchTasks() {
	stages := []pipeline.Stage{
		pipeline.StageExtraction,
		pipeline.StageSummarization,
		pipeline.StageDeepAnalysis,
	}

	for _, stage := range stages {
		if !s.batchRunner.HasProcessor(stage) {
			continue
		}

		batchTask := NewRunBatchTask(stage, s.batchSize, false, s.batchRunner)
		if err := s.EnqueueTask(batchTask); err != nil {
			slog.Warn("Failed to enqueue RunBatchTask", "stage", stage, "error", err)
		}
	}
}

func (s *Scheduler) feedDue(f database.Feed, now time.Time) bool {
	if f.LastPollAt == nil {
		return true
	}
	next := f.LastPollAt.Add(time.Duration(f.PollIntervalMinutes) * time.Minute)
	return !next.After(now)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			// The retry goroutine joins the WaitGroup so Stop cannot close
			// the task queue while a re-enqueue is still pending.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
				case <-time.After(retryDelay):
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
