package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ddrozdov/paperstream/app/pipeline"
)

type RunBatchTask struct {
	Task
	Stage      pipeline.Stage
	BatchSize  int
	Continuous bool
	runner     *BatchRunner
}

func NewRunBatchTask(stage pipeline.Stage, batchSize int, continuous bool, runner *BatchRunner) *RunBatchTask {
	return &RunBatchTask{
		Task:       NewTask(TaskTypeRunBatch, string(stage)),
		Stage:      stage,
		BatchSize:  batchSize,
		Continuous: continuous,
		runner:     runner,
	}
}

func (t *RunBatchTask) Execute(ctx context.Context) error {
	result, err := t.runner.Run(ctx, t.Stage, t.BatchSize, t.Continuous)
	if err != nil {
		if errors.Is(err, ErrBatchRunning) {
			// The previous run is still draining; the next tick gets it.
			slog.Debug("Skipping batch, stage already running", "stage", t.Stage)
			return nil
		}
		return err
	}

	slog.Info("Task completed",
		"type", "RunBatch",
		"stage", t.Stage,
		"duration", t.GetDuration(),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped)

	return nil
}
