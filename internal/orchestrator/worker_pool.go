package orchestrator

import (
	"context"
	"sync"

	"github.com/kyleking/qik-trak/internal/types"
)

// WorkerPool runs a phase's items in parallel and joins on all of them
type WorkerPool struct {
	workers int
}

// NewWorkerPool creates a pool with the given number of workers (minimum 1)
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}

	return &WorkerPool{workers: workers}
}

// Task represents one metadata or SQL item
type Task struct {
	ID   string
	Func func(ctx context.Context) (types.Outcome, error)
}

// TaskResult represents the result of a task execution
type TaskResult struct {
	ID      string
	Outcome types.Outcome
	Error   error
}

// Execute runs tasks and returns once every task has a result, in task order.
// Tasks not started before ctx is cancelled are reported as skipped.
func (wp *WorkerPool) Execute(ctx context.Context, tasks []Task) []TaskResult {
	results := make([]TaskResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	indexes := make(chan int, len(tasks))
	for i := range tasks {
		indexes <- i
	}

	close(indexes)

	workers := wp.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range indexes {
				results[i] = wp.executeTask(ctx, tasks[i])
			}
		}()
	}

	wg.Wait()

	return results
}

// executeTask runs a single task unless the context is already done
func (wp *WorkerPool) executeTask(ctx context.Context, task Task) TaskResult {
	if err := ctx.Err(); err != nil {
		return TaskResult{ID: task.ID, Outcome: types.OutcomeSkipped, Error: err}
	}

	outcome, err := task.Func(ctx)
	if outcome == "" {
		outcome = types.OutcomeSuccess
		if err != nil {
			outcome = types.OutcomeFailed
		}
	}

	return TaskResult{ID: task.ID, Outcome: outcome, Error: err}
}
