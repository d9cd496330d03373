// Package async provides a bounded worker pool for fanning out independent
// read-only queries, such as per-page detection passes.
package async

import (
	"context"
	"sync"
)

// Task is one named unit of work.
type Task struct {
	Name    string
	Execute func() (any, error)
}

// Result carries a task's outcome, keyed by its name.
type Result struct {
	Name string
	Data any
	Err  error
}

// Pool runs tasks across a fixed number of workers.
type Pool struct {
	workerCount int
}

// NewPool creates a pool with the given worker count (minimum 1).
func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs all tasks and returns their results keyed by task name.
// Result ordering is irrelevant to callers: aggregation over the collected
// set is commutative. Cancelling the context abandons unfinished tasks and
// returns whatever has completed.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	results := make(map[string]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case task, ok := <-taskCh:
					if !ok {
						return
					}
					data, err := task.Execute()
					resultCh <- Result{Name: task.Name, Data: data, Err: err}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-resultCh:
			results[result.Name] = result
		case <-ctx.Done():
			wg.Wait()
			// Collect whatever finished before cancellation.
			for {
				select {
				case result := <-resultCh:
					results[result.Name] = result
				default:
					return results
				}
			}
		}
	}

	wg.Wait()
	return results
}
