// internal/pkg/async/pool.go
package async

import (
	"context"
	"sync"
)

// Task is one named unit of work executed by a Pool.
type Task[T any] struct {
	Name    string
	Execute func(ctx context.Context) (T, error)
}

// Result pairs a task's name with its outcome.
type Result[T any] struct {
	Name  string
	Value T
	Err   error
}

// Pool fans independent tasks out over a fixed number of workers and
// collects their results by name.
type Pool[T any] struct {
	workers int
}

func NewPool[T any](workers int) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T]{workers: workers}
}

// Execute runs the tasks and returns their results keyed by task name.
// When the context is cancelled the map holds whatever completed in time.
func (p *Pool[T]) Execute(ctx context.Context, tasks []Task[T]) map[string]Result[T] {
	feed := make(chan Task[T])
	out := make(chan Result[T])

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case task, ok := <-feed:
					if !ok {
						return
					}
					value, err := task.Execute(ctx)
					select {
					case out <- Result[T]{Name: task.Name, Value: value, Err: err}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(feed)
		for _, task := range tasks {
			select {
			case feed <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(map[string]Result[T], len(tasks))
	for range tasks {
		select {
		case result := <-out:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}
	return results
}
