package scheduler

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/wbrown/janus-por/por/configuration"
	"github.com/wbrown/janus-por/por/event"
)

// WorkerPool runs independent catch-up replays across a bounded number
// of goroutines: a jobs-channel-plus-WaitGroup pool whose units of work
// here are conflicting-extension replays.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool builds a pool with workerCount goroutines. A
// non-positive workerCount defaults to runtime.NumCPU().
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{workerCount: workerCount}
}

// GetWorkerCount returns the number of goroutines the pool runs.
func (p *WorkerPool) GetWorkerCount() int { return p.workerCount }

// Run replays every input concurrently via operation, returning results
// in the same order as inputs. Every input is replayed; if any replay
// fails, Run returns the error of the lowest-indexed failure and
// discards all results.
func (p *WorkerPool) Run(inputs []*event.Event, operation func(*event.Event) (*configuration.Configuration, error)) ([]*configuration.Configuration, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	results := make([]*configuration.Configuration, len(inputs))
	errs := make([]error, len(inputs))
	jobs := make(chan int, len(inputs))

	workers := p.workerCount
	if workers > len(inputs) {
		workers = len(inputs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				cfg, err := operation(inputs[idx])
				results[idx] = cfg
				errs[idx] = err
			}
		}()
	}
	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("por/scheduler: catch-up replay failed at index %d: %w", i, err)
		}
	}
	return results, nil
}
