// Package pool runs batches of fetches across N independent clients.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaneisley/courtside/pkg/client"
	"github.com/shaneisley/courtside/pkg/endpoints"
	"github.com/shaneisley/courtside/pkg/logging"
	"github.com/shaneisley/courtside/pkg/metrics"
	"github.com/shaneisley/courtside/pkg/ratelimit"
)

const (
	DefaultWorkers = 4
	MaxWorkers     = 64
)

// Factory builds the client owned by one worker.
type Factory func(worker int) (*client.Client, error)

// Job is one named operation to fetch.
type Job struct {
	Operation string
	Args      endpoints.Args
}

func (j Job) String() string {
	return fmt.Sprintf("%s%v", j.Operation, map[string]string(j.Args))
}

// Outcome is the result of one Job. Exactly one of Result and Err is set.
type Outcome struct {
	Job    Job
	Worker int
	Result *client.Result
	Err    error
}

// Pool is a fixed set of workers, each with its own Client. Workers share
// nothing but the cache backend the factory hands them.
type Pool struct {
	clients []*client.Client
	logger  *logging.Logger
}

type indexedJob struct {
	index int
	job   Job
}

// New creates a pool of workers clients built by factory
func New(workers int, factory Factory, logger *logging.Logger) (*Pool, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}
	if logger == nil {
		logger = logging.Nop()
	}

	clients := make([]*client.Client, workers)
	for i := range clients {
		c, err := factory(i)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for worker %d: %w", i, err)
		}
		clients[i] = c
	}

	return &Pool{
		clients: clients,
		logger:  logger.WithComponent("pool"),
	}, nil
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	return len(p.clients)
}

// Run fetches every job and returns one Outcome per job, in job order.
// A failed job is logged and the batch continues. Jobs not started before
// ctx is done carry ctx's error.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))
	jobQueue := make(chan indexedJob, len(p.clients)*2)

	var wg sync.WaitGroup
	for i, c := range p.clients {
		wg.Add(1)
		go p.worker(ctx, i, c, jobQueue, outcomes, &wg)
	}

	p.logger.Info("batch started", "jobs", len(jobs), "workers", len(p.clients))

	dispatched := 0
dispatch:
	for i, job := range jobs {
		select {
		case jobQueue <- indexedJob{index: i, job: job}:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobQueue)
	wg.Wait()

	for i := dispatched; i < len(jobs); i++ {
		outcomes[i] = Outcome{Job: jobs[i], Worker: -1, Err: ctx.Err()}
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	p.logger.Info("batch finished", "jobs", len(jobs), "failed", failed)

	return outcomes
}

// worker is the main worker loop
func (p *Pool) worker(ctx context.Context, id int, c *client.Client, jobQueue <-chan indexedJob, outcomes []Outcome, wg *sync.WaitGroup) {
	defer wg.Done()

	p.logger.Debug("worker started", "worker_id", id)
	defer p.logger.Debug("worker stopped", "worker_id", id)

	for ij := range jobQueue {
		outcome := Outcome{Job: ij.job, Worker: id}
		outcome.Result, outcome.Err = c.Fetch(ctx, ij.job.Operation, ij.job.Args)
		if outcome.Err != nil {
			p.logger.LogError("fetch", outcome.Err, "worker_id", id, "job", ij.job.String())
		}
		outcomes[ij.index] = outcome
	}
}

// Stats merges the counters of every worker's client
func (p *Pool) Stats() metrics.Snapshot {
	total := metrics.Snapshot{Failures: map[string]int64{}}
	for _, c := range p.clients {
		total = total.Merge(c.Stats())
	}
	return total
}

// RateLimiterStates returns each worker's limiter snapshot, by worker id
func (p *Pool) RateLimiterStates() []ratelimit.State {
	states := make([]ratelimit.State, len(p.clients))
	for i, c := range p.clients {
		states[i] = c.RateLimiterState()
	}
	return states
}
