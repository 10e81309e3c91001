// Package scheduler implements the two-lane fair scheduler: per-tenant FIFO
// queues, round-robin dequeue across tenants within a lane, strict
// short-before-long lane priority, and a fixed goroutine worker pool.
// Grounded on original_source/relay/app/core/scheduler.py, with asyncio's
// Future replaced by a one-shot buffered channel and the asyncio lock
// replaced by sync.Mutex, per the teacher's own goroutine/ticker idiom in
// state/memory.go.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relaycore/llmrelay/backend"
	"github.com/relaycore/llmrelay/config"
	"github.com/relaycore/llmrelay/metrics"
	"github.com/relaycore/llmrelay/plan"
)

const (
	LaneShort = "short"
	LaneLong  = "long"
)

// QueueFullError is returned by Submit when a lane is already at its
// configured depth cap.
type QueueFullError struct {
	Lane string
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("%s queue full", e.Lane)
}

type jobResult struct {
	result backend.GenerationResult
	err    error
}

// Job is a unit of scheduled work. Run is invoked by exactly one worker;
// its result is delivered once on the internal completion channel.
type Job struct {
	RequestID      string
	TenantID       string
	Lane           string
	SloMs          int
	Plan           plan.ExecutionPlan
	CreatedAt      time.Time
	QueueEnteredAt time.Time

	// Ctx is the originating request's context. A worker checks it right
	// before dispatch and drops the job without running it if the caller
	// has already gone away, so an abandoned job never burns a worker slot.
	Ctx context.Context

	Run func(ctx context.Context) (backend.GenerationResult, error)

	done chan jobResult
}

// Wait blocks until the job completes or ctx is cancelled. Cancellation
// here does not stop a worker already executing Run; it only stops the
// caller from waiting on it further.
func (j *Job) Wait(ctx context.Context) (backend.GenerationResult, error) {
	select {
	case res := <-j.done:
		return res.result, res.err
	case <-ctx.Done():
		return backend.GenerationResult{}, ctx.Err()
	}
}

// Scheduler owns the lane queues and the worker pool. The mutex guards
// queues, rrOrder, and rrIndex; it is never held across Run or any I/O.
type Scheduler struct {
	cfg     config.SchedulerConfig
	clock   clock.Clock
	logger  *zap.SugaredLogger
	metrics *metrics.Registry

	mu      sync.Mutex
	queues  map[string]map[string][]*Job
	rrOrder map[string][]string
	rrIndex map[string]int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler. Call Start to spawn its worker pool.
func New(cfg config.SchedulerConfig, clk clock.Clock, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		clock:  clk,
		logger: logger,
		queues: map[string]map[string][]*Job{
			LaneShort: {},
			LaneLong:  {},
		},
		rrOrder: map[string][]string{LaneShort: {}, LaneLong: {}},
		rrIndex: map[string]int{LaneShort: 0, LaneLong: 0},
	}
}

// WithMetrics attaches a metrics registry the scheduler reports queue
// depth to on every enqueue/dequeue. Optional: a scheduler with no
// registry attached simply skips the report.
func (s *Scheduler) WithMetrics(registry *metrics.Registry) *Scheduler {
	s.metrics = registry
	return s
}

// LaneForPromptChars buckets a request into the short or long lane based on
// policy's short_max_prompt_chars cut-off.
func (s *Scheduler) LaneForPromptChars(promptChars int) string {
	if promptChars <= s.cfg.ShortMaxPromptChars {
		return LaneShort
	}
	return LaneLong
}

// QueueDepth returns the total number of queued jobs across all tenants in
// a lane, read under the scheduler's lock — the same depth the admission
// controller bases its decision on.
func (s *Scheduler) QueueDepth(lane string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depthLocked(lane)
}

func (s *Scheduler) depthLocked(lane string) int {
	depth := 0
	for _, queue := range s.queues[lane] {
		depth += len(queue)
	}
	return depth
}

// Submit enqueues a job for its tenant and lane, enforcing the lane's
// max_queue_depth_per_lane cap. It never blocks on I/O: the lock is held
// only for the in-memory append.
func (s *Scheduler) Submit(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lane := job.Lane
	tenant := job.TenantID

	if _, ok := s.queues[lane][tenant]; !ok {
		s.queues[lane][tenant] = nil
		s.rrOrder[lane] = append(s.rrOrder[lane], tenant)
	}

	if s.depthLocked(lane) >= s.cfg.MaxQueueDepthPerLane {
		return &QueueFullError{Lane: lane}
	}

	job.done = make(chan jobResult, 1)
	job.QueueEnteredAt = s.clock.Now()
	s.queues[lane][tenant] = append(s.queues[lane][tenant], job)
	s.metrics.SetQueueDepth(lane, s.depthLocked(lane))
	return nil
}

// Start spawns the configured number of worker goroutines.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i)
	}
}

// Stop signals every worker to exit and waits for in-flight Run calls to
// return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) workerLoop(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job := s.dequeueFair()
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(5 * time.Millisecond):
				continue
			}
		}

		if job.Ctx != nil && job.Ctx.Err() != nil {
			job.done <- jobResult{err: job.Ctx.Err()}
			continue
		}

		result, err := job.Run(ctx)
		job.done <- jobResult{result: result, err: err}
	}
}

// dequeueFair prefers the short lane to reduce tail latency, then the long
// lane, matching the original's naive strategy.
func (s *Scheduler) dequeueFair() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job := s.dequeueLaneLocked(LaneShort); job != nil {
		return job
	}
	return s.dequeueLaneLocked(LaneLong)
}

// dequeueLaneLocked round-robins across tenants with queued work in lane.
// Must be called with s.mu held.
func (s *Scheduler) dequeueLaneLocked(lane string) *Job {
	tenants := s.rrOrder[lane]
	n := len(tenants)
	if n == 0 {
		return nil
	}

	start := s.rrIndex[lane] % n
	for offset := 0; offset < n; offset++ {
		idx := (start + offset) % n
		tenant := tenants[idx]
		queue := s.queues[lane][tenant]
		if len(queue) == 0 {
			continue
		}

		job := queue[0]
		s.queues[lane][tenant] = queue[1:]
		s.rrIndex[lane] = idx + 1
		s.metrics.SetQueueDepth(lane, s.depthLocked(lane))
		return job
	}

	return nil
}
