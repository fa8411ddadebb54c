package storage

import (
	"context"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// OperationState is the lifecycle state of one scheduled operation.
type OperationState int

const (
	OperationQueued OperationState = iota
	OperationActive
	OperationCompleted
	OperationErrored
)

// Operation is one unit of work submitted to a Scheduler: a closure the
// scheduler invokes when capacity allows, and a callback invoked exactly
// once with the outcome.
type Operation struct {
	ID       string
	Run      func(ctx context.Context) error
	Callback func(op *Operation, err error)

	state OperationState
}

// State reports the operation's current lifecycle state.
func (op *Operation) State() OperationState { return op.state }

// SchedulerConfig bounds a Scheduler's concurrency and memory posture, per
// spec.md §4.6.
type SchedulerConfig struct {
	// Concurrency is the base parallelism ceiling.
	Concurrency int
	// SocketReuse reports whether the shared transport pools connections
	// (sharedFactor becomes 5 instead of 1).
	SocketReuse bool
	// PerOperationMemoryBytes estimates memory an in-flight operation
	// consumes, used by the heavy-workload memory check.
	PerOperationMemoryBytes int64
	// SystemTotalMemoryBytes is the denominator for the memory check.
	// Zero disables the memory-based heavy check (concurrency/sharedFactor
	// based heaviness still applies).
	SystemTotalMemoryBytes int64
}

// Scheduler is the Batch Scheduler of spec.md §4.6: bounded-concurrency
// dispatch of many small operations with backpressure, draining to zero
// active operations before reporting "end".
type Scheduler struct {
	cfg  SchedulerConfig
	sem  *semaphore.Weighted

	mu       sync.Mutex
	active   int
	queued   int
	total    int
	closed   bool // caller signaled "no more operations"
	poison   error
	drainCh  chan struct{}
	endCh    chan struct{}
	endFired bool
	wg       sync.WaitGroup
}

// NewScheduler constructs a Scheduler bounded by cfg.Concurrency (at least
// 1; defaults to GOMAXPROCS if zero).
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Scheduler{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency) * int64(sharedFactor(cfg.SocketReuse))),
		drainCh: make(chan struct{}, 1),
		endCh:   make(chan struct{}),
	}
}

func sharedFactor(socketReuse bool) int {
	if socketReuse {
		return 5
	}
	return 1
}

// Submit enqueues op. If the batch has been poisoned by Abort, op's
// callback fires immediately with the recorded error and op is never
// dispatched. Otherwise op is dispatched as soon as the semaphore built in
// NewScheduler (Concurrency × sharedFactor slots) admits it. isHeavy's
// memory check does not delay dispatch; it only decides whether a
// completion signals Drain.
func (s *Scheduler) Submit(ctx context.Context, op *Operation) {
	s.mu.Lock()
	if s.poison != nil {
		err := s.poison
		s.mu.Unlock()
		op.state = OperationErrored
		op.Callback(op, err)
		return
	}
	op.state = OperationQueued
	s.queued++
	s.total++
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch(ctx, op)
}

// isHeavy reports whether the workload is currently heavy: active
// operations at or above the weighted ceiling, or (when configured)
// projected memory usage exceeding half of system total memory.
func (s *Scheduler) isHeavy() bool {
	ceiling := s.cfg.Concurrency * sharedFactor(s.cfg.SocketReuse)
	if s.active >= ceiling {
		return true
	}
	if s.active >= s.cfg.Concurrency && s.cfg.SystemTotalMemoryBytes > 0 {
		projected := int64(s.queued) * s.cfg.PerOperationMemoryBytes
		if projected > s.cfg.SystemTotalMemoryBytes/2 {
			return true
		}
	}
	return false
}

func (s *Scheduler) dispatch(ctx context.Context, op *Operation) {
	defer s.wg.Done()

	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		op.state = OperationErrored
		op.Callback(op, err)
		s.mu.Lock()
		s.queued--
		s.mu.Unlock()
		s.maybeEnd()
		return
	}
	defer s.sem.Release(1)

	s.mu.Lock()
	poison := s.poison
	if poison == nil {
		s.queued--
		s.active++
		op.state = OperationActive
	}
	s.mu.Unlock()

	if poison != nil {
		op.state = OperationErrored
		op.Callback(op, poison)
		s.mu.Lock()
		s.queued--
		s.mu.Unlock()
		s.maybeEnd()
		return
	}

	err := op.Run(ctx)

	if err != nil {
		op.state = OperationErrored
	} else {
		op.state = OperationCompleted
	}
	op.Callback(op, err)

	s.mu.Lock()
	s.active--
	wasHeavy := s.isHeavy()
	s.mu.Unlock()

	if !wasHeavy {
		select {
		case s.drainCh <- struct{}{}:
		default:
		}
	}
	s.maybeEnd()
}

// Abort poisons the batch: every operation submitted after this call (and
// any still queued) fails its callback with err without ever dispatching.
func (s *Scheduler) Abort(err error) {
	s.mu.Lock()
	s.poison = err
	s.mu.Unlock()
}

// Close signals that no further operations will be submitted. It does not
// block: the channel returned by End is closed exactly once, after the
// active and queued sets reach zero and every callback has returned.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.maybeEnd()
}

// Drain returns a channel (buffer of one; extra signals are dropped) that
// receives a value whenever an operation completes and the workload is not
// heavy afterwards, allowing a producer gated on backpressure to submit
// more work.
func (s *Scheduler) Drain() <-chan struct{} { return s.drainCh }

// End returns a channel closed exactly once, after Close has been called
// and the active set has drained to zero.
func (s *Scheduler) End() <-chan struct{} { return s.endCh }

// Wait blocks until every submitted operation's callback has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) maybeEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endFired || !s.closed || s.active != 0 || s.queued != 0 {
		return
	}
	s.endFired = true
	close(s.endCh)
}
