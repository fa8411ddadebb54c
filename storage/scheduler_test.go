package storage

import (
	"context"
	"sync"
	"sync/atomic"

	chk "gopkg.in/check.v1"
)

func (s *StorageClientSuite) Test_Scheduler_runsEveryOperationExactlyOnce(c *chk.C) {
	sched := NewScheduler(SchedulerConfig{Concurrency: 4})
	const n = 50

	var ran int32
	var mu sync.Mutex
	callbacks := make(map[string]int)

	for i := 0; i < n; i++ {
		op := &Operation{
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				return nil
			},
		}
		op.Callback = func(o *Operation, err error) {
			mu.Lock()
			callbacks[o.ID]++
			mu.Unlock()
		}
		sched.Submit(context.Background(), op)
	}
	sched.Close()
	<-sched.End()

	c.Assert(int(ran), chk.Equals, n)
	c.Assert(len(callbacks), chk.Equals, n)
	for _, count := range callbacks {
		c.Assert(count, chk.Equals, 1)
	}
}

func (s *StorageClientSuite) Test_Scheduler_activeNeverExceedsCeiling(c *chk.C) {
	sched := NewScheduler(SchedulerConfig{Concurrency: 2, SocketReuse: false})
	const n = 20

	var mu sync.Mutex
	var active, maxActive int
	block := make(chan struct{})

	for i := 0; i < n; i++ {
		op := &Operation{
			Run: func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				<-block
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			},
			Callback: func(o *Operation, err error) {},
		}
		sched.Submit(context.Background(), op)
	}
	close(block)
	sched.Close()
	<-sched.End()

	c.Assert(maxActive <= 2, chk.Equals, true)
}

func (s *StorageClientSuite) Test_Scheduler_abortPoisonsQueuedOperations(c *chk.C) {
	sched := NewScheduler(SchedulerConfig{Concurrency: 1})
	sched.Abort(newStorageError(ErrNetworkError, "aborted", nil))

	var callbackErr error
	var wg sync.WaitGroup
	wg.Add(1)
	op := &Operation{
		Run: func(ctx context.Context) error { return nil },
		Callback: func(o *Operation, err error) {
			callbackErr = err
			wg.Done()
		},
	}
	sched.Submit(context.Background(), op)
	wg.Wait()

	c.Assert(callbackErr, chk.NotNil)
	c.Assert(op.State(), chk.Equals, OperationErrored)
}

func (s *StorageClientSuite) Test_Scheduler_sharedFactor(c *chk.C) {
	c.Assert(sharedFactor(true), chk.Equals, 5)
	c.Assert(sharedFactor(false), chk.Equals, 1)
}
