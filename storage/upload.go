package storage

import (
	"context"
	"crypto/md5"
	"io"
	"sync"
	"sync/atomic"
)

// ChunkPutter is the collaborator the upload engine drives per chunk: it
// performs one Pipeline.Do-style PUT of data at the given offset, tagged
// with the chunk's MD5 for the service's own integrity check.
type ChunkPutter interface {
	PutChunk(ctx context.Context, offset int64, data []byte, md5Sum []byte) error
}

// UploadOptions configures one Upload call.
type UploadOptions struct {
	ChunkSize                    int64
	ParallelOperationThreadCount int
	Progress                     ProgressFunc
}

// Upload reads src to completion in ChunkSize blocks, dispatching one
// ChunkPutter.PutChunk operation per block through a Scheduler bounded by
// ParallelOperationThreadCount, symmetric to Download. src must support
// io.ReaderAt so chunks can be read out of order by concurrent workers;
// totalSize drives the progress callback and the final chunk's length.
func Upload(ctx context.Context, putter ChunkPutter, src io.ReaderAt, totalSize int64, opts UploadOptions) error {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 4 << 20
	}
	concurrency := opts.ParallelOperationThreadCount
	if concurrency <= 0 {
		concurrency = 1
	}

	var transferred int64

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := NewScheduler(SchedulerConfig{Concurrency: concurrency})

	var failOnce sync.Once
	var firstErr error
	fail := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			sched.Abort(err)
			cancel()
		})
	}

	for offset := int64(0); offset < totalSize; offset += chunkSize {
		off := offset
		length := chunkSize
		if off+length > totalSize {
			length = totalSize - off
		}

		sched.Submit(sctx, &Operation{
			Run: func(ctx context.Context) error {
				buf := make([]byte, length)
				if _, err := src.ReadAt(buf, off); err != nil && err != io.EOF {
					return newStorageError(ErrNetworkError, "reading upload chunk", err)
				}
				sum := md5.Sum(buf)
				if err := putter.PutChunk(ctx, off, buf, sum[:]); err != nil {
					return err
				}
				if opts.Progress != nil {
					opts.Progress(atomic.AddInt64(&transferred, int64(len(buf))), totalSize)
				}
				return nil
			},
			Callback: func(op *Operation, err error) {
				if err != nil {
					fail(err)
				}
			},
		})
	}

	sched.Close()
	<-sched.End()

	return firstErr
}
