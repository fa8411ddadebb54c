package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"sync"
	"sync/atomic"

	chk "gopkg.in/check.v1"
)

// memoryRangeLister reports a single occupied range for every request,
// clipped to the requested window.
type memoryRangeLister struct {
	dataStart, dataEnd int64
}

func (m memoryRangeLister) ListRanges(ctx context.Context, start, end int64) ([]Range, error) {
	s, e := m.dataStart, m.dataEnd
	if s < start {
		s = start
	}
	if e > end {
		e = end
	}
	if s > e {
		return nil, nil
	}
	return []Range{{Start: s, End: e, Kind: RangeKindData}}, nil
}

type memoryFetcher struct {
	mu   sync.Mutex
	data []byte
}

func (f *memoryFetcher) FetchRange(ctx context.Context, r Range) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, r.Length())
	copy(out, f.data[r.Start:r.End+1])
	sum := md5.Sum(out)
	return out, sum[:], nil
}

type badMD5Fetcher struct{ data []byte }

func (f badMD5Fetcher) FetchRange(ctx context.Context, r Range) ([]byte, []byte, error) {
	out := make([]byte, r.Length())
	copy(out, f.data[r.Start:r.End+1])
	return out, []byte("not-a-real-digest-lenXX"), nil
}

type bufferWriterAt struct {
	mu  sync.Mutex
	buf []byte
}

func newBufferWriterAt(size int64) *bufferWriterAt {
	return &bufferWriterAt{buf: make([]byte, size)}
}

func (b *bufferWriterAt) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.buf[off:], p)
	return len(p), nil
}

func (s *StorageClientSuite) Test_Download_roundTrip(c *chk.C) {
	const total = 256
	data := bytes.Repeat([]byte("x"), total)
	lister := memoryRangeLister{dataStart: 0, dataEnd: total - 1}
	fetcher := &memoryFetcher{data: data}
	dst := newBufferWriterAt(total)

	var progressCalls int32
	err := Download(context.Background(), lister, fetcher, dst, DownloadOptions{
		Total: total, RangeEnd: -1, Smin: 16, Smax: 64, PageSize: 64,
		ParallelOperationThreadCount: 4,
		Progress: func(transferred, totalBytes int64) {
			atomic.AddInt32(&progressCalls, 1)
		},
	})
	c.Assert(err, chk.IsNil)
	c.Assert(dst.buf, chk.DeepEquals, data)
	c.Assert(progressCalls > 0, chk.Equals, true)
}

func (s *StorageClientSuite) Test_Download_zeroFillsGaps(c *chk.C) {
	const total = 128
	data := make([]byte, total)
	for i := range data {
		data[i] = 'a'
	}
	// Only [32,63] is reported occupied; the rest must come back zero-filled.
	lister := memoryRangeLister{dataStart: 32, dataEnd: 63}
	fetcher := &memoryFetcher{data: data}
	dst := newBufferWriterAt(total)

	err := Download(context.Background(), lister, fetcher, dst, DownloadOptions{
		Total: total, RangeEnd: -1, Smin: 8, Smax: 32, PageSize: 32,
		ParallelOperationThreadCount: 2,
	})
	c.Assert(err, chk.IsNil)

	want := make([]byte, total)
	copy(want[32:64], data[32:64])
	c.Assert(dst.buf, chk.DeepEquals, want)
}

func (s *StorageClientSuite) Test_Download_md5MismatchFails(c *chk.C) {
	const total = 32
	data := bytes.Repeat([]byte("y"), total)
	lister := memoryRangeLister{dataStart: 0, dataEnd: total - 1}
	fetcher := badMD5Fetcher{data: data}
	dst := newBufferWriterAt(total)

	err := Download(context.Background(), lister, fetcher, dst, DownloadOptions{
		Total: total, RangeEnd: -1, Smin: 8, Smax: 32, PageSize: 32,
	})
	c.Assert(err, chk.NotNil)
	se, ok := err.(*StorageError)
	c.Assert(ok, chk.Equals, true)
	c.Assert(se.Kind, chk.Equals, ErrContentMD5Mismatch)
}

func (s *StorageClientSuite) Test_Download_md5MismatchSkippedWhenDisabled(c *chk.C) {
	const total = 32
	data := bytes.Repeat([]byte("y"), total)
	lister := memoryRangeLister{dataStart: 0, dataEnd: total - 1}
	fetcher := badMD5Fetcher{data: data}
	dst := newBufferWriterAt(total)

	err := Download(context.Background(), lister, fetcher, dst, DownloadOptions{
		Total: total, RangeEnd: -1, Smin: 8, Smax: 32, PageSize: 32,
		DisableContentMD5Validation: true,
	})
	c.Assert(err, chk.IsNil)
	c.Assert(dst.buf, chk.DeepEquals, data)
}
