package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	chk "gopkg.in/check.v1"
)

func mustURL(c *chk.C, raw string) *url.URL {
	u, err := url.Parse(raw)
	c.Assert(err, chk.IsNil)
	return u
}

func (s *StorageClientSuite) Test_Pipeline_locationFailover(c *chk.C) {
	var primaryHits, secondaryHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&primaryHits, 1)
		if n <= 2 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondaryHits, 1)
		w.WriteHeader(200)
	}))
	defer primary.Close()
	defer secondary.Close()

	hosts := HostConfiguration{Primary: mustURL(c, primary.URL), Secondary: mustURL(c, secondary.URL)}
	p, err := NewPipeline(hosts, anonymousCredential{}, PipelineOptions{
		APIVersion: DefaultAPIVersion,
		Retry:      ExponentialBackoffPolicy{Base: time.Millisecond, Min: time.Millisecond, Max: 5 * time.Millisecond, Attempts: 5},
	})
	c.Assert(err, chk.IsNil)

	req := NewRequest("GET", "/foo")
	resp, err := p.Do(context.Background(), req, ClientOptions{LocationMode: LocationModePrimaryThenSecondary})
	c.Assert(err, chk.IsNil)
	c.Assert(resp.StatusCode, chk.Equals, 200)
	c.Assert(resp.TargetLocation, chk.Equals, LocationSecondary)
}

func (s *StorageClientSuite) Test_Pipeline_deadlineExceededSkipsNetwork(c *chk.C) {
	hosts := HostConfiguration{Primary: mustURL(c, "http://127.0.0.1:0")}
	p, err := NewPipeline(hosts, anonymousCredential{}, PipelineOptions{APIVersion: DefaultAPIVersion})
	c.Assert(err, chk.IsNil)

	// A negative execution budget counts as already elapsed, so Do's first
	// deadline check triggers DeadlineExceeded without the retry policy ever
	// being consulted.
	req := NewRequest("GET", "/foo")
	_, err = p.Do(context.Background(), req, ClientOptions{MaximumExecutionTimeMs: -1})
	c.Assert(err, chk.NotNil)
	se, ok := err.(*StorageError)
	c.Assert(ok, chk.Equals, true)
	c.Assert(se.Kind, chk.Equals, ErrDeadlineExceeded)
}

func (s *StorageClientSuite) Test_Pipeline_filterOrdering(c *chk.C) {
	hosts := HostConfiguration{Primary: mustURL(c, "http://127.0.0.1:1")}
	p, err := NewPipeline(hosts, anonymousCredential{}, PipelineOptions{APIVersion: DefaultAPIVersion})
	c.Assert(err, chk.IsNil)

	var order []string
	p.AddFilter(func(next Doer) Doer {
		return func(ctx context.Context, ec *ExecutionContext, req *Request) (*Response, error) {
			order = append(order, "f1")
			return next(ctx, ec, req)
		}
	})
	p.AddFilter(func(next Doer) Doer {
		return func(ctx context.Context, ec *ExecutionContext, req *Request) (*Response, error) {
			order = append(order, "f2")
			return next(ctx, ec, req)
		}
	})

	req := NewRequest("GET", "/foo")
	_, _ = p.Do(context.Background(), req, ClientOptions{})
	c.Assert(order, chk.DeepEquals, []string{"f2", "f1"})
}
