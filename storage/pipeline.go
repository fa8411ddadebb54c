package storage

import (
	"context"
	"crypto/md5"
	"hash"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ExecutionContext is the per-invocation record of spec.md §3, mutable
// across retries but never shared between concurrent operations.
type ExecutionContext struct {
	OperationID         string
	StartTime           time.Time
	Deadline            *time.Time
	CurrentLocation     Location
	LocationMode        LocationMode
	RequestLocationMode RequestLocationMode
	AttemptCount        int
	LastError           error
	RetryInterval       time.Duration
}

// Doer executes one finalized, signed attempt and returns the normalized
// Response. Filters wrap a Doer to observe or short-circuit the chain.
type Doer func(ctx context.Context, ec *ExecutionContext, req *Request) (*Response, error)

// Filter wraps a Doer, producing another Doer. The pipeline composes
// filters so that the most recently added filter runs outermost: calling
// AddFilter(f1) then AddFilter(f2) yields the effective sequence
// [f2, f1, operation] (spec.md §4.3's "[pre_n, …, pre_1, operation, post_1,
// …, post_n]", where f2 is pre_n/post_n relative to f1: its pre step runs
// first and its post step runs last).
type Filter func(next Doer) Doer

// LifecycleEvent names the observation points spec.md §6 promises.
// Retry/location decisions are emitted as structured log fields on these
// same events rather than as a distinct typed event, since the spec treats
// all of them as strictly observational.
type LifecycleEvent string

const (
	EventRequestFinalized LifecycleEvent = "request-finalized"
	EventAboutToSend      LifecycleEvent = "about-to-send"
	EventResponseHeaders  LifecycleEvent = "response-headers-received"
	EventResponseComplete LifecycleEvent = "response-complete"
)

// Pipeline is the Pipeline Executor of spec.md §4.3: it owns the filter
// chain, the retry policy, the host configuration/credential needed to sign
// and dispatch, and the shared HTTP transport.
type Pipeline struct {
	hosts      HostConfiguration
	credential Credential
	apiVersion string
	userAgent  string
	transport  *http.Client
	retry      RetryPolicy
	filters    []Filter
	logger     *logrus.Logger
}

// PipelineOptions bundles the construction-time knobs NewPipeline needs
// beyond the host/credential pair.
type PipelineOptions struct {
	APIVersion string
	UserAgent  string
	UseNagle   bool
	Retry      RetryPolicy
	Logger     *logrus.Logger
}

// NewPipeline constructs a Pipeline Executor bound to hosts and signing
// with credential.
func NewPipeline(hosts HostConfiguration, credential Credential, opts PipelineOptions) (*Pipeline, error) {
	if err := hosts.validate(); err != nil {
		return nil, err
	}
	retry := opts.Retry
	if retry == nil {
		retry = NoRetryPolicy{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = newSilentLogger()
	}

	return &Pipeline{
		hosts:      hosts,
		credential: credential,
		apiVersion: opts.APIVersion,
		userAgent:  opts.UserAgent,
		transport:  &http.Client{Transport: buildTransport(opts.UseNagle)},
		retry:      retry,
		logger:     logger,
	}, nil
}

// AddFilter appends f to the chain; see Filter's doc comment for ordering.
func (p *Pipeline) AddFilter(f Filter) {
	p.filters = append(p.filters, f)
}

// Do executes req to completion, including retries and location failover,
// per spec.md §4.3. opts.MaximumExecutionTimeMs, when non-zero, bounds the
// whole operation (including retries).
func (p *Pipeline) Do(ctx context.Context, req *Request, opts ClientOptions) (*Response, error) {
	if err := p.credential.applyToQuery(req.query); err != nil {
		return nil, err
	}
	if opts.AccessConditions != (AccessConditions{}) {
		if err := req.SetAccessConditions(opts.AccessConditions); err != nil {
			return nil, err
		}
	}
	if err := req.Finalize(finalizeOptions{apiVersion: p.apiVersion, clientRequestID: opts.ClientRequestID, userAgent: p.userAgent}); err != nil {
		return nil, err
	}
	p.logger.WithFields(eventFields(string(EventRequestFinalized), nil)).Debug("request finalized")

	ec := &ExecutionContext{
		OperationID:         uuid.NewString(),
		StartTime:           currentTime(),
		LocationMode:        opts.LocationMode,
		RequestLocationMode: opts.RequestLocationMode,
	}
	if opts.MaximumExecutionTimeMs != 0 {
		if opts.MaximumExecutionTimeMs <= 0 {
			// A non-positive budget has already elapsed by definition: set
			// the deadline strictly before StartTime so the check below
			// trips on the very first iteration, before any dispatch, in a
			// way that doesn't depend on clock resolution.
			d := ec.StartTime.Add(-time.Nanosecond)
			ec.Deadline = &d
		} else {
			d := ec.StartTime.Add(time.Duration(opts.MaximumExecutionTimeMs) * time.Millisecond)
			ec.Deadline = &d
		}
	}

	doer := p.dispatchAttempt
	for _, f := range p.filters {
		doer = f(doer)
	}

	for {
		ec.AttemptCount++
		isFirst := ec.AttemptCount == 1

		loc, err := nextLocation(ec.LocationMode, ec.RequestLocationMode, ec.CurrentLocation, isFirst)
		if err != nil {
			return nil, err
		}
		ec.CurrentLocation = loc

		if ec.Deadline != nil && currentTime().Add(ec.RetryInterval).After(*ec.Deadline) {
			return nil, newStorageError(ErrDeadlineExceeded, "operation deadline would be exceeded by the next attempt", ec.LastError)
		}

		if ec.RetryInterval > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(ec.RetryInterval):
			}
		}

		resp, doErr := doer(ctx, ec, req)

		if doErr == nil && (resp == nil || resp.IsSuccess()) {
			return resp, nil
		}

		statusCode := 0
		var errKind ErrorKind
		if resp != nil {
			statusCode = resp.StatusCode
			errKind = resp.ErrorKind
		}
		if doErr != nil {
			ec.LastError = doErr
			if se, ok := doErr.(*StorageError); ok {
				errKind = se.Kind
			} else {
				errKind = ErrNetworkError
			}
			if isFatalButUnretryable(errKind) {
				return resp, doErr
			}
		}

		elapsed := currentTime().Sub(ec.StartTime)
		decision := p.retry.Decide(statusCode, errKind, ec.AttemptCount, elapsed, ec.CurrentLocation, ec.LocationMode)
		p.logger.WithFields(eventFields("retry-decision", ec)).WithField("willRetry", decision.ShouldRetry).Debug("retry policy decision")
		if !decision.ShouldRetry {
			if doErr != nil {
				return resp, doErr
			}
			return resp, resp.AsError()
		}

		ec.RetryInterval = decision.Delay
		if decision.NextLocation != nil {
			ec.CurrentLocation = *decision.NextLocation
		}
	}
}

// isFatalButUnretryable exists purely to keep the Do loop's branch above
// readable; argument/auth/deadline kinds never reach the retry policy.
func isFatalButUnretryable(kind ErrorKind) bool {
	switch kind {
	case ErrDeadlineExceeded, ErrAuthFailed, ErrInvalidInput, ErrLocationConstraintViolation, ErrMissingHostForLocation, ErrCanonicalizationError:
		return true
	default:
		return false
	}
}

// dispatchAttempt is the innermost Doer: the teacher's Client.exec
// generalized into the pipeline's single-attempt execution (spec.md §4.3
// steps 1-6, minus location selection and the deadline check, which Do
// performs once per loop iteration so filters observe a consistent
// ExecutionContext).
func (p *Pipeline) dispatchAttempt(ctx context.Context, ec *ExecutionContext, req *Request) (*Response, error) {
	host := p.hosts.hostFor(ec.CurrentLocation)
	if host == nil {
		return nil, newStorageError(ErrMissingHostForLocation, "no host configured for location "+ec.CurrentLocation.String(), nil)
	}

	if ec.AttemptCount > 1 {
		req.refreshDate()
	}

	resourceURL := req.buildURL(host)

	headers := req.snapshotHeaders()
	authHeader, err := p.credential.sign(ctx, req.method, headers, resourceURL)
	if err != nil {
		return nil, err
	}
	if authHeader != "" {
		req.header["Authorization"] = authHeader
	}

	httpReq, err := req.newHTTPRequest(resourceURL)
	if err != nil {
		return nil, err
	}
	httpReq = httpReq.WithContext(ctx)

	p.logger.WithFields(eventFields(string(EventAboutToSend), ec)).WithField("url", resourceURL.String()).Debug("about to send")

	var md5Accumulator hash.Hash
	var byteCounter *countingReader
	if req.trackResponseMD5 {
		md5Accumulator = md5.New()
	}

	httpResp, err := p.transport.Do(httpReq)
	if err != nil {
		return nil, newStorageError(ErrNetworkError, "transport error", err)
	}

	p.logger.WithFields(eventFields(string(EventResponseHeaders), ec)).WithField("status", httpResp.StatusCode).Debug("response headers received")

	body := httpResp.Body
	if md5Accumulator != nil {
		byteCounter = &countingReader{r: io.TeeReader(body, md5Accumulator)}
		body = io.NopCloser(byteCounter)
	}

	resp, err := normalizeResponse(httpResp, body, req.rawResponse)
	if err != nil {
		return nil, err
	}
	resp.TargetLocation = ec.CurrentLocation
	if md5Accumulator != nil {
		resp.TransportMD5 = md5Accumulator.Sum(nil)
		resp.TransportLength = byteCounter.n
	}

	p.logger.WithFields(eventFields(string(EventResponseComplete), ec)).Debug("response complete")

	return resp, nil
}

// countingReader tracks bytes read through it, used to attach a running
// length counter to the response alongside the MD5 accumulator (spec.md
// §4.3 step 5).
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// buildTransport constructs the shared HTTP transport. TCP no-delay is
// enabled (Nagle's algorithm off) unless useNagle is true, matching
// spec.md §4.3 step 4. Socket pool size is scoped to this Pipeline
// instance, not a process-global agent (Design Notes: "a clean
// reimplementation scopes it to the transport owned by the client
// instance").
func buildTransport(useNagle bool) *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(!useNagle)
		}
		return conn, nil
	}
	return &http.Transport{
		DialContext:         dial,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}
