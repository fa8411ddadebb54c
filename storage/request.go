package storage

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// contentTypeState distinguishes the three ways a caller can leave
// Content-Type, per the Design Notes: present-empty (send an explicit empty
// value, suppressing whatever default the transport would otherwise add),
// explicit-absent (the zero value — let the transport's own default fire),
// and explicit-null (strip the header key entirely, even if something
// upstream had set it).
type contentTypeState int

const (
	contentTypeAbsent contentTypeState = iota
	contentTypeSet
	contentTypeNull
)

// Request is the mutable Request Descriptor of spec.md §3: method, path,
// multi-valued query, case-insensitive headers, and an optional body. It is
// owned by exactly one Execution Context for its lifetime (§5).
//
// Builder methods (SetMethod, SetPath, ...) return an error once the
// descriptor has been finalized, enforcing "once signed, no
// signature-affecting field may be mutated without re-signing." The
// pipeline itself updates the Date header on each retry via the
// unexported refreshDate, which is not subject to that gate — re-signing,
// not re-finalizing, is what retries need.
type Request struct {
	method string
	path   string // always begins with "/"; account-prefixed for path-style URIs

	query  url.Values
	header map[string]string // keys in http.CanonicalHeaderKey form via SetHeader; signing lookups fold case

	bodyReader io.Reader
	bodyLen    int64 // -1 when absent
	rawBody    []byte

	contentType      string
	contentTypeState contentTypeState

	rawResponse      bool // suppresses body decoding by the Response Normalizer
	trackResponseMD5 bool // accumulate a running MD5/length over the response body as it streams

	finalized bool
}

// NewRequest constructs an empty Request Descriptor for the given HTTP verb
// and path (normalized to begin with "/").
func NewRequest(method, path string) *Request {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Request{
		method:  strings.ToUpper(method),
		path:    path,
		query:   url.Values{},
		header:  map[string]string{},
		bodyLen: -1,
	}
}

func (r *Request) mutationErr() error {
	if r.finalized {
		return newStorageError(ErrInvalidInput, "request: cannot mutate a finalized/signed request descriptor", nil)
	}
	return nil
}

// SetMethod overrides the HTTP verb.
func (r *Request) SetMethod(method string) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	r.method = strings.ToUpper(method)
	return nil
}

// SetPath overrides the path, normalizing a leading "/".
func (r *Request) SetPath(path string) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	r.path = path
	return nil
}

// AddQuery appends a value for name, preserving insertion order; query
// values are re-sorted only when canonicalized for signing (sas.go,
// auth.go), not here.
func (r *Request) AddQuery(name, value string) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	r.query.Add(name, value)
	return nil
}

// SetQuery replaces all values for name.
func (r *Request) SetQuery(name, value string) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	r.query.Set(name, value)
	return nil
}

// SetHeader sets a header value; lookups are case-insensitive (the
// canonical form used for the standard signed-header list and the x-ms-
// prefix check is always lower-cased internally).
func (r *Request) SetHeader(name, value string) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	if strings.EqualFold(name, "Content-Type") {
		r.contentType = value
		r.contentTypeState = contentTypeSet
		return nil
	}
	r.header[canonicalHeaderName(name)] = value
	return nil
}

// SetHeaderNull strips name from the descriptor entirely (explicit-null),
// even if something had previously set it. Currently only meaningful for
// Content-Type, whose three-state handling the Design Notes call out
// explicitly; other headers simply delete on null.
func (r *Request) SetHeaderNull(name string) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	if strings.EqualFold(name, "Content-Type") {
		r.contentType = ""
		r.contentTypeState = contentTypeNull
		return nil
	}
	delete(r.header, canonicalHeaderName(name))
	return nil
}

// SetAccessConditions appends the conditional-access bundle's headers.
func (r *Request) SetAccessConditions(ac AccessConditions) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	if ac.IfModifiedSince != "" {
		r.header["If-Modified-Since"] = ac.IfModifiedSince
	}
	if ac.IfMatch != "" {
		r.header["If-Match"] = ac.IfMatch
	}
	if ac.IfNoneMatch != "" {
		r.header["If-None-Match"] = ac.IfNoneMatch
	}
	if ac.IfUnmodifiedSince != "" {
		r.header["If-Unmodified-Since"] = ac.IfUnmodifiedSince
	}
	return nil
}

// SetBodyBytes sets an in-memory body buffer.
func (r *Request) SetBodyBytes(b []byte) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	r.rawBody = b
	r.bodyReader = nil
	r.bodyLen = int64(len(b))
	return nil
}

// SetBodyReader sets a pull-stream body of known length. The Request
// Builder requires a known length so Content-Length can always be set
// explicitly, per the finalize() invariant.
func (r *Request) SetBodyReader(body io.Reader, length int64) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	r.bodyReader = body
	r.rawBody = nil
	r.bodyLen = length
	return nil
}

// SetRawResponse suppresses body decoding by the Response Normalizer,
// returning raw bytes to the caller instead.
func (r *Request) SetRawResponse(raw bool) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	r.rawResponse = raw
	return nil
}

// SetTrackResponseMD5 requests that the Pipeline Executor accumulate a
// running MD5 and byte count over the response body as it streams, for the
// download engine's end-to-end integrity check (spec.md §4.2).
func (r *Request) SetTrackResponseMD5(track bool) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	r.trackResponseMD5 = track
	return nil
}

// canonicalHeaderName is the internal case-folding rule for header storage:
// names are stored in Go's canonical MIME form (e.g. "Content-Md5"), and the
// signing engine compares them on the lower-cased form.
func canonicalHeaderName(name string) string {
	return http.CanonicalHeaderKey(name)
}

// snapshotHeaders returns the full set of headers (including the derived
// Content-Type/Content-Length) as a plain map, the shape the signing engine
// operates on.
func (r *Request) snapshotHeaders() map[string]string {
	out := make(map[string]string, len(r.header)+2)
	for k, v := range r.header {
		out[k] = v
	}
	if r.contentTypeState == contentTypeSet {
		out["Content-Type"] = r.contentType
	}
	length := r.bodyLen
	if length < 0 {
		length = 0
	}
	out["Content-Length"] = strconv.FormatInt(length, 10)
	return out
}

// finalizeOptions carries the ambient values the Request Builder stamps
// during Finalize: the pinned API version, the account-style client
// identity for x-ms-client-request-id, and the library's User-Agent.
type finalizeOptions struct {
	apiVersion      string
	clientRequestID string // when empty, a fresh UUID is minted
	userAgent       string
}

// Finalize computes the descriptor's standard headers: stamps x-ms-date,
// x-ms-version, x-ms-client-request-id and User-Agent. Content-Length is not
// stored here: snapshotHeaders and newHTTPRequest derive it from the body
// each time they run (0 when no body). Host resolution and
// URL assembly happen separately, per attempt, in the Pipeline Executor
// (storage/pipeline.go), since the same finalized descriptor may be sent to
// either the primary or secondary host.
func (r *Request) Finalize(opts finalizeOptions) error {
	if r.finalized {
		return nil
	}
	r.header["x-ms-version"] = opts.apiVersion
	r.header["x-ms-date"] = currentTimeRfc1123Formatted()

	reqID := opts.clientRequestID
	if reqID == "" {
		reqID = uuid.NewString()
	}
	r.header["x-ms-client-request-id"] = reqID

	if opts.userAgent != "" {
		r.header["User-Agent"] = opts.userAgent
	}

	r.finalized = true
	return nil
}

// refreshDate re-stamps x-ms-date ahead of a retry attempt. This is the one
// mutation still permitted after Finalize: retries must re-sign with a
// fresh Date, which the invariant anticipates ("no signature-affecting
// field may be mutated without re-signing" — this mutates exactly one
// signature-affecting field, and the pipeline always re-signs immediately
// after calling it).
func (r *Request) refreshDate() {
	r.header["x-ms-date"] = currentTimeRfc1123Formatted()
}

// buildURL resolves host against path+query, producing the per-attempt
// *url.URL the signing engine canonicalizes and the transport dispatches
// to.
func (r *Request) buildURL(host *url.URL) *url.URL {
	u := *host
	u.Path = joinPath(host.Path, r.path)
	u.RawQuery = r.encodedQuery()
	return &u
}

// encodedQuery re-sorts query values lexicographically by name for a
// stable wire representation; signing canonicalization (auth.go, sas.go)
// re-derives its own sorted view independently, so this only affects what
// is actually sent on the wire, not what's signed.
func (r *Request) encodedQuery() string {
	if len(r.query) == 0 {
		return ""
	}
	names := make([]string, 0, len(r.query))
	for k := range r.query {
		names = append(names, k)
	}
	sort.Strings(names)
	values := url.Values{}
	for _, name := range names {
		for _, v := range r.query[name] {
			values.Add(name, v)
		}
	}
	return values.Encode()
}

func joinPath(base, extra string) string {
	if extra == "" {
		return base
	}
	if base == "" || base == "/" {
		return extra
	}
	return strings.TrimSuffix(base, "/") + extra
}

// newHTTPRequest builds the *http.Request for dispatch against u, applying
// the three-state Content-Type rule and the body reference.
func (r *Request) newHTTPRequest(u *url.URL) (*http.Request, error) {
	var body io.Reader
	if r.rawBody != nil {
		body = bytes.NewReader(r.rawBody)
	} else if r.bodyReader != nil {
		body = r.bodyReader
	}

	req, err := http.NewRequest(r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("storage: building http.Request: %w", err)
	}

	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	length := r.bodyLen
	if length < 0 {
		length = 0
	}
	req.ContentLength = length

	switch r.contentTypeState {
	case contentTypeSet:
		req.Header.Set("Content-Type", r.contentType)
	case contentTypeNull:
		req.Header.Del("Content-Type")
	case contentTypeAbsent:
		// leave untouched; transport default (if any) applies
	}

	return req, nil
}
