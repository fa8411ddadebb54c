package storage

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Response is the Response Normalizer's output (spec.md §4.4): the status
// classification, headers, and either a decoded body or raw bytes,
// depending on what the Request Descriptor asked for.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header

	// Body holds the raw response bytes. Decoded() re-parses them into a
	// caller-supplied target based on Content-Type; callers that asked for
	// SetRawResponse(true) read Body directly instead.
	Body []byte

	TargetLocation Location

	// TransportMD5/TransportLength are populated only when the originating
	// Request asked for SetTrackResponseMD5(true).
	TransportMD5    []byte
	TransportLength int64

	// ErrorKind is non-zero when the response itself represents a service
	// error (non-2xx); the classification rules mirror retryableStatus's
	// status-code table, but live on the Response so non-retry callers
	// (e.g. a one-shot HEAD) can still inspect it.
	ErrorKind ErrorKind
	errBody   []byte
	requestID string
}

// IsSuccess reports whether StatusCode is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// AsError converts a non-2xx Response into a *StorageError, decoding
// whichever service error envelope (XML AzureStorageServiceError or the
// table service's odata.error JSON shape) the Content-Type indicates.
// Returns nil for a 2xx Response.
func (r *Response) AsError() error {
	if r.IsSuccess() {
		return nil
	}

	message := strings.TrimSpace(r.Status)
	if ct := r.Header.Get("Content-Type"); len(r.errBody) > 0 {
		if strings.Contains(ct, "json") {
			if svcErr, ok := tableErrFromJSON(r.errBody, r.StatusCode, r.requestID).(AzureStorageTableServiceError); ok && svcErr.Message.Value != "" {
				message = svcErr.Message.Value
			}
		} else if svcErr, ok := serviceErrFromXML(r.errBody, r.StatusCode, r.requestID).(AzureStorageServiceError); ok && svcErr.Message != "" {
			message = svcErr.Message
		}
	}

	return &StorageError{
		Kind:       r.ErrorKind,
		Message:    message,
		StatusCode: r.StatusCode,
		RequestID:  r.requestID,
		Cause:      nil,
	}
}

// Decoded unmarshals Body into target, choosing XML or JSON by Content-Type.
// An empty Content-Type leaves target untouched and returns nil; any other
// Content-Type returns ErrContentTypeUnknown.
func (r *Response) Decoded(target interface{}) error {
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "xml"):
		if err := xml.Unmarshal(r.Body, target); err != nil {
			return newStorageError(ErrUnknownService, "decoding XML response body", err)
		}
		return nil
	case strings.Contains(ct, "json"):
		if err := json.Unmarshal(r.Body, target); err != nil {
			return newStorageError(ErrUnknownService, "decoding JSON response body", err)
		}
		return nil
	case ct == "":
		return nil
	default:
		return newStorageError(ErrContentTypeUnknown, "cannot decode response with Content-Type "+ct, nil)
	}
}

// classifyStatus maps an HTTP status code to the ErrorKind taxonomy,
// mirroring retryableStatus's table plus the fatal/terminal kinds that are
// never retryable but still need a classification (auth, not-found,
// conflict, precondition).
func classifyStatus(statusCode int) ErrorKind {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ""
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrAuthFailed
	case statusCode == http.StatusNotFound:
		return ErrResourceNotFound
	case statusCode == http.StatusConflict:
		return ErrResourceAlreadyExists
	case statusCode == http.StatusPreconditionFailed:
		return ErrConditionNotMet
	case statusCode == http.StatusRequestTimeout:
		return ErrTimeout
	case statusCode == http.StatusServiceUnavailable:
		return ErrThrottled
	case statusCode == 429: // TooManyRequests
		return ErrServerBusy
	case statusCode >= 500 && statusCode != http.StatusNotImplemented && statusCode != http.StatusHTTPVersionNotSupported:
		return ErrInternalError
	case statusCode >= 400:
		return ErrInvalidInput
	default:
		return ErrUnknownService
	}
}

// normalizeResponse reads body to completion (raw or not), classifies the
// status, and produces a Response. body is already wrapped with any MD5/length
// tracking the pipeline set up; httpResp supplies status/headers.
func normalizeResponse(httpResp *http.Response, body io.ReadCloser, raw bool) (*Response, error) {
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, newStorageError(ErrNetworkError, "reading response body", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		requestID:  httpResp.Header.Get("x-ms-request-id"),
	}

	if raw || resp.IsSuccess() {
		resp.Body = data
	}
	if !resp.IsSuccess() {
		resp.ErrorKind = classifyStatus(httpResp.StatusCode)
		resp.errBody = data
		if !raw {
			resp.Body = data
		}
	}

	return resp, nil
}

// contentLengthHeader parses the response's Content-Length header,
// reporting false when it is absent or not a valid integer.
func contentLengthHeader(h http.Header) (int64, bool) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
