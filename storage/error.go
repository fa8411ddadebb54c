package storage

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
)

// AzureStorageServiceError contains fields of the error response from
// Azure Storage Blob Service and Queue Storage REST APIs.
//
// See https://msdn.microsoft.com/en-us/library/azure/dd179382.aspx
// Some fields might be specific to certain API calls.
type AzureStorageServiceError struct {
	Code                      string `xml:"Code"`
	Message                   string `xml:"Message"`
	AuthenticationErrorDetail string `xml:"AuthenticationErrorDetail"`
	QueryParameterName        string `xml:"QueryParameterName"`
	QueryParameterValue       string `xml:"QueryParameterValue"`
	Reason                    string `xml:"Reason"`
	StatusCode                int
	RequestID                 string
}

func (e AzureStorageServiceError) Error() string {
	return fmt.Sprintf("storage: service returned error: StatusCode=%d, ErrorCode=%s, ErrorMessage=%s, RequestId=%s", e.StatusCode, e.Code, e.Message, e.RequestID)
}

// serviceErrFromXML deserializes given XML error response to error.
func serviceErrFromXML(body []byte, statusCode int, requestID string) error {
	var e AzureStorageServiceError
	if err := xml.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("storage: error deserializing error: %v\nbody=%q",
			err, string(body))
	}
	e.StatusCode = statusCode
	e.RequestID = requestID
	return e
}

// AzureStorageTableServiceError contains fields of the error response from
// Azure Storage Table Service REST API.
//
// See https://msdn.microsoft.com/en-us/library/azure/dd179382.aspx
type AzureStorageTableServiceError struct {
	Code    string `json:"code"`
	Message struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `"json:message"`

	// extra fields added for more info
	StatusCode int    `json:"-"`
	RequestID  string `json:"-"`
}

func (e AzureStorageTableServiceError) Error() string {
	return fmt.Sprintf("storage: table service returned error: StatusCode=%d ErrorCode=%s ErrorMessage=%q", e.StatusCode, e.Code, e.Message.Value)
}

// tableErrFromJSON deserializes table storage OData error response in JSON to
// error.
func tableErrFromJSON(body []byte, statusCode int, requestID string) error {
	// intermediate struct to grab only the relevant part of the error message
	type odataErr struct {
		Err struct {
			AzureStorageTableServiceError
		} `json:"odata.error"`
	}

	var o odataErr
	if err := json.Unmarshal(body, &o); err != nil {
		return fmt.Errorf("storage: error deserializing error: %v\nbody=%q",
			err, string(body))
	}
	e := o.Err.AzureStorageTableServiceError
	e.StatusCode = statusCode
	e.RequestID = requestID
	return e
}

type azureParameterError string

func (e azureParameterError) Error() string {
	return fmt.Sprintf("storage: parameter is empty: %s", e)
}

// ErrorKind classifies a StorageError into the taxonomy the pipeline and
// retry policy reason about: authentication, argument, state, transient and
// terminal failures.
type ErrorKind string

const (
	// ErrAuthFailed is returned when the service rejects the request's
	// signature or credential.
	ErrAuthFailed ErrorKind = "AuthFailed"
	// ErrResourceNotFound maps 404 responses.
	ErrResourceNotFound ErrorKind = "ResourceNotFound"
	// ErrResourceAlreadyExists maps 409-style conflicts.
	ErrResourceAlreadyExists ErrorKind = "ResourceAlreadyExists"
	// ErrConditionNotMet maps 412 precondition failures.
	ErrConditionNotMet ErrorKind = "ConditionNotMet"
	// ErrInvalidInput is a fatal, non-retryable argument error.
	ErrInvalidInput ErrorKind = "InvalidInput"
	// ErrLocationConstraintViolation is raised when requestLocationMode
	// conflicts with the caller's locationMode.
	ErrLocationConstraintViolation ErrorKind = "LocationConstraintViolation"
	// ErrMissingHostForLocation is raised when the chosen location has no
	// configured host.
	ErrMissingHostForLocation ErrorKind = "MissingHostForLocation"
	// ErrCanonicalizationError is raised when a request cannot be
	// canonicalized for signing.
	ErrCanonicalizationError ErrorKind = "CanonicalizationError"
	// ErrInvalidKey is raised when a Shared-Key account key is not valid
	// base64.
	ErrInvalidKey ErrorKind = "InvalidKey"
	// ErrThrottled maps 503/ServerBusy-style throttling responses.
	ErrThrottled ErrorKind = "Throttled"
	// ErrServerBusy is a synonym surfaced by some service error codes for
	// ErrThrottled; kept distinct because the wire error code differs.
	ErrServerBusy ErrorKind = "ServerBusy"
	// ErrTimeout maps 408 responses. Client-side transport timeouts surface
	// as ErrNetworkError.
	ErrTimeout ErrorKind = "Timeout"
	// ErrNetworkError maps transport-level failures (no response at all).
	ErrNetworkError ErrorKind = "NetworkError"
	// ErrDeadlineExceeded is raised when the operation's expiry would be
	// exceeded by the next attempt; never offered to the retry policy.
	ErrDeadlineExceeded ErrorKind = "DeadlineExceeded"
	// ErrInternalError maps 5xx responses the service itself labels
	// internal.
	ErrInternalError ErrorKind = "InternalError"
	// ErrUnknownService is raised when the response cannot be attributed to
	// any known error envelope shape.
	ErrUnknownService ErrorKind = "UnknownService"
	// ErrContentTypeUnknown marks a successful response whose Content-Type
	// the normalizer does not know how to decode.
	ErrContentTypeUnknown ErrorKind = "ContentTypeUnknown"
	// ErrContentMD5Mismatch is raised by the download engine when the
	// computed MD5 does not match the expected digest.
	ErrContentMD5Mismatch ErrorKind = "ContentMD5Mismatch"
)

// StorageError is the normalized error surfaced to callers of the pipeline
// and streaming engine: a Kind from the taxonomy above, the HTTP status
// code and request ID when known, a human message, and the underlying
// cause, if any (e.g. the last transient error observed before a deadline
// was exceeded).
type StorageError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	RequestID  string
	Cause      error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage: %s: %s (statusCode=%d, requestId=%s): %v", e.Kind, e.Message, e.StatusCode, e.RequestID, e.Cause)
	}
	return fmt.Sprintf("storage: %s: %s (statusCode=%d, requestId=%s)", e.Kind, e.Message, e.StatusCode, e.RequestID)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *StorageError) Unwrap() error { return e.Cause }

// newStorageError is a small constructor used throughout the pipeline so
// call sites read as a single expression rather than a struct literal.
func newStorageError(kind ErrorKind, message string, cause error) *StorageError {
	return &StorageError{Kind: kind, Message: message, Cause: cause}
}
