package storage

import "github.com/sirupsen/logrus"

// LocationMode is the caller's policy for how the pipeline chooses between
// a primary and a secondary host across retries.
type LocationMode int

const (
	// LocationModePrimaryOnly always targets the primary host; a retry
	// never switches to the secondary.
	LocationModePrimaryOnly LocationMode = iota
	// LocationModeSecondaryOnly always targets the secondary host.
	LocationModeSecondaryOnly
	// LocationModePrimaryThenSecondary starts on the primary and swaps to
	// the secondary on retry.
	LocationModePrimaryThenSecondary
	// LocationModeSecondaryThenPrimary starts on the secondary and swaps
	// to the primary on retry.
	LocationModeSecondaryThenPrimary
)

// RequestLocationMode is the per-operation constraint on which host an
// individual request may ever be sent to, independent of the caller's
// LocationMode.
type RequestLocationMode int

const (
	// RequestLocationModeEither lets LocationMode pick the location.
	RequestLocationModeEither RequestLocationMode = iota
	// RequestLocationModePrimaryOnly forces the primary host regardless of
	// LocationMode, failing fast if that conflicts with it.
	RequestLocationModePrimaryOnly
	// RequestLocationModeSecondaryOnly forces the secondary host.
	RequestLocationModeSecondaryOnly
)

// AccessConditions bundles the conditional-access headers recognized by the
// signing engine's canonical string (If-Modified-Since, If-Match,
// If-None-Match, If-Unmodified-Since). Zero value means "no conditions".
type AccessConditions struct {
	IfModifiedSince   string
	IfMatch           string
	IfNoneMatch       string
	IfUnmodifiedSince string
}

// ClientOptions is the closed, enumerated set of per-operation knobs the
// pipeline recognizes. This mirrors the Design Notes' "dynamic property
// bags" section: the source's options object has dozens of optional
// fields; here they are a fixed struct and unknown keys simply don't
// compile, which is the point.
//
// Pipeline.Do reads MaximumExecutionTimeMs, LocationMode,
// RequestLocationMode, ClientRequestID and AccessConditions. The other
// fields are not read anywhere in this package, as noted on each.
type ClientOptions struct {
	// TimeoutIntervalMs is a server-side timeout hint. It is not read:
	// no request adds a timeout query parameter from it.
	TimeoutIntervalMs int

	// MaximumExecutionTimeMs bounds the whole operation, including
	// retries. Zero means "no deadline".
	MaximumExecutionTimeMs int

	// LocationMode and RequestLocationMode, see above. Zero values are
	// LocationModePrimaryOnly / RequestLocationModeEither.
	LocationMode        LocationMode
	RequestLocationMode RequestLocationMode

	// UseNagle asks for Nagle's algorithm (TCP_NODELAY off). It is not
	// read per operation: the Nagle setting is fixed when a Pipeline is
	// built, from PipelineOptions.UseNagle, and the Pipelines a Client
	// builds leave that false (no-delay on).
	UseNagle bool

	// ResponseEncoding names a text encoding for response bodies. It is
	// not read: the Response Normalizer does no charset conversion.
	ResponseEncoding string

	// DisableContentMD5Validation is not read; Download takes this switch
	// from DownloadOptions.DisableContentMD5Validation.
	DisableContentMD5Validation bool

	// ClientRequestID, when non-empty, is stamped as
	// x-ms-client-request-id instead of a freshly minted UUID.
	ClientRequestID string

	// AccessConditions' headers are appended to the request by
	// Pipeline.Do before it finalizes the request. SourceAccessConditions
	// is not read: no operation in this package copies from a source
	// resource.
	AccessConditions       AccessConditions
	SourceAccessConditions AccessConditions

	// RangeStart/RangeEnd describe a caller-requested window for
	// streaming operations. They are not read; Download takes its window
	// from DownloadOptions.
	RangeStart int64
	RangeEnd   int64

	// ParallelOperationThreadCount is not read; Download and Upload take
	// their concurrency from DownloadOptions/UploadOptions.
	ParallelOperationThreadCount int
}

// Config is the construction-time configuration for a Client: the
// environment collaborators of spec.md §6, supplied by the caller rather
// than read from the process environment. Connection-string parsing and
// endpoint discovery are external collaborators; Config is the shape they
// populate.
type Config struct {
	AccountName string
	AccountKey  string

	// DNSSuffix overrides DefaultBaseURL (core.windows.net) for
	// sovereign clouds or custom deployments.
	DNSSuffix string

	// HTTPProxyURL/HTTPSProxyURL hold proxy URLs for the respective
	// schemes. The Pipelines a Client builds do not read them: their
	// transport has no proxy configured.
	HTTPProxyURL  string
	HTTPSProxyURL string

	// Emulated selects path-style URLs
	// (http://host/account/container/blob) instead of virtual-host style
	// (https://account.blob.core.windows.net/container/blob).
	Emulated bool

	UseHTTPS bool

	APIVersion string

	// Logger receives lifecycle events; defaults to a discard logger.
	Logger *logrus.Logger
}

func (c Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return newSilentLogger()
}
