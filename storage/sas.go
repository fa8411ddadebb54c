package storage

import (
	"net/url"
	"strings"
	"time"
)

// sasDateLayout is the ISO-8601 form the pinned wire version expects for
// st/se (start/expiry) query parameters.
const sasDateLayout = time.RFC3339

// knownSASVersions is the set of wire versions the generator/parser accept.
// Unknown versions are rejected per spec.md §4.1.
var knownSASVersions = map[string]bool{
	DefaultAPIVersion: true,
}

// TableRowRange bounds a table SAS to a partition/row key range
// (spk/srk/epk/erk query parameters).
type TableRowRange struct {
	StartPartitionKey string
	StartRowKey       string
	EndPartitionKey   string
	EndRowKey         string
}

// ResponseHeaderOverrides lets a SAS rewrite the response headers the
// service would otherwise send (rscc/rscd/rsce/rscl/rsct).
type ResponseHeaderOverrides struct {
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string
	ContentType        string
}

func (r ResponseHeaderOverrides) isZero() bool {
	return r == ResponseHeaderOverrides{}
}

// SignedAccessPolicy is the immutable input to SAS generation: spec.md §3's
// Signed-Access Policy data model.
type SignedAccessPolicy struct {
	Permissions   string
	Start         time.Time // zero value means "omit st"
	Expiry        time.Time // required
	Identifier    string    // si, optional: references a stored access policy
	ResourceScope string    // sr: e.g. "b" (blob), "c" (container), "s" (share), "f" (file)

	ResponseHeaderOverrides ResponseHeaderOverrides
	TableRowRange           *TableRowRange
}

// GenerateSAS mints a SAS query string for resourcePath under the given
// service ("blob", "queue", "table", "file"), signed with accountKey
// (base64-encoded), per spec.md §4.1. The returned string is a full query
// string (no leading "?") with keys in sorted order, e.g.
// "se=...&sig=...&sp=r&sr=b&sv=...".
func GenerateSAS(service, accountName, accountKey, resourcePath string, policy SignedAccessPolicy, version string) (string, error) {
	if !knownSASVersions[version] {
		return "", newStorageError(ErrInvalidInput, "unsupported SAS wire version: "+version, nil)
	}
	key, err := accountKeyFromBase64(accountKey)
	if err != nil {
		return "", err
	}

	canonicalizedResource := "/" + service + "/" + accountName + normalizeSASPath(resourcePath)

	lines := []string{
		policy.Permissions,
		formatSASTime(policy.Start),
		formatSASTime(policy.Expiry),
		canonicalizedResource,
		policy.Identifier,
		version,
	}
	if !policy.ResponseHeaderOverrides.isZero() {
		lines = append(lines,
			policy.ResponseHeaderOverrides.CacheControl,
			policy.ResponseHeaderOverrides.ContentDisposition,
			policy.ResponseHeaderOverrides.ContentEncoding,
			policy.ResponseHeaderOverrides.ContentLanguage,
			policy.ResponseHeaderOverrides.ContentType,
		)
	}
	if policy.TableRowRange != nil {
		lines = append(lines,
			policy.TableRowRange.StartPartitionKey,
			policy.TableRowRange.StartRowKey,
			policy.TableRowRange.EndPartitionKey,
			policy.TableRowRange.EndRowKey,
		)
	}
	stringToSign := strings.Join(lines, "\n")
	sig := computeHmac256(key, stringToSign)

	q := url.Values{}
	q.Set("sv", version)
	if policy.ResourceScope != "" {
		q.Set("sr", policy.ResourceScope)
	}
	if !policy.Start.IsZero() {
		q.Set("st", formatSASTime(policy.Start))
	}
	q.Set("se", formatSASTime(policy.Expiry))
	q.Set("sp", policy.Permissions)
	if policy.Identifier != "" {
		q.Set("si", policy.Identifier)
	}
	if !policy.ResponseHeaderOverrides.isZero() {
		setIfNotEmpty(q, "rscc", policy.ResponseHeaderOverrides.CacheControl)
		setIfNotEmpty(q, "rscd", policy.ResponseHeaderOverrides.ContentDisposition)
		setIfNotEmpty(q, "rsce", policy.ResponseHeaderOverrides.ContentEncoding)
		setIfNotEmpty(q, "rscl", policy.ResponseHeaderOverrides.ContentLanguage)
		setIfNotEmpty(q, "rsct", policy.ResponseHeaderOverrides.ContentType)
	}
	if policy.TableRowRange != nil {
		setIfNotEmpty(q, "spk", policy.TableRowRange.StartPartitionKey)
		setIfNotEmpty(q, "srk", policy.TableRowRange.StartRowKey)
		setIfNotEmpty(q, "epk", policy.TableRowRange.EndPartitionKey)
		setIfNotEmpty(q, "erk", policy.TableRowRange.EndRowKey)
	}
	q.Set("sig", sig)

	return q.Encode(), nil
}

// ParsedSAS is the result of parsing a SAS token's query string back into
// its constituent fields, as produced by ParseSAS.
type ParsedSAS struct {
	Version   string
	Policy    SignedAccessPolicy
	Signature string
}

// ParseSAS is the inverse of GenerateSAS: given a query string (with or
// without a leading "?"), it reproduces the SignedAccessPolicy and version
// that generated it. It does not re-derive or verify the signature (that
// requires the account key and happens server-side); it only decodes.
func ParseSAS(query string) (ParsedSAS, error) {
	query = strings.TrimPrefix(query, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return ParsedSAS{}, newStorageError(ErrCanonicalizationError, "SAS query parse error", err)
	}

	var out ParsedSAS
	out.Version = values.Get("sv")
	out.Signature = values.Get("sig")
	out.Policy.Permissions = values.Get("sp")
	out.Policy.ResourceScope = values.Get("sr")
	out.Policy.Identifier = values.Get("si")

	if v := values.Get("st"); v != "" {
		t, err := time.Parse(sasDateLayout, v)
		if err != nil {
			return ParsedSAS{}, newStorageError(ErrCanonicalizationError, "invalid st", err)
		}
		out.Policy.Start = t
	}
	if v := values.Get("se"); v != "" {
		t, err := time.Parse(sasDateLayout, v)
		if err != nil {
			return ParsedSAS{}, newStorageError(ErrCanonicalizationError, "invalid se", err)
		}
		out.Policy.Expiry = t
	}

	overrides := ResponseHeaderOverrides{
		CacheControl:       values.Get("rscc"),
		ContentDisposition: values.Get("rscd"),
		ContentEncoding:    values.Get("rsce"),
		ContentLanguage:    values.Get("rscl"),
		ContentType:        values.Get("rsct"),
	}
	if !overrides.isZero() {
		out.Policy.ResponseHeaderOverrides = overrides
	}

	if values.Get("spk") != "" || values.Get("srk") != "" || values.Get("epk") != "" || values.Get("erk") != "" {
		out.Policy.TableRowRange = &TableRowRange{
			StartPartitionKey: values.Get("spk"),
			StartRowKey:       values.Get("srk"),
			EndPartitionKey:   values.Get("epk"),
			EndRowKey:         values.Get("erk"),
		}
	}

	return out, nil
}

// parseSASQuery is the helper sasCredential uses to turn a raw token into
// url.Values for attachment to a Request Descriptor's query.
func parseSASQuery(token string) (url.Values, error) {
	token = strings.TrimPrefix(token, "?")
	values, err := url.ParseQuery(token)
	if err != nil {
		return nil, newStorageError(ErrCanonicalizationError, "SAS token parse error", err)
	}
	return values, nil
}

func normalizeSASPath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func formatSASTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sasDateLayout)
}

func setIfNotEmpty(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}
