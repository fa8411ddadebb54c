package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

type baseSigner struct {
	accountName string
}

func (b baseSigner) canonicalHeader(headers map[string]string) string {
	cm := make(map[string]string)

	for k, v := range headers {
		headerName := strings.TrimSpace(strings.ToLower(k))

		if strings.HasPrefix(headerName, "x-ms-") {
			if strings.TrimSpace(v) == "" {
				continue
			}
			cm[headerName] = v
		}
	}

	if len(cm) == 0 {
		return ""
	}

	keys := make([]string, 0, len(cm))
	for key := range cm {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	ch := ""

	for i, key := range keys {
		if i == len(keys)-1 {
			ch += fmt.Sprintf("%s:%s", key, cm[key])
		} else {
			ch += fmt.Sprintf("%s:%s\n", key, cm[key])
		}
	}
	return ch
}

func (b baseSigner) canonicalResource(resourceURL *url.URL) (string, error) {
	cr := "/" + b.accountName + b.encodeComponents(resourceURL.Path)

	params, err := url.ParseQuery(resourceURL.RawQuery)
	if err != nil {
		return "", newStorageError(ErrCanonicalizationError, "canonicalResource URL parsing error", err)
	}

	// keep ?comp= parameter
	if params.Get("comp") != "" {
		v := url.Values{}
		v.Set("comp", params.Get("comp"))
		cr += "?" + v.Encode()
	}
	return cr, nil
}

// canonicalResourceFull implements the Shared-Key canonicalized resource
// rule of spec.md §4.1: every query parameter participates, sorted by
// lowercased name, values comma-joined. This is the rule the full
// Shared-Key signer requires, as opposed to canonicalResource above, which
// keeps only the comp parameter (the SharedKeyLite rule).
func (b baseSigner) canonicalResourceFull(resourceURL *url.URL) (string, error) {
	cr := "/" + b.accountName + b.encodeComponents(resourceURL.Path)

	params, err := url.ParseQuery(resourceURL.RawQuery)
	if err != nil {
		return "", newStorageError(ErrCanonicalizationError, "canonicalResource URL parsing error", err)
	}
	if len(params) == 0 {
		return cr, nil
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values := append([]string(nil), params[name]...)
		sort.Strings(values)
		cr += "\n" + strings.ToLower(name) + ":" + strings.Join(values, ",")
	}
	return cr, nil
}

func (b baseSigner) encodeComponents(path string) string {
	// func encode characters outside:
	// - ASCII letters
	// - numbers
	// - and the following characters: /,$=
	out := ""
	for _, c := range path {
		switch {
		case c >= 'a' && c <= 'z':
			fallthrough
		case c >= 'A' && c <= 'Z':
			fallthrough
		case c >= '0' && c <= '9':
			fallthrough
		case c == '/' || c == ',' || c == '$' || c == '=':
			out += string(c)
		default:
			out += url.QueryEscape(string(c))
		}
	}
	return out
}

// sharedKeySignedHeaders is the fixed, ordered list of standard headers
// that make up the first lines of the Shared-Key canonical string (spec.md
// §4.1). The slice order is the line order.
var sharedKeySignedHeaders = []string{
	"Content-Encoding",
	"Content-Language",
	"Content-Length",
	"Content-MD5",
	"Content-Type",
	"Date",
	"If-Modified-Since",
	"If-Match",
	"If-None-Match",
	"If-Unmodified-Since",
	"Range",
}

// sharedKeySigner implements the full Shared-Key scheme (as opposed to
// SharedKeyLite): eleven standard header lines, looked up by
// case-insensitive header name, plus the canonicalized
// x-ms- header block, followed by the canonicalized resource with every
// query parameter, not just "comp".
type sharedKeySigner struct{ baseSigner }

func (s sharedKeySigner) authScheme() string { return "SharedKey" }

func (s sharedKeySigner) canonicalizedString(verb string, headers map[string]string, resourceURL *url.URL) (string, error) {
	lowered := make(map[string]string, len(headers))
	for k, v := range headers {
		lowered[strings.ToLower(k)] = v
	}
	lines := make([]string, 0, len(sharedKeySignedHeaders)+1)
	lines = append(lines, verb)
	for _, h := range sharedKeySignedHeaders {
		v := lowered[strings.ToLower(h)]
		// Content-Length rule: an explicit "0" canonicalizes as empty,
		// for historical compatibility with the pinned wire version.
		if h == "Content-Length" && v == "0" {
			v = ""
		}
		lines = append(lines, v)
	}

	cHeader := s.canonicalHeader(headers)
	cRes, err := s.canonicalResourceFull(resourceURL)
	if err != nil {
		return "", err
	}

	return strings.Join(lines, "\n") + "\n" + cHeader + "\n" + cRes, nil
}

// accountKeyFromBase64 decodes a base64-encoded Shared-Key account key,
// surfacing ErrInvalidKey (rather than a bare decode error) so the pipeline
// and callers can distinguish a malformed credential from a transport
// failure.
func accountKeyFromBase64(accountKey string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(accountKey)
	if err != nil {
		return nil, newStorageError(ErrInvalidKey, "account key is not valid base64", err)
	}
	return key, nil
}

// computeHmac256 signs message with key using HMAC-SHA-256 and returns the
// base64-encoded signature, as spec.md §4.1 requires of Shared-Key signing.
func computeHmac256(key []byte, message string) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// currentTime exists as a seam so tests can substitute a fixed clock
// without reaching into package-level mutable state.
var currentTime = time.Now

// currentTimeRfc1123Formatted returns the current UTC time formatted per
// RFC 1123 GMT, the Date header format spec.md §6 pins for every request.
// time.RFC1123 renders the zone as "UTC", not "GMT"; http.TimeFormat is the
// same layout with the zone spelled out literally, matching what the
// teacher's original client sent.
func currentTimeRfc1123Formatted() string {
	return currentTime().In(time.UTC).Format(http.TimeFormat)
}

// sharedKeyCredential signs requests using the Shared-Key scheme of
// spec.md §4.1, c.f. Credential{Shared-Key(account, key, pathStyle)}.
type sharedKeyCredential struct {
	accountName string
	accountKey  []byte
	pathStyle   bool
}

func newSharedKeyCredential(accountName, accountKey string, pathStyle bool) (*sharedKeyCredential, error) {
	if accountName == "" {
		return nil, newStorageError(ErrInvalidInput, "account name required", nil)
	}
	key, err := accountKeyFromBase64(accountKey)
	if err != nil {
		return nil, err
	}
	return &sharedKeyCredential{accountName: accountName, accountKey: key, pathStyle: pathStyle}, nil
}

// sign computes the Authorization header value for the finalized request
// described by verb/headers/resourceURL.
func (c *sharedKeyCredential) sign(_ context.Context, verb string, headers map[string]string, resourceURL *url.URL) (string, error) {
	signer := sharedKeySigner{baseSigner{accountName: c.accountName}}
	canonical, err := signer.canonicalizedString(verb, headers, resourceURL)
	if err != nil {
		return "", err
	}
	sig := computeHmac256(c.accountKey, canonical)
	return fmt.Sprintf("%s %s:%s", signer.authScheme(), c.accountName, sig), nil
}

// anonymousCredential never adds an Authorization header; used for public
// container/blob reads.
type anonymousCredential struct{}

func (anonymousCredential) sign(context.Context, string, map[string]string, *url.URL) (string, error) {
	return "", nil
}

// sasCredential carries a pre-minted SAS token (a query string) that's
// appended to every request's query rather than signed per-request.
type sasCredential struct {
	token string
}

func (s sasCredential) queryValues() (url.Values, error) {
	return parseSASQuery(s.token)
}
