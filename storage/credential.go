package storage

import (
	"context"
	"net/url"
)

// Credential is spec.md §3's sum type: Shared-Key, Shared-Access-Signature,
// Bearer, or Anonymous. The Pipeline Executor only needs two things from
// whichever one it holds: a way to produce the Authorization header for a
// finalized, per-attempt request, and (for SAS) a way to contribute its
// token to the request's query string.
type Credential interface {
	// sign returns the Authorization header value for the given verb,
	// snapshot of headers, and per-attempt resource URL. Anonymous and SAS
	// credentials return "" — SAS carries its credential in the query
	// string instead, via applyToQuery.
	sign(ctx context.Context, verb string, headers map[string]string, resourceURL *url.URL) (string, error)

	// applyToQuery lets a SAS credential attach its token's parameters to
	// q; other credentials are no-ops.
	applyToQuery(q url.Values) error
}

func (c *sharedKeyCredential) applyToQuery(url.Values) error { return nil }

func (anonymousCredential) applyToQuery(url.Values) error { return nil }

func (s sasCredential) sign(context.Context, string, map[string]string, *url.URL) (string, error) {
	return "", nil
}

func (s sasCredential) applyToQuery(q url.Values) error {
	values, err := s.queryValues()
	if err != nil {
		return err
	}
	for k, vs := range values {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return nil
}

// bearerSignerAdapter adapts bearerCredential.sign(ctx) (which takes no
// verb/headers/resourceURL — a bearer token is independent of the request
// being signed) to the Credential interface.
type bearerSignerAdapter struct{ cred *bearerCredential }

func (b bearerSignerAdapter) sign(ctx context.Context, _ string, _ map[string]string, _ *url.URL) (string, error) {
	return b.cred.sign(ctx)
}

func (b bearerSignerAdapter) applyToQuery(url.Values) error { return nil }

// NewBearerCredential wraps provider as a Credential using Bearer signing.
func NewBearerCredential(provider TokenProvider) Credential {
	return bearerSignerAdapter{cred: newBearerCredential(provider)}
}

// NewSharedKeyCredential constructs a Credential using Shared-Key signing.
func NewSharedKeyCredential(accountName, accountKey string, pathStyle bool) (Credential, error) {
	return newSharedKeyCredential(accountName, accountKey, pathStyle)
}

// NewAnonymousCredential constructs a no-op Credential for public reads.
func NewAnonymousCredential() Credential { return anonymousCredential{} }

// NewSASCredential wraps a pre-minted SAS token (as returned by
// GenerateSAS) as a Credential.
func NewSASCredential(token string) Credential { return sasCredential{token: token} }
