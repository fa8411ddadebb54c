package storage

import "context"

// TokenProvider is the pluggable collaborator a Bearer credential reads
// from on every signed call. Refresh, caching and expiry handling are the
// provider's responsibility; the Signing Engine treats it as opaque.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// bearerCredential signs requests by setting Authorization: Bearer <token>,
// fetching the token fresh from its provider on every call.
type bearerCredential struct {
	provider TokenProvider
}

func newBearerCredential(provider TokenProvider) *bearerCredential {
	return &bearerCredential{provider: provider}
}

func (b *bearerCredential) sign(ctx context.Context) (string, error) {
	token, err := b.provider.Token(ctx)
	if err != nil {
		return "", newStorageError(ErrAuthFailed, "bearer token provider failed", err)
	}
	return "Bearer " + token, nil
}

// StaticTokenProvider is a TokenProvider that always returns the same
// token, useful for tests and for callers managing their own refresh loop
// outside of this module.
type StaticTokenProvider struct {
	StaticToken string
}

// Token implements TokenProvider.
func (p StaticTokenProvider) Token(context.Context) (string, error) {
	return p.StaticToken, nil
}
