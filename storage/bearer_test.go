package storage

import (
	"context"
	"errors"

	chk "gopkg.in/check.v1"
)

type erroringTokenProvider struct{ err error }

func (p erroringTokenProvider) Token(context.Context) (string, error) { return "", p.err }

func (s *StorageClientSuite) Test_bearerCredential_sign(c *chk.C) {
	cred := newBearerCredential(StaticTokenProvider{StaticToken: "abc123"})
	header, err := cred.sign(context.Background())
	c.Assert(err, chk.IsNil)
	c.Assert(header, chk.Equals, "Bearer abc123")
}

func (s *StorageClientSuite) Test_bearerCredential_sign_providerError(c *chk.C) {
	cred := newBearerCredential(erroringTokenProvider{err: errors.New("boom")})
	_, err := cred.sign(context.Background())
	c.Assert(err, chk.NotNil)
	se, ok := err.(*StorageError)
	c.Assert(ok, chk.Equals, true)
	c.Assert(se.Kind, chk.Equals, ErrAuthFailed)
}

func (s *StorageClientSuite) Test_NewBearerCredential_signsViaCredentialInterface(c *chk.C) {
	var cred Credential = NewBearerCredential(StaticTokenProvider{StaticToken: "xyz"})
	header, err := cred.sign(context.Background(), "GET", map[string]string{}, nil)
	c.Assert(err, chk.IsNil)
	c.Assert(header, chk.Equals, "Bearer xyz")
}
