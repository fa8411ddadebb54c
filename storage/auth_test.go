package storage

import (
	"net/url"

	chk "gopkg.in/check.v1"
)

func (s *StorageClientSuite) Test_auth_canonicalResource(c *chk.C) {
	type test struct{ url, expected string }
	tests := []test{
		{"https://foo.blob.core.windows.net/path?a=b&c=d&comp=ok", "/foo/path?comp=ok"},
		{"https://foo.blob.core.windows.net/?comp=list", "/foo/?comp=list"},
		{"https://foo.blob.core.windows.net/cnt/blob", "/foo/cnt/blob"},
		{"https://foo.blob.core.windows.net/Table('bar')", "/foo/Table%28%27bar%27%29"},
	}

	ss := baseSigner{accountName: "foo"}
	for _, i := range tests {
		u, err := url.Parse(i.url)
		c.Assert(err, chk.IsNil)

		out, err := ss.canonicalResource(u)
		c.Assert(err, chk.IsNil)
		c.Assert(out, chk.Equals, i.expected)
	}
}

func (s *StorageClientSuite) Test_auth_base_canonicalHeader(c *chk.C) {
	type test struct {
		headers  map[string]string
		expected string
	}
	tests := []test{
		{map[string]string{}, ""},
		{map[string]string{"x-ms-foo": "bar"}, "x-ms-foo:bar"},
		{map[string]string{"foo:": "bar"}, ""},
		{map[string]string{"foo:": "bar", "x-ms-foo": "bar"}, "x-ms-foo:bar"},
		{map[string]string{
			"x-ms-version":   "9999-99-99",
			"x-ms-blob-type": "BlockBlob"}, "x-ms-blob-type:BlockBlob\nx-ms-version:9999-99-99"}}

	ss := baseSigner{accountName: "foo"}
	for _, i := range tests {
		c.Assert(ss.canonicalHeader(i.headers), chk.Equals, i.expected)
	}
}

// TODO(ahmetb) implement tests for other methods

func (s *StorageClientSuite) Test_sharedKeyCredential_sign_isDeterministic(c *chk.C) {
	cred, err := newSharedKeyCredential("storagesample", "YmFy", false)
	c.Assert(err, chk.IsNil)

	u, err := url.Parse("https://storagesample.blob.core.windows.net/mycontainer/myblob.txt")
	c.Assert(err, chk.IsNil)

	headers := map[string]string{
		"x-ms-date":    "Fri, 26 Jun 2015 23:39:12 GMT",
		"x-ms-version": "2014-02-14",
	}

	h1, err := cred.sign(nil, "GET", headers, u)
	c.Assert(err, chk.IsNil)
	h2, err := cred.sign(nil, "GET", headers, u)
	c.Assert(err, chk.IsNil)
	c.Assert(h1, chk.Equals, h2)
	c.Assert(h1, chk.Matches, "^SharedKey storagesample:.+$")
}

func (s *StorageClientSuite) Test_sharedKeyCredential_sign_contentLengthZeroIsBlank(c *chk.C) {
	cred, err := newSharedKeyCredential("storagesample", "YmFy", false)
	c.Assert(err, chk.IsNil)

	u, err := url.Parse("https://storagesample.blob.core.windows.net/mycontainer/myblob.txt")
	c.Assert(err, chk.IsNil)

	withZero, err := cred.sign(nil, "GET", map[string]string{"Content-Length": "0"}, u)
	c.Assert(err, chk.IsNil)
	withBlank, err := cred.sign(nil, "GET", map[string]string{"Content-Length": ""}, u)
	c.Assert(err, chk.IsNil)
	c.Assert(withZero, chk.Equals, withBlank)
}

func (s *StorageClientSuite) Test_newSharedKeyCredential_rejectsBadBase64(c *chk.C) {
	_, err := newSharedKeyCredential("storagesample", "not-base64!!!", false)
	c.Assert(err, chk.NotNil)
	se, ok := err.(*StorageError)
	c.Assert(ok, chk.Equals, true)
	c.Assert(se.Kind, chk.Equals, ErrInvalidKey)
}

func (s *StorageClientSuite) Test_anonymousCredential_signsNothing(c *chk.C) {
	var cred anonymousCredential
	u, _ := url.Parse("https://storagesample.blob.core.windows.net/mycontainer/myblob.txt")
	h, err := cred.sign(nil, "GET", map[string]string{}, u)
	c.Assert(err, chk.IsNil)
	c.Assert(h, chk.Equals, "")
}
