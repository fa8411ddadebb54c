// Package storage provides clients for Microsoft Azure Storage Services.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

const (
	// DefaultBaseURL is the domain name used for storage requests when a
	// default client is created.
	DefaultBaseURL = "core.windows.net"

	// DefaultAPIVersion is the Azure Storage API version string used when a
	// basic client is created.
	DefaultAPIVersion = "2014-02-14"

	defaultUseHTTPS = true

	// tableServiceName is the only service family this pack has a concrete
	// client for (TableServiceClient in table.go); blob and queue clients
	// were dropped rather than invented (see DESIGN.md), so their service
	// name constants go with them.
	tableServiceName = "table"
)

// Client is the account-level handle: it carries the Config (account
// identity, DNS suffix, proxy, logger), the Credential the Signing Engine
// uses, and lazily builds one Pipeline per service family (blob/table/
// queue), each with its own primary/secondary HostConfiguration.
type Client struct {
	config     Config
	credential Credential
	retry      RetryPolicy
	userAgent  string

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// UnexpectedStatusCodeError is returned when a storage service responds
// with neither an error nor an HTTP status code indicating success.
type UnexpectedStatusCodeError struct {
	allowed []int
	got     int
}

func (e UnexpectedStatusCodeError) Error() string {
	s := func(i int) string { return fmt.Sprintf("%d", i) }

	got := s(e.got)
	expected := make([]string, 0, len(e.allowed))
	for _, v := range e.allowed {
		expected = append(expected, s(v))
	}
	return fmt.Sprintf("storage: status code from service response is %s; was expecting %s", got, strings.Join(expected, " or "))
}

// NewBasicClient constructs a Client for the Azure public cloud using
// Shared-Key signing, matching the teacher's zero-config entry point.
func NewBasicClient(accountName, accountKey string) (*Client, error) {
	return NewClient(Config{
		AccountName: accountName,
		AccountKey:  accountKey,
		DNSSuffix:   DefaultBaseURL,
		UseHTTPS:    defaultUseHTTPS,
		APIVersion:  DefaultAPIVersion,
	})
}

// NewClient constructs a Client from an explicit Config. Credential
// defaults to Shared-Key derived from cfg.AccountName/AccountKey; callers
// wanting Bearer, SAS, or Anonymous signing construct the Client then call
// WithCredential.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccountName == "" {
		return nil, newStorageError(ErrInvalidInput, "account name required", nil)
	}
	if cfg.DNSSuffix == "" {
		cfg.DNSSuffix = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}

	cred, err := newSharedKeyCredential(cfg.AccountName, cfg.AccountKey, cfg.Emulated)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:     cfg,
		credential: cred,
		retry:      NoRetryPolicy{},
		userAgent:  "azure-storage-go-core",
		pipelines:  make(map[string]*Pipeline),
	}, nil
}

// WithCredential replaces the Client's Credential (e.g. to switch to a SAS
// token or a Bearer TokenProvider), invalidating any cached Pipelines so
// the new credential takes effect on the next call.
func (c *Client) WithCredential(cred Credential) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = cred
	c.pipelines = make(map[string]*Pipeline)
	return c
}

// WithRetryPolicy sets the RetryPolicy every Pipeline built after this call
// uses.
func (c *Client) WithRetryPolicy(retry RetryPolicy) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retry = retry
	c.pipelines = make(map[string]*Pipeline)
	return c
}

// GetTableService returns a TableServiceClient which can operate on the
// table service of the storage account.
func (c *Client) GetTableService() TableServiceClient {
	return TableServiceClient{client: c}
}

func (c Client) endpointHost(service string, secondary bool) *url.URL {
	scheme := "http"
	if c.config.UseHTTPS {
		scheme = "https"
	}

	name := c.config.AccountName
	if secondary {
		name += "-secondary"
	}

	if c.config.Emulated {
		return &url.URL{Scheme: scheme, Host: c.config.DNSSuffix, Path: "/" + name}
	}

	return &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s.%s.%s", name, service, c.config.DNSSuffix)}
}

func (c Client) hostConfiguration(service string) HostConfiguration {
	return HostConfiguration{
		Primary:   c.endpointHost(service, false),
		Secondary: c.endpointHost(service, true),
	}
}

// pipelineFor lazily constructs (and caches) the Pipeline for service.
func (c *Client) pipelineFor(service string) (*Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pipelines[service]; ok {
		return p, nil
	}

	p, err := NewPipeline(c.hostConfiguration(service), c.credential, PipelineOptions{
		APIVersion: c.config.APIVersion,
		UserAgent:  c.userAgent,
		Retry:      c.retry,
		Logger:     c.config.logger(),
	})
	if err != nil {
		return nil, err
	}
	c.pipelines[service] = p
	return p, nil
}

// Do sends req through the service family's Pipeline (creating it on first
// use), the single path every service-specific client (table.go today;
// blob/queue would be symmetric additions) routes through rather than
// building its own transport.
func (c *Client) Do(ctx context.Context, service string, req *Request, opts ClientOptions) (*Response, error) {
	p, err := c.pipelineFor(service)
	if err != nil {
		return nil, err
	}
	return p.Do(ctx, req, opts)
}

// checkRespCode returns UnexpectedStatusCodeError if respCode is not one of
// the allowed status codes; otherwise nil.
func checkRespCode(respCode int, allowed []int) error {
	for _, v := range allowed {
		if respCode == v {
			return nil
		}
	}
	return UnexpectedStatusCodeError{allowed, respCode}
}
