package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

// DefaultRequestTimeout bounds a single REST call.
const DefaultRequestTimeout = 120 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

type sessionConfig struct {
	apiVersion string
	timeout    time.Duration
	client     *http.Client
	authClient *http.Client
}

// Option configures a Session.
type Option func(*sessionConfig)

// WithAPIVersion binds the session to a REST API version such as "60.0".
func WithAPIVersion(version string) Option {
	return func(c *sessionConfig) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// WithHTTPClient sets the client used for REST calls and the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(c *sessionConfig) {
		c.client = client
		c.authClient = client
	}
}

// WithRequestTimeout sets the per-request timeout of the default client.
// It has no effect when WithHTTPClient is used.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *sessionConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func newSessionConfig(opts []Option) sessionConfig {
	cfg := sessionConfig{
		apiVersion: crm.DefaultAPIVersion,
		timeout:    DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client == nil {
		cfg.client = &http.Client{
			Timeout:   cfg.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return cfg
}

// Session is an authenticated REST session. It is immutable and safe for concurrent use.
type Session struct {
	instanceURL string
	apiVersion  string
	accessToken string
	client      *http.Client
}

var _ crm.Session = (*Session)(nil)

// NewSession binds a token to an API version.
func NewSession(token crm.Token, opts ...Option) *Session {
	cfg := newSessionConfig(opts)
	return &Session{
		instanceURL: token.InstanceURL,
		apiVersion:  cfg.apiVersion,
		accessToken: token.AccessToken,
		client:      cfg.client,
	}
}

// InstanceURL returns the base URL the session is bound to.
func (s *Session) InstanceURL() string {
	return s.instanceURL
}

// APIVersion returns the REST API version the session is bound to.
func (s *Session) APIVersion() string {
	return s.apiVersion
}

// Object returns a client for the named object type.
func (s *Session) Object(name string) crm.ObjectClient {
	return &objectClient{session: s, name: name}
}

// queryPage is one page of a query response.
type queryPage struct {
	TotalSize      int          `json:"totalSize"`
	Done           bool         `json:"done"`
	NextRecordsURL string       `json:"nextRecordsUrl"`
	Records        []crm.Record `json:"records"`
}

// QueryAll runs a query and follows nextRecordsUrl until the result is done.
func (s *Session) QueryAll(ctx context.Context, query string) ([]crm.Record, error) {
	next := s.dataURL("/query/") + "?q=" + url.QueryEscape(query)
	records := []crm.Record{}

	for next != "" {
		var page queryPage
		if err := s.doJSON(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		next = ""
		if !page.Done && page.NextRecordsURL != "" {
			next = s.instanceURL + page.NextRecordsURL
		}
	}

	return records, nil
}

func (s *Session) dataURL(path string) string {
	return s.instanceURL + "/services/data/v" + s.apiVersion + path
}

func (s *Session) sobjectURL(name string, id string) string {
	u := s.dataURL("/sobjects/" + url.PathEscape(name) + "/")
	if id != "" {
		u += url.PathEscape(id)
	}
	return u
}

// do sends one request and returns the raw body of a 2xx response.
func (s *Session) do(ctx context.Context, method, rawURL string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &crm.RemoteError{Method: method, URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &crm.RemoteError{Method: method, URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	logging.Debug().
		Add(logging.Component("salesforce")).
		Add(logging.Method(method)).
		Add(logging.URL(rawURL)).
		Add(logging.Status(resp.StatusCode)).
		Add(logging.Duration(time.Since(start))).
		Add(logging.Body(string(respBody))).
		Msg("salesforce response")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &crm.RemoteError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return respBody, nil
}

// doJSON sends one request and decodes a 2xx body into out.
func (s *Session) doJSON(ctx context.Context, method, rawURL string, payload, out any) error {
	body, err := s.do(ctx, method, rawURL, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &crm.RemoteError{
			Method: method,
			URL:    rawURL,
			Body:   logging.Truncate(string(body), logging.MaxBodyLength),
			Err:    fmt.Errorf("%w: %v", crm.ErrMalformedResponse, err),
		}
	}
	return nil
}
