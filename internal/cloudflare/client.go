package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sushaantu/CloudflareStatusBar/internal/credentials"
)

const (
	// DefaultBaseURL is the production Cloudflare v4 API endpoint.
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"

	// DefaultRequestTimeout bounds the wait for response headers.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultTransferTimeout bounds a whole request including body transfer.
	DefaultTransferTimeout = 60 * time.Second

	// decodePreviewLimit caps the body excerpt attached to decoding errors.
	decodePreviewLimit = 300
	// contentTypePreviewLimit caps the excerpt for non-JSON responses.
	contentTypePreviewLimit = 200
)

// CredentialSource supplies credentials for each request. Resolution runs
// per call so a profile switch takes effect without rebuilding the client.
type CredentialSource interface {
	Resolve() credentials.Credentials
}

// CredentialSourceFunc adapts a function to the CredentialSource interface.
type CredentialSourceFunc func() credentials.Credentials

// Resolve implements CredentialSource.
func (f CredentialSourceFunc) Resolve() credentials.Credentials { return f() }

// DiagnosticsRecorder receives raw-response captures when a response fails
// to decode. It reports the log path when capture is enabled.
type DiagnosticsRecorder interface {
	RecordDecodeFailure(endpoint string, status int, contentType string, cause error, body []byte) (string, bool)
}

// Client is an HTTP client for the Cloudflare v4 API.
type Client struct {
	baseURL    string
	graphqlURL string
	httpClient *http.Client
	creds      CredentialSource
	diag       DiagnosticsRecorder
	logger     *slog.Logger
}

// ClientOptions configures the Cloudflare API client.
type ClientOptions struct {
	BaseURL         string // defaults to the production API
	Credentials     CredentialSource
	Diagnostics     DiagnosticsRecorder // optional
	Logger          *slog.Logger
	RequestTimeout  time.Duration // response-header deadline
	TransferTimeout time.Duration // whole-call deadline
	MaxConns        int
	IdleConnTimeout time.Duration
}

// NewClient creates a new Cloudflare API client with connection pooling.
func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	transferTimeout := opts.TransferTimeout
	if transferTimeout <= 0 {
		transferTimeout = DefaultTransferTimeout
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	idleTimeout := opts.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       idleTimeout,
		ResponseHeaderTimeout: requestTimeout,
	}

	return &Client{
		baseURL:    baseURL,
		graphqlURL: baseURL + "/graphql",
		httpClient: &http.Client{
			Transport: &loggingTransport{base: transport, logger: logger},
			Timeout:   transferTimeout,
		},
		creds:  opts.Credentials,
		diag:   opts.Diagnostics,
		logger: logger,
	}
}

// envelope is the standard Cloudflare v4 response wrapper.
type envelope struct {
	Success    bool            `json:"success"`
	Errors     []APIMessage    `json:"errors"`
	Messages   []string        `json:"messages"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *ResultInfo     `json:"result_info"`
}

// APIMessage is one error entry inside a response envelope.
type APIMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResultInfo carries pagination metadata from list endpoints.
type ResultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// apiResponse bundles what the decode stage needs from a raw response.
type apiResponse struct {
	status      int
	contentType string
	body        []byte
}

// roundTrip resolves credentials, sends the request, and applies the
// checks shared by REST and GraphQL calls: missing credentials, transport
// failures, 401, and non-JSON success responses.
func (c *Client) roundTrip(ctx context.Context, method, rawURL string, payload []byte) (*apiResponse, error) {
	creds := c.creds.Resolve()
	auth := creds.AuthorizationHeader()
	if auth == "" {
		return nil, NewNotAuthenticatedError()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, NewNotAuthenticatedError()
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && !isJSONContentType(contentType) {
		c.logger.Warn("non-JSON response from API",
			"url", rawURL,
			"status", resp.StatusCode,
			"content_type", contentType,
		)
		return nil, NewContentTypeError(contentType, bodyPreview(data, contentTypePreviewLimit))
	}

	return &apiResponse{
		status:      resp.StatusCode,
		contentType: contentType,
		body:        data,
	}, nil
}

// get performs a GET against a v4 REST path and decodes the envelope's
// result field into out. A nil out discards the result.
func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.roundTrip(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return c.decodeFailure(path, resp, err)
	}

	if !env.Success {
		message := joinAPIMessages(env.Errors)
		if isAuthFailureMessage(message) {
			return NewTokenExpiredError(message)
		}
		return NewAPIError(message)
	}

	if out == nil {
		return nil
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return NewInvalidResponseError(path)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return c.decodeFailure(path, resp, err)
	}
	return nil
}

// decodeFailure classifies a JSON failure, captures the raw body to the
// diagnostics log when enabled, and attaches a short preview.
func (c *Client) decodeFailure(endpoint string, resp *apiResponse, cause error) error {
	decodeErr := NewDecodingError(cause, bodyPreview(resp.body, decodePreviewLimit))
	if c.diag != nil {
		if path, ok := c.diag.RecordDecodeFailure(endpoint, resp.status, resp.contentType, cause, resp.body); ok {
			decodeErr.DiagPath = path
		}
	}
	c.logger.Error("failed to decode API response",
		"endpoint", endpoint,
		"status", resp.status,
		"error", cause,
	)
	return decodeErr
}

// ListAccounts returns the accounts the credential can access.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.get(ctx, "/accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetAccount returns a single account by ID.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	if err := c.get(ctx, "/accounts/"+url.PathEscape(accountID), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ListWorkers returns the Workers scripts in an account.
func (c *Client) ListWorkers(ctx context.Context, accountID string) ([]Worker, error) {
	var workers []Worker
	path := fmt.Sprintf("/accounts/%s/workers/scripts", url.PathEscape(accountID))
	if err := c.get(ctx, path, &workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// GetWorker returns a single Workers script by name.
func (c *Client) GetWorker(ctx context.Context, accountID, name string) (*Worker, error) {
	var worker Worker
	path := fmt.Sprintf("/accounts/%s/workers/scripts/%s", url.PathEscape(accountID), url.PathEscape(name))
	if err := c.get(ctx, path, &worker); err != nil {
		return nil, err
	}
	return &worker, nil
}

// ListPagesProjects returns the Pages projects in an account.
func (c *Client) ListPagesProjects(ctx context.Context, accountID string) ([]PagesProject, error) {
	var projects []PagesProject
	path := fmt.Sprintf("/accounts/%s/pages/projects", url.PathEscape(accountID))
	if err := c.get(ctx, path, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ListDeployments returns the deployments of a Pages project, newest
// first as the API orders them.
func (c *Client) ListDeployments(ctx context.Context, accountID, projectName string) ([]Deployment, error) {
	var deployments []Deployment
	path := fmt.Sprintf("/accounts/%s/pages/projects/%s/deployments",
		url.PathEscape(accountID), url.PathEscape(projectName))
	if err := c.get(ctx, path, &deployments); err != nil {
		return nil, err
	}
	return deployments, nil
}

// ListKVNamespaces returns the Workers KV namespaces in an account.
func (c *Client) ListKVNamespaces(ctx context.Context, accountID string) ([]KVNamespace, error) {
	var namespaces []KVNamespace
	path := fmt.Sprintf("/accounts/%s/storage/kv/namespaces", url.PathEscape(accountID))
	if err := c.get(ctx, path, &namespaces); err != nil {
		return nil, err
	}
	return namespaces, nil
}

// ListR2Buckets returns the R2 buckets in an account. Unlike the other
// list endpoints, R2 nests its list inside a buckets object.
func (c *Client) ListR2Buckets(ctx context.Context, accountID string) ([]R2Bucket, error) {
	var wrapped struct {
		Buckets []R2Bucket `json:"buckets"`
	}
	path := fmt.Sprintf("/accounts/%s/r2/buckets", url.PathEscape(accountID))
	if err := c.get(ctx, path, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Buckets, nil
}

// ListD1Databases returns the D1 databases in an account.
func (c *Client) ListD1Databases(ctx context.Context, accountID string) ([]D1Database, error) {
	var databases []D1Database
	path := fmt.Sprintf("/accounts/%s/d1/database", url.PathEscape(accountID))
	if err := c.get(ctx, path, &databases); err != nil {
		return nil, err
	}
	return databases, nil
}

// ListQueues returns the Queues in an account.
func (c *Client) ListQueues(ctx context.Context, accountID string) ([]Queue, error) {
	var queues []Queue
	path := fmt.Sprintf("/accounts/%s/queues", url.PathEscape(accountID))
	if err := c.get(ctx, path, &queues); err != nil {
		return nil, err
	}
	return queues, nil
}

// joinAPIMessages flattens envelope errors into one message string.
func joinAPIMessages(msgs []APIMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Message != "" {
			parts = append(parts, m.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// isJSONContentType reports whether a Content-Type header denotes JSON.
// A missing header counts as non-JSON.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// bodyPreview returns a UTF-8-safe excerpt of a response body.
func bodyPreview(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.ToValidUTF8(string(body), "")
}
