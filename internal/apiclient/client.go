// Package apiclient talks to the remote Asset API: listing and patching
// jobs, fetching asset metadata, and downloading the underlying blob.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/asset-processing/worker/internal/blobstore"
	"github.com/asset-processing/worker/internal/job"
)

// ErrAPIKeyRequired is returned when no API key is configured.
var ErrAPIKeyRequired = errors.New("apiclient: API key is required")

// ApiError wraps a failed blob fetch with the effective status code, per
// the fixed ApiError(500) contract for FetchBlob failures.
type ApiError struct {
	Code    int
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("apiclient: %d: %s", e.Code, e.Message)
}

// Client is the set of calls the scheduler, worker, and processor make
// against the remote Asset API.
type Client interface {
	// ListJobs returns every known asset-processing job. On any network
	// or decoding failure it logs and returns an empty, non-nil slice —
	// it never returns an error, so a transient outage cannot poison the
	// scheduler's classification loop.
	ListJobs(ctx context.Context) []job.Job

	// PatchJob applies a sparse update to a job. It does not retry; a
	// non-2xx response or network error yields a false success.
	PatchJob(ctx context.Context, id string, update job.JobUpdate) bool

	// FetchAsset returns the asset for id, or false if it is absent or
	// the request fails.
	FetchAsset(ctx context.Context, assetID string) (job.Asset, bool)

	// FetchBlob downloads the full contents addressed by url, which may
	// be an http(s):// URL or an s3://bucket/key URL. Any non-2xx
	// response or network error is returned as an *ApiError with code 500.
	FetchBlob(ctx context.Context, url string) ([]byte, error)

	// PatchAssetContent sets an asset's processed content. Non-2xx
	// responses are logged and reported as a false success.
	PatchAssetContent(ctx context.Context, assetID, content string) bool
}

// HTTPClient is the net/http implementation of Client.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	validate   *validator.Validate
	blobs      *blobstore.Client // optional, nil when S3 is not configured
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the bearer token sent on every authenticated call.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithHTTPClient overrides the underlying http.Client, e.g. for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithBaseURL overrides the Asset API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *HTTPClient) { c.baseURL = url }
}

// WithLogger overrides the logger used for soft-failure diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *HTTPClient) { c.logger = l }
}

// WithBlobStore enables s3:// blob URLs by supplying an S3-backed
// downloader, constructed from the worker's optional S3 configuration.
func WithBlobStore(b *blobstore.Client) ClientOption {
	return func(c *HTTPClient) { c.blobs = b }
}

// NewClient builds an HTTPClient against baseURL, authenticating with
// apiKey. apiKey must be non-empty.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		validate:   validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	return c, nil
}

type patchJobBody struct {
	Status        *string    `json:"status,omitempty"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
	Attempts      *int       `json:"attempts,omitempty"`
	LastHeartBeat *time.Time `json:"lastHeartBeat,omitempty"`
}

type patchAssetContentBody struct {
	Content string `json:"content"`
}

// ListJobs implements Client.
func (c *HTTPClient) ListJobs(ctx context.Context) []job.Job {
	var raw []job.Job

	if err := c.doJSON(ctx, http.MethodGet, "/api/asset-processing-job", nil, &raw); err != nil {
		c.logger.Warn("apiclient: list jobs failed, returning empty list", "error", err)
		return []job.Job{}
	}

	jobs := make([]job.Job, 0, len(raw))
	for _, j := range raw {
		if !j.Status.IsKnown() {
			c.logger.Warn("apiclient: ignoring job with unknown status", "job_id", j.ID, "status", j.Status)
			continue
		}
		if err := c.validate.Struct(j); err != nil {
			c.logger.Warn("apiclient: ignoring job that failed validation", "job_id", j.ID, "error", err)
			continue
		}
		jobs = append(jobs, j)
	}

	return jobs
}

// PatchJob implements Client.
func (c *HTTPClient) PatchJob(ctx context.Context, id string, update job.JobUpdate) bool {
	status := string(update.Status)
	body := patchJobBody{
		Status:        &status,
		ErrorMessage:  update.ErrorMessage,
		Attempts:      update.Attempts,
		LastHeartBeat: update.LastHeartBeat,
	}

	path := fmt.Sprintf("/asset-processing-job/%s", id)
	if err := c.doJSON(ctx, http.MethodPatch, path, body, nil); err != nil {
		c.logger.Warn("apiclient: patch job failed", "job_id", id, "error", err)
		return false
	}
	return true
}

// FetchAsset implements Client.
func (c *HTTPClient) FetchAsset(ctx context.Context, assetID string) (job.Asset, bool) {
	var asset job.Asset

	path := fmt.Sprintf("/asset/%s", assetID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &asset); err != nil {
		c.logger.Warn("apiclient: fetch asset failed", "asset_id", assetID, "error", err)
		return job.Asset{}, false
	}

	if err := c.validate.Struct(asset); err != nil {
		c.logger.Warn("apiclient: fetched asset failed validation", "asset_id", assetID, "error", err)
		return job.Asset{}, false
	}

	return asset, true
}

// FetchBlob implements Client.
func (c *HTTPClient) FetchBlob(ctx context.Context, url string) ([]byte, error) {
	if bucket, key, ok := blobstore.ParseURL(url); ok {
		if c.blobs == nil {
			return nil, &ApiError{Code: 500, Message: "s3 blob URL given but no blob store is configured"}
		}
		data, err := c.blobs.Download(ctx, bucket, key)
		if err != nil {
			return nil, &ApiError{Code: 500, Message: err.Error()}
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ApiError{Code: 500, Message: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ApiError{Code: 500, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ApiError{Code: 500, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ApiError{Code: 500, Message: fmt.Sprintf("blob fetch returned status %d", resp.StatusCode)}
	}

	return data, nil
}

// PatchAssetContent implements Client.
func (c *HTTPClient) PatchAssetContent(ctx context.Context, assetID, content string) bool {
	path := fmt.Sprintf("/asset/%s", assetID)
	body := patchAssetContentBody{Content: content}

	if err := c.doJSON(ctx, http.MethodPatch, path, body, nil); err != nil {
		c.logger.Warn("apiclient: patch asset content failed", "asset_id", assetID, "error", err)
		return false
	}
	return true
}

// doJSON performs a single authenticated request with no retries. body is
// marshaled as the request payload when non-nil; out is decoded from the
// response body when non-nil.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apiclient: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("apiclient: status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("apiclient: unmarshal response: %w", err)
		}
	}

	return nil
}
