package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/kelsos/bosonnlp-go/internal/config"
	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/models"
)

const (
	Version = "0.1.0"

	// bodies above this size are gzip-compressed when compression is enabled
	compressThreshold = 10 * 1024
)

// HTTPError is a non-2xx response. Recognized is set when the body carried
// the service's {"message": ...} envelope, meaning the service itself
// answered rather than a proxy or load balancer.
type HTTPError struct {
	StatusCode int
	Message    string
	Recognized bool
	Body       []byte
}

// IsServiceNotFound reports a 404 answered by the service itself.
func (e *HTTPError) IsServiceNotFound() bool {
	return e.Recognized && e.StatusCode == http.StatusNotFound
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Message)
}

// APIClient handles all HTTP communication with the BosonNLP API
type APIClient struct {
	config     *config.Config
	httpClient *http.Client
	userAgent  string
}

// NewAPIClient creates a new API client with the given configuration
func NewAPIClient(cfg *config.Config) *APIClient {
	return NewAPIClientWithHTTPClient(cfg, &http.Client{Timeout: cfg.HTTPTimeout})
}

// NewAPIClientWithHTTPClient lets callers share a connection pool or inject
// a test client.
func NewAPIClientWithHTTPClient(cfg *config.Config, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &APIClient{
		config:     cfg,
		httpClient: httpClient,
		userAgent:  fmt.Sprintf("bosonnlp-go/%s", Version),
	}
}

// BuildURL constructs a full URL for the given endpoint
func (c *APIClient) BuildURL(endpoint string, params url.Values) string {
	u := c.config.BaseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get makes a GET request to the specified endpoint
func (c *APIClient) Get(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	return c.request(ctx, http.MethodGet, endpoint, params, nil, result)
}

// Post makes a POST request with a JSON body to the specified endpoint
func (c *APIClient) Post(ctx context.Context, endpoint string, params url.Values, body interface{}, result interface{}) error {
	return c.request(ctx, http.MethodPost, endpoint, params, body, result)
}

func (c *APIClient) encodeBody(body interface{}) (io.Reader, bool, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("error marshaling request body: %w", err)
	}

	if !c.config.Compress || len(jsonBody) <= compressThreshold {
		return bytes.NewReader(jsonBody), false, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, false, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := zw.Write(jsonBody); err != nil {
		return nil, false, fmt.Errorf("error compressing request body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("error compressing request body: %w", err)
	}
	logger.Debug("Compressed request body from %d to %d bytes", len(jsonBody), buf.Len())
	return &buf, true, nil
}

// request is the core HTTP request method
func (c *APIClient) request(ctx context.Context, method, endpoint string, params url.Values, body interface{}, result interface{}) error {
	url := c.BuildURL(endpoint, params)
	start := time.Now()
	logger.Debug("Starting %s request to %s", method, url)

	var requestBody io.Reader
	compressed := false
	if body != nil {
		var err error
		requestBody, compressed, err = c.encodeBody(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("X-Token", c.config.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		logger.Debug("Request to %s failed after %v: %v", url, elapsed, err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	logger.Debug("Request to %s completed in %v with status %d", url, elapsed, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
	}

	return nil
}

func newHTTPError(resp *http.Response) *HTTPError {
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return httpErr
	}
	httpErr.Body = bodyBytes

	var apiErr models.APIError
	if err := json.Unmarshal(bodyBytes, &apiErr); err == nil && apiErr.Message != "" {
		httpErr.Message = apiErr.Message
		httpErr.Recognized = true
	} else if len(bodyBytes) > 0 {
		httpErr.Message = string(bodyBytes)
	}
	return httpErr
}

// Ping checks that the API is reachable and accepts the token by asking for
// the status of a job that cannot exist. A bare 404 from something other
// than the service is a failure.
func (c *APIClient) Ping(ctx context.Context) error {
	var status models.StatusResponse
	err := c.Get(ctx, "/cluster/status/"+uuid.NewString(), nil, &status)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.IsServiceNotFound() {
			return nil
		}
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
