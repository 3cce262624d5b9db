package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/docdesk/internal/notify"
)

// RequestIDHeader carries a per-request id so backend logs can be correlated.
const RequestIDHeader = "X-Request-ID"

type quietKey struct{}

// Quiet marks requests made with ctx as exempt from error interception.
// Callers that retry on their own use it to report failures once.
func Quiet(ctx context.Context) context.Context {
	return context.WithValue(ctx, quietKey{}, true)
}

func isQuiet(ctx context.Context) bool {
	quiet, _ := ctx.Value(quietKey{}).(bool)
	return quiet
}

// TokenSource supplies the bearer token for outgoing requests.
// An empty token means the request is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the backend REST root, e.g. http://localhost:8000
	BaseURL string
	// Tokens supplies the Authorization bearer token (optional)
	Tokens TokenSource
	// Notifier receives interception notices for server and model errors (optional)
	Notifier notify.Notifier
	// Logger is the structured logger to use (optional)
	Logger *slog.Logger
	// Timeout bounds each request (default: 10 minutes for large uploads)
	Timeout time.Duration
	// HTTPClient overrides the underlying client (optional, tests)
	HTTPClient *http.Client
}

// Client is an HTTP client for the document backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	notifier   notify.Notifier
	logger     *slog.Logger
}

// NewClient creates a new API client with default settings.
func NewClient(baseURL string) *Client {
	return New(ClientConfig{BaseURL: baseURL})
}

// New creates a new API client from cfg.
func New(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute // Long timeout for large file operations
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// The backend also sets an access_token cookie on login; keep it like a browser would.
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
	}
}

// BaseURL returns the REST root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request and decodes the JSON response.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// Post performs a POST request with JSON body and decodes the response.
func (c *Client) Post(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// Patch performs a PATCH request with JSON body and decodes the response.
func (c *Client) Patch(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPatch, path, body, result)
}

// Put performs a PUT request with JSON body and decodes the response.
func (c *Client) Put(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPut, path, body, result)
}

// Delete performs a DELETE request. result may be nil.
func (c *Client) Delete(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, result)
}

// FilePart is a file field in a multipart upload.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

// PostMultipart uploads fields and files as multipart/form-data and decodes the response.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, files []FilePart, result any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	// Stable field order keeps request bodies reproducible
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	for _, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.FileName))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return fmt.Errorf("failed to copy file %s: %w", f.FileName, err)
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	resp, err := c.send(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.handleResponse(ctx, resp, result)
}

// Download streams a raw response body (e.g. a book's PDF) into w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, c.handleResponse(ctx, resp, nil)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read response: %w", err)
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, bodyReader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.handleResponse(ctx, resp, result)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.New().String())

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debug("api request", "method", method, "path", path, "request_id", req.Header.Get(RequestIDHeader))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) handleResponse(ctx context.Context, resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := newError(resp, body)
		if !isQuiet(ctx) {
			c.intercept(apiErr)
		}
		return apiErr
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// intercept reports server-side and model-related failures once, globally,
// so callers only need to handle their own action-specific messaging.
func (c *Client) intercept(err *Error) {
	switch {
	case err.Status >= 500:
		c.notifier.Notify(notify.LevelError, "Server error: "+err.Detail)
	case mentionsModel(err.Detail):
		c.notifier.Notify(notify.LevelError, "Model error: "+err.Detail)
	default:
		return
	}
	c.logger.Warn("backend error intercepted", "status", err.Status, "method", err.Method, "path", err.Path, "detail", err.Detail)
}

// Pathf formats a request path, escaping every string argument as a path segment.
func Pathf(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			escaped[i] = url.PathEscape(s)
			continue
		}
		escaped[i] = a
	}
	return fmt.Sprintf(format, escaped...)
}
