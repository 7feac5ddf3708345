package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/edps/internal/logger"
)

const (
	// Backend requires credentials as form regardless of default content type
	LoginPath = "/auth/login"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"

	HeaderRequestID = "X-Request-ID"

	defaultTimeout = 10 * time.Second
)

// Client is the single request surface to EDPS backend
// All requests are built against one base address, e.g. 'http://localhost:8000/api'
type Client struct {
	baseURL string

	client *http.Client
	logger logger.Logger

	mu     sync.RWMutex
	bearer string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger.NewNoOpLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Copy so the caller's client is not changed
	hc := *c.client
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = &loggingTransport{next: next, logger: c.logger}
	c.client = &hc

	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetBearer installs default bearer credential attached to every following request
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = token
}

func (c *Client) ClearBearer() {
	c.SetBearer("")
}

func (c *Client) Bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

// Do sends body (if not nil) as JSON and decodes JSON response into out (if not nil)
func (c *Client) Do(ctx context.Context, method string, path string, body any, out any) error {
	if body == nil {
		return c.send(ctx, method, path, "", nil, out)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	return c.send(ctx, method, path, ContentTypeJSON, bytes.NewReader(data), out)
}

// PostForm sends url encoded form
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	return c.send(ctx, http.MethodPost, path, ContentTypeForm, strings.NewReader(form.Encode()), out)
}

// Upload sends file content as multipart form under the given field name
func (c *Client) Upload(ctx context.Context, path string, field string, filename string, r io.Reader, out any) error {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to copy upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return c.send(ctx, http.MethodPost, path, mw.FormDataContentType(), buf, out)
}

func (c *Client) send(ctx context.Context, method string, path string, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", ContentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.prepare(req, path)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Backend returned error", "method", method, "path", path, "status_code", resp.StatusCode)
		return &Error{StatusCode: resp.StatusCode, Detail: parseDetail(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// prepare is the request interceptor: credentials and per endpoint header overrides
func (c *Client) prepare(req *http.Request, path string) {
	if token := c.Bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if path == LoginPath {
		req.Header.Set("Content-Type", ContentTypeForm)
	}

	req.Header.Set(HeaderRequestID, uuid.NewString())
}
