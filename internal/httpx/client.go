package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reportbridge/internal/config"
	"reportbridge/internal/logging"
	"reportbridge/internal/services"
)

const maxErrorBodyBytes = 4096

// Response carries the status and body of a successful (2xx) call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// StatusError reports a non-2xx platform response. It is never retried.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.Status, strings.TrimSpace(e.Body))
}

func (e *StatusError) Unwrap() error { return services.ErrHTTPStatus }

// Client wraps an *http.Client with bounded retry on transient transport
// failures. Non-2xx responses are surfaced immediately as *StatusError.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	attempts   int
	wait       time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used in tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the attempt count and the fixed wait between attempts.
func WithRetryPolicy(attempts int, wait time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if wait >= 0 {
			c.wait = wait
		}
	}
}

// New constructs a resilient client from the HTTP configuration section.
func New(cfg config.HTTP, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	dialer := &net.Dialer{Timeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second}
	client := &Client{
		httpClient: &http.Client{
			Timeout:   time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
			Transport: &http.Transport{DialContext: dialer.DialContext},
		},
		logger:   logger.With(logging.String(logging.FieldComponent, "httpx")),
		attempts: cfg.RetryAttempts,
		wait:     time.Duration(cfg.RetryWaitSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.attempts <= 0 {
		client.attempts = 1
	}
	return client
}

// Get performs a GET and returns the raw response.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.execute(ctx, http.MethodGet, url, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, url, headers, nil, "")
	})
}

// GetJSON performs a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	resp, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	return decodeJSON(url, resp.Body, out)
}

// PostJSON performs a POST with a JSON payload, decoding the response into
// out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload any, out any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	resp, err := c.execute(ctx, http.MethodPost, url, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, url, headers, bytes.NewReader(body), "application/json")
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := decodeJSON(url, resp.Body, out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// PostMultipart uploads content as a single multipart file field.
func (c *Client) PostMultipart(ctx context.Context, url string, headers map[string]string, field, filename, contentType string, content []byte) (*Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)}
	header["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write multipart content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	body := buf.Bytes()
	return c.execute(ctx, http.MethodPost, url, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, url, headers, bytes.NewReader(body), writer.FormDataContentType())
	})
}

// Download performs a GET and streams the full body to destPath.
func (c *Client) Download(ctx context.Context, url string, headers map[string]string, destPath string) error {
	operation := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, url, headers, nil, "")
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return c.classifyTransport(ctx, http.MethodGet, url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			return backoff.Permanent(newStatusError(url, resp.StatusCode, body))
		}

		file, err := os.Create(destPath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create download target: %w", err))
		}
		if _, err := io.Copy(file, resp.Body); err != nil {
			file.Close()
			return fmt.Errorf("%w: stream download %s: %v", services.ErrTransient, url, err)
		}
		if err := file.Close(); err != nil {
			return backoff.Permanent(fmt.Errorf("close download target: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, c.policy(ctx)); err != nil {
		c.logExhausted(http.MethodGet, url, err)
		return err
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, headers map[string]string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) execute(ctx context.Context, method, url string, build func() (*http.Request, error)) (*Response, error) {
	var result *Response
	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return c.classifyTransport(ctx, method, url, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read response from %s: %v", services.ErrTransient, url, err)
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return backoff.Permanent(newStatusError(url, resp.StatusCode, body))
		}
		result = &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}
		return nil
	}

	if err := backoff.Retry(operation, c.policy(ctx)); err != nil {
		c.logExhausted(method, url, err)
		return nil, err
	}
	return result, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	constant := backoff.NewConstantBackOff(c.wait)
	return backoff.WithContext(backoff.WithMaxRetries(constant, uint64(c.attempts-1)), ctx)
}

// classifyTransport tags transport failures for retry. Context cancellation
// is permanent; everything else at this layer is a transient network error.
func (c *Client) classifyTransport(ctx context.Context, method, url string, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Error("request timed out", logging.String("method", method), logging.String("url", url), logging.Error(err))
	} else {
		c.logger.Warn("transient request failure", logging.String("method", method), logging.String("url", url), logging.Error(err))
	}
	return fmt.Errorf("%w: %s %s: %v", services.ErrTransient, method, url, err)
}

func (c *Client) logExhausted(method, url string, err error) {
	if !errors.Is(err, services.ErrTransient) {
		return
	}
	c.logger.Error(
		"retries exhausted",
		logging.String("method", method),
		logging.String("url", url),
		logging.Int("attempts", c.attempts),
		logging.Error(err),
	)
}

func newStatusError(url string, status int, body []byte) *StatusError {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return &StatusError{Status: status, URL: url, Body: string(body)}
}

func decodeJSON(url string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
