package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/go-resty/resty/v2"
)

// Response is the part of an HTTP exchange the feed engine looks at
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// OK reports a 200 response with a non-empty body
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK && len(r.Body) > 0
}

// ETag returns the response "etag" header, if any
func (r *Response) ETag() string {
	if r == nil {
		return ""
	}
	return r.Header.Get("etag")
}

// Doer issues a single request. Implementations must honour ctx cancellation.
type Doer interface {
	Request(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) (*Response, error)
}

type Client struct {
	client  *resty.Client
	timeout time.Duration
}

// Option tunes a Client
type Option func(*resty.Client)

// WithRetryCount sets how many times resty retries a failed request. Callers
// that already retry with their own backoff pass 0.
func WithRetryCount(n int) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(n)
	}
}

func New(timeout time.Duration, opts ...Option) *Client {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", "feedcore/1.0").
		SetLogger(restyLogger{})
	for _, opt := range opts {
		opt(client)
	}
	return &Client{
		client:  client,
		timeout: timeout,
	}
}

// restyLogger sends resty's own messages to the zerolog logger
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	logger.Get().Error().Str("component", "http").Msgf(strings.TrimSpace(format), v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	logger.Get().Warn().Str("component", "http").Msgf(strings.TrimSpace(format), v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	logger.Get().Debug().Str("component", "http").Msgf(strings.TrimSpace(format), v...)
}

// Request performs method against url. A zero timeout uses the client default.
// Non-2xx statuses are returned as responses, not errors.
func (c *Client) Request(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, url, err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Header:     resp.Header(),
	}, nil
}
