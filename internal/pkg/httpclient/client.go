package httpclient

import (
	"context"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps resty for outbound form posts, such as delivering simulated
// processor callbacks.
type Client struct {
	r *resty.Client
}

// Response is the part of an HTTP response callers inspect.
type Response struct {
	StatusCode int
	Body       []byte
}

// New creates a new HTTP client with sensible defaults.
func New() *Client {
	r := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Client{r: r}
}

// WithTimeout sets a custom timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.r.SetTimeout(d)
	return c
}

// WithRetryCount overrides the number of retries on transport errors.
func (c *Client) WithRetryCount(n int) *Client {
	c.r.SetRetryCount(n)
	return c
}

// WithHeader sets a custom header.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := c.r.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}

// PostForm sends an application/x-www-form-urlencoded POST. Repeated keys are
// preserved.
func (c *Client) PostForm(ctx context.Context, rawURL string, data url.Values) (*Response, error) {
	resp, err := c.r.R().
		SetContext(ctx).
		SetFormDataFromValues(data).
		Post(rawURL)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}

// Raw returns the underlying resty client for advanced usage.
func (c *Client) Raw() *resty.Client {
	return c.r
}
