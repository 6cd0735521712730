// internal/common/http/client.go
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrBodyTooLarge is returned when a response exceeds the configured cap.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// StatusError carries a non-2xx response status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	FinalURL    *url.URL
	Body        []byte
}

// Client fetches pages with browser-like headers, a timeout and a body cap.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
}

func NewClient(timeout time.Duration, maxBodyBytes int64, userAgent string) *Client {
	if userAgent == "" {
		userAgent = browserUserAgent
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
	}
}

func (c *Client) setHeaders(req *http.Request, userAgent string) {
	if userAgent == "" {
		userAgent = c.userAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// Get fetches rawURL. userAgent overrides the client default when non-empty.
func (c *Client) Get(ctx context.Context, rawURL, userAgent string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	reader := io.Reader(resp.Body)
	if c.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c.maxBodyBytes > 0 && int64(len(body)) > c.maxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL,
		Body:        body,
	}, nil
}
