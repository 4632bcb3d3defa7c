// Package fetch provides the HTTP client shared by strategies and
// downloaders, with cookie, proxy and retry handling.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// ErrProxy marks failures to reach or tunnel through the configured proxy.
var ErrProxy = errors.New("proxy failure")

// StatusError is returned by Request for responses with status >= 400.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// Options configures a Client. Timeout bounds each stall of a request
// (connecting, waiting for headers, or one body read), never the whole
// transfer.
type Options struct {
	Proxy     string
	Timeout   time.Duration
	UserAgent string
	Jar       http.CookieJar
	Policy    RetryPolicy
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Client is a retrying HTTP client bound to one cookie jar and proxy.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	policy    RetryPolicy
	logger    *zap.Logger
}

// NewJar returns a cookie jar using the public suffix list.
func NewJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// New builds a Client. A zero policy falls back to DefaultRetryPolicy.
func New(opts Options) (*Client, error) {
	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Timeout > 0 {
			dialer := &net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}
			t.DialContext = dialer.DialContext
			t.TLSHandshakeTimeout = opts.Timeout
			t.ResponseHeaderTimeout = opts.Timeout
		}
		if opts.Proxy != "" {
			proxyURL, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy %q: %w", opts.Proxy, err)
			}
			t.Proxy = http.ProxyURL(proxyURL)
		}
		transport = t
	}

	jar := opts.Jar
	if jar == nil {
		var err error
		if jar, err = NewJar(); err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
	}

	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Jar:       jar,
		},
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		policy:    policy,
		logger:    logger,
	}, nil
}

// Policy returns the retry policy of the client.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Do sends req once. Proxy failures are wrapped with ErrProxy; a request
// idle for longer than the timeout fails with *StallError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.timeout <= 0 {
		return c.do(req)
	}

	ctx, cancel := context.WithCancel(req.Context())
	dog := newWatchdog(c.timeout, cancel)
	resp, err := c.do(req.WithContext(ctx))
	dog.disarm()
	if err != nil {
		cancel()
		if dog.fired.Load() && !errors.Is(err, ErrProxy) {
			return nil, &StallError{URL: req.URL.String(), Phase: "waiting for response", Limit: c.timeout}
		}
		return nil, err
	}
	resp.Body = &idleBody{ReadCloser: resp.Body, dog: dog, cancel: cancel, url: req.URL.String()}
	return resp, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if isProxyError(err) {
			return nil, fmt.Errorf("%w: %w", ErrProxy, err)
		}
		return nil, err
	}
	return resp, nil
}

// Get performs a retrying GET without checking the response status.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, rawURL, header, nil, false)
}

// Request performs a retrying call and turns status >= 400 into a
// *StatusError.
func (c *Client) Request(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*http.Response, error) {
	return c.send(ctx, method, rawURL, header, body, true)
}

// Fetch performs a retrying GET and reads the whole body.
func (c *Client) Fetch(ctx context.Context, rawURL string, header http.Header) ([]byte, *http.Response, error) {
	var data []byte
	var resp *http.Response
	err := c.policy.Run(ctx, func(attempt int) error {
		r, err := c.once(ctx, http.MethodGet, rawURL, header, nil, true)
		if err != nil {
			c.logRetry(rawURL, attempt, err)
			return err
		}
		defer r.Body.Close()
		data, err = io.ReadAll(r.Body)
		if err != nil {
			c.logRetry(rawURL, attempt, err)
			return err
		}
		resp = r
		return nil
	})
	return data, resp, err
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) send(ctx context.Context, method, rawURL string, header http.Header, body []byte, checkStatus bool) (*http.Response, error) {
	var resp *http.Response
	err := c.policy.Run(ctx, func(attempt int) error {
		r, err := c.once(ctx, method, rawURL, header, body, checkStatus)
		if err != nil {
			c.logRetry(rawURL, attempt, err)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, method, rawURL string, header http.Header, body []byte, checkStatus bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if checkStatus && resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) logRetry(rawURL string, attempt int, err error) {
	if c.policy.ShouldRetry(err, attempt) {
		c.logger.Warn("request timed out, retrying",
			zap.String("url", rawURL), zap.Int("attempt", attempt), zap.Error(err))
	}
}

func isProxyError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "proxyconnect"
}
