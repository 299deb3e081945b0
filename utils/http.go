package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"

	"linkfetch/internal"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	// Timeout bounds a whole request including the body. Zero means none,
	// which is what downloads need.
	Timeout     time.Duration
	ProxyURL    string
	UserAgent   string
	RetryConfig *RetryConfig
}

// HTTPClient is the shared transport of a process: one cookie jar, no
// automatic redirects, fixed browser-like headers and transparent gzip/deflate
// decoding. It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	transport   *http.Transport
	jar         *cookiejar.Jar
	userAgent   string
	retryConfig *RetryConfig
	closeOnce   sync.Once
}

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	client, _ := NewHTTPClientWithConfig(&HTTPClientConfig{})
	return client
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration.
// It only fails when the proxy URL cannot be used.
func NewHTTPClientWithConfig(config *HTTPClientConfig) (*HTTPClient, error) {
	retryConfig := DefaultRetryConfig()
	if config.RetryConfig != nil {
		copied := *config.RetryConfig
		retryConfig = &copied
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = internal.DefaultUserAgent
	}

	transport := &http.Transport{
		// environment proxies are ignored on purpose; only ProxyURL applies
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			return nil, err
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := &http.Client{
		Transport: &decodingTransport{base: transport},
		Jar:       jar,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &HTTPClient{
		client:      client,
		transport:   transport,
		jar:         jar,
		userAgent:   userAgent,
		retryConfig: retryConfig,
	}, nil
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return internal.NewValidationErrorWithValue("proxy", "invalid proxy URL", proxyURL).
			WithContext("error", err.Error())
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return internal.NewValidationErrorWithValue("proxy", "unsupported proxy scheme", parsedURL.Scheme).
			WithSuggestion("Use an http://, https:// or socks5:// proxy URL")
	}

	return nil
}

// SetCookie installs a cookie for the host of rawURL.
func (c *HTTPClient) SetCookie(rawURL string, cookie *http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return internal.NewInvalidURLError(rawURL, "cannot scope cookie to URL")
	}
	c.jar.SetCookies(u, []*http.Cookie{cookie})
	return nil
}

// Cookies returns the cookies the jar would send to rawURL.
func (c *HTTPClient) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// GetCurrentUserAgent returns the current user agent string
func (c *HTTPClient) GetCurrentUserAgent() string {
	return c.userAgent
}

func (c *HTTPClient) newRequest(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, internal.NewInvalidURLError(rawURL, err.Error())
	}

	req.Header.Set("User-Agent", c.GetCurrentUserAgent())
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// Do sends a single request without retrying. Any status code is returned as a
// response; only network failures are errors.
func (c *HTTPClient) Do(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, rawURL, body, headers)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req)
}

func (c *HTTPClient) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	logger := internal.GetLogger()
	logger.LogHTTPRequest(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, internal.NewCancelledError("request")
		}
		return nil, internal.NewTransportError(req.URL.String(), err)
	}

	logger.LogHTTPResponse(resp)
	return resp, nil
}

// GetWithContext performs a GET request, retrying network failures with
// exponential backoff. Non-2xx responses are returned to the caller as-is.
func (c *HTTPClient) GetWithContext(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	return c.executeWithRetryContext(ctx, func() (*http.Response, error) {
		return c.Do(ctx, http.MethodGet, rawURL, nil, headers)
	})
}

// GetString fetches a page body as text. Non-2xx statuses are transport errors.
func (c *HTTPClient) GetString(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	resp, err := c.GetWithContext(ctx, rawURL, headers)
	if err != nil {
		return "", err
	}
	return readText(ctx, rawURL, resp)
}

// PostForm submits an urlencoded form once and returns the body as text.
// POSTs are never retried.
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form map[string]string, referer string) (string, error) {
	values := url.Values{}
	for key, value := range form {
		values.Set(key, value)
	}

	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	}
	if referer != "" {
		headers["Referer"] = referer
	}

	resp, err := c.Do(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()), headers)
	if err != nil {
		return "", err
	}
	return readText(ctx, rawURL, resp)
}

// PeekRedirect issues a HEAD request and returns the Location of a 3xx
// response without following it. Any other status yields "".
func (c *HTTPClient) PeekRedirect(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.executeWithRetryContext(ctx, func() (*http.Response, error) {
		return c.Do(ctx, http.MethodHead, rawURL, nil, nil)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		internal.LogDebug("No redirect from %s (status %d)", rawURL, resp.StatusCode)
		return "", nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", nil
	}
	target, err := resp.Request.URL.Parse(location)
	if err != nil {
		return location, nil
	}
	return target.String(), nil
}

// Close releases pooled connections. Only the first call has an effect.
func (c *HTTPClient) Close() {
	c.closeOnce.Do(func() {
		c.transport.CloseIdleConnections()
	})
}

func readText(ctx context.Context, rawURL string, resp *http.Response) (string, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", internal.NewHTTPStatusError(rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", internal.NewCancelledError("request")
		}
		return "", internal.NewTransportError(rawURL, err)
	}
	return string(data), nil
}

// executeWithRetryContext executes a function with retry logic and context
func (c *HTTPClient) executeWithRetryContext(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.calculateDelay(attempt)
			internal.LogDebug("Retrying request in %v (attempt %d/%d): %v", delay, attempt+1, c.retryConfig.MaxAttempts, lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil, internal.NewCancelledError("request")
				}
				return nil, internal.NewTransportError("", ctx.Err())
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !c.isRetryableError(err) {
			return nil, err
		}
	}

	if lastErr == nil {
		return nil, internal.NewTransportError("", fmt.Errorf("request failed after %d attempts", c.retryConfig.MaxAttempts))
	}
	return nil, lastErr
}

// calculateDelay calculates the delay for the next retry attempt
func (c *HTTPClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.retryConfig.BaseDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))

	jitter := delay * c.retryConfig.JitterPercent * (rand.Float64()*2 - 1)
	delay += jitter

	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.retryConfig.BaseDelay)
	}

	return time.Duration(delay)
}

// isRetryableError reports whether err is a network failure worth repeating.
// Cancellation and deadline expiry never are.
func (c *HTTPClient) isRetryableError(err error) bool {
	if err == nil || internal.IsCancelled(err) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var linkErr *internal.LinkError
	if errors.As(err, &linkErr) && !linkErr.IsRetryable() {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"temporary failure",
		"unexpected eof",
	}

	for _, retryableErr := range retryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}

	return false
}
