package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskhub/pkg/circuitbreaker"
	"taskhub/pkg/logger"
	"taskhub/pkg/metrics"
	"taskhub/pkg/trace"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Client talks to the external task API. One Client belongs to one session:
// it owns the cookie jar and the mirrored bearer token.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithBreaker guards every call with a shared circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithTransport replaces the underlying RoundTripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

func New(baseURL string, timeout time.Duration, log *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url must be absolute: %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		logger: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Cookies returns the session cookies the API has set so far.
func (c *Client) Cookies() []*http.Cookie {
	return c.httpClient.Jar.Cookies(c.baseURL)
}

// SetCookies seeds the jar, e.g. when a persisted session is restored.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.httpClient.Jar.SetCookies(c.baseURL, cookies)
}

// Reset drops the token and expires every cookie in the jar.
func (c *Client) Reset() {
	c.SetToken("")
	var expired []*http.Cookie
	for _, ck := range c.Cookies() {
		expired = append(expired, &http.Cookie{Name: ck.Name, Value: "", Path: "/", MaxAge: -1})
	}
	if len(expired) > 0 {
		c.httpClient.Jar.SetCookies(c.baseURL, expired)
	}
}

// envelope is the error body shape: {"error": "..."}.
type envelope struct {
	Error string `json:"error"`
}

// do runs one request. endpoint is the metrics label, fallback the message
// used when the API gives none. There is no retry.
func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any, fallback string) error {
	start := time.Now()
	call := func() error {
		return c.roundTrip(ctx, method, path, in, out, fallback)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteClassified(call, countsAsFailure)
		if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
			err = &Error{Message: fallback, Err: err}
		}
	} else {
		err = call()
	}

	status := "ok"
	if err != nil {
		status = strconv.Itoa(StatusOf(err))
	}
	metrics.RecordAPICallLatency(endpoint, status, time.Since(start))

	if err != nil {
		logger.WithTrace(ctx, c.logger).Debug("API call failed",
			zap.String("endpoint", endpoint),
			zap.String("method", method),
			zap.Int("status", StatusOf(err)),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any, fallback string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Message: fallback, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return &Error{Message: fallback, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName(), traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: fallback, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: fallback, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fallback
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error != "" {
			msg = env.Error
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: fallback, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
