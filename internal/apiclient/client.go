// Package apiclient is the single egress point for REST calls. It attaches the
// stored bearer token to every request and recovers from access token expiry
// with at most one refresh-and-replay per request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
)

// RefreshPath is the fixed token refresh endpoint.
const RefreshPath = "/accounts/refresh-token"

const (
	// RefreshCookie carries the refresh token on the refresh call.
	RefreshCookie = "refresh_token"
	// HeaderRefreshToken duplicates the refresh token for non-cookie backends.
	HeaderRefreshToken = "X-Refresh-Token"
	// HeaderRequestID correlates client and server logs.
	HeaderRequestID = "X-Request-ID"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
)

// Client performs authenticated JSON calls against one API base URL.
type Client struct {
	baseURL   string
	hc        *http.Client
	creds     repository.CredentialRepository
	log       *zap.Logger
	metrics   *metrics
	reg       prometheus.Registerer
	coalesce  bool
	group     singleflight.Group
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithTimeout sets the per-attempt timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithLogger sets the logger; only request metadata is logged.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithMetrics registers client counters on reg.
func WithMetrics(reg prometheus.Registerer) Option { return func(c *Client) { c.reg = reg } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// WithoutRefreshCoalescing makes every request that sees a 401 run its own
// refresh call, even when others are refreshing concurrently.
func WithoutRefreshCoalescing() Option { return func(c *Client) { c.coalesce = false } }

// New constructs a Client for baseURL backed by creds.
func New(baseURL string, creds repository.CredentialRepository, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("base url %q: want http(s)://host", baseURL)
	}
	if creds == nil {
		return nil, errors.New("nil credential repository")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		creds:     creds,
		log:       zap.NewNop(),
		coalesce:  true,
		userAgent: "blindbox-client",
	}
	for _, o := range opts {
		o(c)
	}
	c.metrics = newMetrics(c.reg)
	return c, nil
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends req with the stored access token (if any) and decodes a 2xx JSON
// body into out. An empty or null body leaves out untouched.
//
// A 401 on the first attempt triggers one refresh cycle and one replay. Any
// other failure status is returned as *errs.HTTPError without retry.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	t, err := c.creds.Get(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	return c.do(ctx, req, t.AccessToken, out)
}

func (c *Client) do(ctx context.Context, req Request, access string, out any) error {
	status, body, err := c.send(ctx, req, access)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && !req.Retried() {
		fresh, err := c.refresh(ctx, access)
		if err != nil {
			return err
		}
		return c.do(ctx, req.withRetry(), fresh, out)
	}
	if status < 200 || status > 299 {
		return newHTTPError(req.Method, req.Path, status, body)
	}
	return decodeBody(req, body, out)
}

func (c *Client) send(ctx context.Context, req Request, access string) (int, []byte, error) {
	var rd io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
		rd = bytes.NewReader(b)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.url(c.baseURL), rd)
	if err != nil {
		return 0, nil, err
	}
	hreq.Header.Set("Accept", "application/json")
	if rd != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		hreq.Header.Set("Authorization", "Bearer "+access)
	}
	return c.roundTrip(hreq, req.Retried())
}

// roundTrip executes hreq and reads the whole body; it never inspects auth.
func (c *Client) roundTrip(hreq *http.Request, retried bool) (int, []byte, error) {
	reqID := newRequestID()
	if reqID != "" {
		hreq.Header.Set(HeaderRequestID, reqID)
	}
	if c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.hc.Do(hreq)
	if err != nil {
		c.metrics.request(hreq.Method, 0)
		c.log.Warn("api transport error",
			zap.String("method", hreq.Method),
			zap.String("path", hreq.URL.Path),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return 0, nil, fmt.Errorf("%s %s: %w", hreq.Method, hreq.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	c.metrics.request(hreq.Method, resp.StatusCode)
	c.log.Debug("api",
		zap.String("method", hreq.Method),
		zap.String("path", hreq.URL.Path),
		zap.Int("code", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
		zap.String("request_id", reqID),
		zap.Bool("retried", retried),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s: %w", hreq.Method, hreq.URL.Path, err)
	}
	return resp.StatusCode, body, nil
}

// refresh returns a usable access token after a 401 seen with stale.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	if !c.coalesce {
		return c.refreshOnce(ctx)
	}
	// Requests that saw the same stale token share one refresh. The shared call
	// must not die with whichever caller happened to start it.
	ch := c.group.DoChan("refresh:"+stale, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		t, err := c.creds.Get(sctx)
		if err == nil && t.AccessToken != "" && t.AccessToken != stale {
			c.metrics.refresh(refreshReused)
			return t.AccessToken, nil
		}
		return c.refreshOnce(sctx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// refreshOnce performs one call to the refresh endpoint. On any failure both
// stored tokens are cleared and the result matches errs.ErrAuthFailed.
func (c *Client) refreshOnce(ctx context.Context) (string, error) {
	t, err := c.creds.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: load credentials: %w", errs.ErrAuthFailed, err)
	}
	if !t.HasRefresh() {
		c.metrics.refresh(refreshNoRefreshToken)
		c.clearCredentials(ctx)
		return "", fmt.Errorf("%w: no refresh token stored", errs.ErrAuthFailed)
	}

	pair, err := c.callRefresh(ctx, t.RefreshToken)
	if err != nil {
		c.metrics.refresh(refreshFailed)
		c.log.Warn("token refresh failed", zap.Error(err))
		c.clearCredentials(ctx)
		return "", fmt.Errorf("%w: refresh: %w", errs.ErrAuthFailed, err)
	}

	if pair.RefreshToken != "" && pair.RefreshToken != t.RefreshToken {
		err = c.creds.Save(ctx, pair)
	} else {
		err = c.creds.SetAccessToken(ctx, pair.AccessToken)
	}
	if err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	c.metrics.refresh(refreshOK)
	c.log.Info("access token refreshed")
	return pair.AccessToken, nil
}

func (c *Client) callRefresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, nil)
	if err != nil {
		return model.Tokens{}, err
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set(HeaderRefreshToken, refreshToken)
	hreq.AddCookie(&http.Cookie{Name: RefreshCookie, Value: refreshToken})

	status, body, err := c.roundTrip(hreq, false)
	if err != nil {
		return model.Tokens{}, err
	}
	if status < 200 || status > 299 {
		return model.Tokens{}, newHTTPError(http.MethodPost, RefreshPath, status, body)
	}
	var out model.Tokens
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return model.Tokens{}, fmt.Errorf("%w: refresh response without accessToken", errs.ErrContractViolation)
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

func (c *Client) clearCredentials(ctx context.Context) {
	if err := c.creds.Clear(ctx); err != nil {
		c.log.Error("clear credentials", zap.Error(err))
	}
}

func decodeBody(req Request, body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if out == nil || len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", errs.ErrContractViolation, req.Method, req.Path, err)
	}
	return nil
}

// newHTTPError surfaces the server's message ("message" or "error" field) when present.
func newHTTPError(method, path string, status int, body []byte) *errs.HTTPError {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		msg = payload.Message
		if msg == "" {
			msg = payload.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &errs.HTTPError{Status: status, Message: msg, Method: method, Path: path}
}

func newRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}
