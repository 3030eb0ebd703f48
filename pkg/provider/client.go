package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	errs "github.com/nitrodev1/telegram-gift-parser/pkg/errors"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ratelimit"
)

// ErrPasswordNeeded is returned by SignIn when the account has two-factor
// authentication enabled and CheckPassword must follow
var ErrPasswordNeeded = errors.New("two-factor password required")

// passwordNeededCode is the gateway description for a 2FA-protected sign-in
const passwordNeededCode = "SESSION_PASSWORD_NEEDED"

// Options configures a gateway Client
type Options struct {
	BaseURL      string
	Channel      string
	APIID        string
	APIHash      string
	SessionToken string
	Timeout      time.Duration
	// Limiter throttles every request; nil means unthrottled
	Limiter *ratelimit.RequestLimiter
}

// Client talks to the identity provider gateway
type Client struct {
	httpClient *http.Client
	baseURL    string
	channel    string
	limiter    *ratelimit.RequestLimiter
	logger     logger.Logger

	mu      sync.RWMutex
	headers map[string]string
}

// NewClient creates a new gateway client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAPIBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		channel:    opts.Channel,
		limiter:    opts.Limiter,
		logger:     log.WithField("component", "provider"),
		headers: map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
			"X-Api-Id":     opts.APIID,
			"X-Api-Hash":   opts.APIHash,
		},
	}
	if opts.SessionToken != "" {
		c.SetSessionToken(opts.SessionToken)
	}
	return c
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetSessionToken installs the bearer token used on every request
func (c *Client) SetSessionToken(token string) {
	c.SetHeader("Authorization", "Bearer "+token)
}

// Connect checks that the gateway is reachable. An unauthorized answer still
// counts as connected.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.Me(ctx)
	if err == nil || errs.Is(err, errs.ErrorTypeAuth) {
		return nil
	}
	if errs.Is(err, errs.ErrorTypeNetwork) {
		return errs.Wrap(errs.ErrorTypeConnection, err, "provider gateway unreachable")
	}
	return err
}

// Authorized reports whether the current session is signed in
func (c *Client) Authorized(ctx context.Context) (bool, error) {
	_, err := c.Me(ctx)
	switch {
	case err == nil:
		return true, nil
	case errs.Is(err, errs.ErrorTypeAuth):
		return false, nil
	default:
		return false, err
	}
}

// Me returns the identity of the signed-in account
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var identity Identity
	if err := c.call(ctx, http.MethodGet, MeURL(c.baseURL), nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// SendCode asks the provider to deliver a login code to phone
func (c *Client) SendCode(ctx context.Context, phone string) error {
	c.logger.InfoWithFields("requesting login code", map[string]interface{}{
		"phone": maskPhone(phone),
	})
	return c.call(ctx, http.MethodPost, SendCodeURL(c.baseURL), map[string]string{"phone": phone}, nil)
}

// SignIn exchanges a login code for a session token. It returns
// ErrPasswordNeeded when a two-factor password is required.
func (c *Client) SignIn(ctx context.Context, phone, code string) (string, error) {
	var result sessionResult
	err := c.call(ctx, http.MethodPost, SignInURL(c.baseURL), map[string]string{
		"phone": phone,
		"code":  code,
	}, &result)
	if err != nil {
		var apiErr *errs.Error
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, passwordNeededCode) {
			return "", ErrPasswordNeeded
		}
		return "", err
	}
	c.SetSessionToken(result.SessionToken)
	return result.SessionToken, nil
}

// CheckPassword completes a two-factor sign-in
func (c *Client) CheckPassword(ctx context.Context, password string) (string, error) {
	var result sessionResult
	err := c.call(ctx, http.MethodPost, CheckPasswordURL(c.baseURL), map[string]string{
		"password": password,
	}, &result)
	if err != nil {
		return "", err
	}
	c.SetSessionToken(result.SessionToken)
	return result.SessionToken, nil
}

// ResolveStructured fetches the structured message for a gift ID
func (c *Client) ResolveStructured(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	if err := c.call(ctx, http.MethodGet, MessageURL(c.baseURL, c.channel, id), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Disconnect releases idle connections
func (c *Client) Disconnect(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// call performs one gateway request and decodes the envelope result into target
func (c *Client) call(ctx context.Context, method, url string, body interface{}, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
			Cause:   err,
		}
	}

	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode == http.StatusOK {
			c.logger.ErrorWithFields("failed to parse gateway response", map[string]interface{}{
				"url":          url,
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": preview(data),
			})
			return &errs.Error{
				Type:    errs.ErrorTypeParsing,
				Message: fmt.Sprintf("failed to parse JSON: %v", err),
				Code:    resp.StatusCode,
				Cause:   err,
			}
		}
	}

	if err := c.checkResponseStatus(resp, &env); err != nil {
		return err
	}

	if target == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, target); err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse result: %v", err),
			Code:    resp.StatusCode,
			Cause:   err,
		}
	}
	return nil
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	for key, value := range c.headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
	c.mu.RUnlock()

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
			Cause:   err,
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus maps HTTP status and envelope errors to typed errors
func (c *Client) checkResponseStatus(resp *http.Response, env *envelope) error {
	code := resp.StatusCode
	if code == http.StatusOK && !env.OK && env.ErrorCode != 0 {
		code = env.ErrorCode
	}

	message := env.Description
	fields := map[string]interface{}{
		"status": code,
		"url":    resp.Request.URL.String(),
	}

	switch {
	case code == http.StatusOK && env.OK:
		return nil
	case code == http.StatusOK:
		// ok:false without an error code means the record does not exist
		if message == "" {
			message = "empty result"
		}
		return errs.New(errs.ErrorTypeNotFound, code, message)
	case code == http.StatusTooManyRequests:
		wait := retryAfter(resp.Header.Get("Retry-After"), env)
		fields["retry_after"] = wait
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return errs.RateLimited(wait, code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.logger.DebugWithFields("authentication error", fields)
		return errs.New(errs.ErrorTypeAuth, code, orDefault(message, "authentication required"))
	case code == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, code, orDefault(message, "resource not found"))
	case errs.IsRetryableStatusCode(code):
		c.logger.WarnWithFields("transient gateway error", fields)
		return errs.New(errs.ErrorTypeServerError, code, orDefault(message, fmt.Sprintf("gateway returned %d", code)))
	default:
		c.logger.WarnWithFields("unexpected API error", fields)
		return errs.New(errs.ErrorTypeUnknown, code, orDefault(message, fmt.Sprintf("unexpected status code: %d", code)))
	}
}

// retryAfter reads the wait from the Retry-After header or the envelope
func retryAfter(header string, env *envelope) time.Duration {
	if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
		return time.Duration(env.Parameters.RetryAfter) * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func preview(body []byte) string {
	p := string(body)
	if len(p) > 200 {
		p = p[:200] + "..."
	}
	return p
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
