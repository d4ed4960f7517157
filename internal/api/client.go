// Package api talks to the Packt storefront REST API: session tokens, the
// owned-product catalog and per-product file formats.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/packtdl/packt-dl/internal/config"
	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/http"
	"github.com/packtdl/packt-dl/internal/logging"
	"github.com/packtdl/packt-dl/internal/models"
	"github.com/packtdl/packt-dl/internal/ratelimit"
)

// retryLogger routes retryablehttp messages into the run logger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// Client is the storefront API client. It owns the account session.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	limiter    *ratelimit.RateLimiter
	logger     *logging.Logger
	session    *Session
}

// NewClient creates a client for cfg's account. Call Session().Login before
// any catalog request.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, config.ErrMissingAPIBaseURL
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	httpClient, err := http.ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		limiter: ratelimit.NewAPIRateLimiter(logger),
		logger:  logger,
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = &retryLogger{logger: logger}
	retryClient.CheckRetry = c.checkRetry
	// Hand the last response back instead of an opaque "giving up" error so
	// callers can still tell 401 from 404 from 5xx.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c.httpClient = retryClient.StandardClient()
	c.session = newSession(cfg.Email, cfg.Password, cfg.RefreshAfter, c.requestToken, logger)
	return c, nil
}

// Session returns the account session.
func (c *Client) Session() *Session {
	return c.session
}

// checkRetry retries transport errors, 429 and 5xx; 429 also throttles every
// following request.
func (c *Client) checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == nethttp.StatusTooManyRequests {
		c.limiter.Drain()
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			c.limiter.SetCooldown(time.Duration(secs) * time.Second)
		}
		c.logger.Warn().Str("url", resp.Request.URL.Path).Msg("throttled by storefront API")
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// doRequest performs one rate-limited request. authorized adds the session
// bearer token.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, authorized bool) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	url := c.baseURL + path
	req, err := nethttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", constants.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		c.session.Apply(req)
	}

	c.logger.Debug().Str("method", method).Str("url", url).Msg("API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// doAuthorized runs an authenticated GET. The session is checked first; a 401
// triggers one refresh and one retry, after which the response is returned
// whatever its status.
func (c *Client) doAuthorized(ctx context.Context, path string) (*nethttp.Response, error) {
	if err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}
	_, gen := c.session.current()

	resp, err := c.doRequest(ctx, nethttp.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != nethttp.StatusUnauthorized {
		return resp, nil
	}
	drainAndClose(resp)

	c.logger.Debug().Str("path", path).Msg("401 received, refreshing session")
	if err := c.session.refreshFrom(ctx, gen); err != nil {
		return nil, err
	}
	return c.doRequest(ctx, nethttp.MethodGet, path, nil, true)
}

// requestToken exchanges credentials for an access token.
func (c *Client) requestToken(ctx context.Context, username, password string) (string, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodPost, constants.AuthEndpoint,
		models.TokenRequest{Username: username, Password: password}, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, readErrorBody(resp))
	}

	var tr models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: failed to decode token response: %v", ErrAuthFailed, err)
	}
	if tr.Data.Access == "" {
		return "", fmt.Errorf("%w: token response has no access token", ErrAuthFailed)
	}
	return tr.Data.Access, nil
}

func readErrorBody(resp *nethttp.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(body))
}

func drainAndClose(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
