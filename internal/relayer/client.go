package relayer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"healthvault/internal/httpx"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = httpx.RequestIDHeader

// RetryConfig bounds retries of safe requests.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetry is used when NewClient is given a zero RetryConfig.
var DefaultRetry = RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// ErrorBody is the JSON error envelope the service returns.
type ErrorBody struct {
	RequestID string `json:"request_id"`
	Error     struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a small JSON-over-HTTP client.
type Client struct {
	Base  string
	HTTP  *http.Client
	Retry RetryConfig
	log   *logrus.Logger
}

// NewClient returns a client for base. A nil httpClient uses
// http.DefaultClient; a nil logger discards output.
func NewClient(base string, httpClient *http.Client, log *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Client{
		Base:  strings.TrimRight(base, "/"),
		HTTP:  httpClient,
		Retry: DefaultRetry,
		log:   log,
	}
}

// Post sends in as JSON and decodes the answer into out (if non-nil).
// Only retryable calls are repeated after a transient failure.
func (c *Client) Post(ctx context.Context, path string, in, out any, retryable bool) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, body, out, retryable)
}

// GetJSON fetches path and decodes the answer into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any, retryable bool) error {
	attempts := 1
	if retryable && c.Retry.MaxAttempts > 1 {
		attempts = c.Retry.MaxAttempts
	}
	reqID := httpx.NewRequestID()

	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.Base+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set(RequestIDHeader, reqID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil || attempt == attempts {
				return err
			}
			c.backoff(ctx, method, path, attempt, "", err)
			continue
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode/100 == 2 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, out)
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts {
			c.backoff(ctx, method, path, attempt, resp.Header.Get("Retry-After"),
				fmt.Errorf("status %d", resp.StatusCode))
			continue
		}
		return parseStatusError(method, path, resp.StatusCode, respBody)
	}
	return errors.New("unreachable")
}

func shouldRetryStatus(status int) bool {
	return status == 429 || status == 502 || status == 503 || status == 504
}

// backoff sleeps before the next attempt, honouring Retry-After and ctx.
func (c *Client) backoff(ctx context.Context, method, path string, attempt int, retryAfter string, cause error) {
	d := backoffDelay(c.Retry, attempt, retryAfter)
	c.log.WithFields(logrus.Fields{
		"method":  method,
		"path":    path,
		"attempt": attempt,
		"delay":   d,
	}).WithError(cause).Debug("retrying request")

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func backoffDelay(cfg RetryConfig, attempt int, retryAfter string) time.Duration {
	if s := strings.TrimSpace(retryAfter); s != "" {
		if sec, err := strconv.Atoi(s); err == nil {
			d := time.Duration(sec) * time.Second
			if d > cfg.MaxDelay {
				d = cfg.MaxDelay
			}
			return d
		}
	}
	max := cfg.BaseDelay << (attempt - 1)
	if max > cfg.MaxDelay || max <= 0 {
		max = cfg.MaxDelay
	}
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return max
	}
	return time.Duration(n.Int64())
}

func parseStatusError(method, path string, status int, body []byte) error {
	out := &StatusError{Method: method, Path: path, StatusCode: status}
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		out.Code = eb.Error.Code
		out.Message = eb.Error.Message
		out.RequestID = eb.RequestID
		return out
	}
	out.Message = strings.TrimSpace(string(body))
	return out
}
