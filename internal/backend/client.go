// Package backend talks to the payment backend over HTTP.
//
// The backend wraps every payload in a loosely typed JSON envelope. This package
// owns those shapes; callers map them onto domain types.
package backend

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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/contextkeys"
	"github.com/tmplstore/billing/internal/domain"
)

// ErrMalformedBody is returned when a 2xx response cannot be decoded.
var ErrMalformedBody = errors.New("malformed response body")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Code)
}

// Unauthorized reports whether the credential was rejected.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized
}

// AsStatusError extracts a StatusError from an error chain.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Client is a thin JSON client for the payment backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

// NewClient creates a client for baseURL, e.g. "http://localhost:5000".
func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.WithField("component", "backend"),
	}
}

// BaseURL returns the configured backend host.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    interface{}
	token   string
	headers map[string]string
}

// do performs the request and decodes a 2xx body into out. Transport failures come back
// as domain network errors, non-2xx as *StatusError, undecodable bodies as ErrMalformedBody.
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	httpReq.Header.Set("X-Request-ID", requestID(ctx))
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.Network(err)
	}

	c.log.WithFields(logrus.Fields{
		"method":   req.method,
		"path":     req.path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: messageOf(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// messageOf pulls a human readable message out of an error envelope, if there is one.
func messageOf(raw []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	return env.Error
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextkeys.RequestID).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
