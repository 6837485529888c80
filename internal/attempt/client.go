// Package attempt is the HTTP and websocket client a proctor.Session uses to
// talk to the quizguard server.
package attempt

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
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/proctor"
	"github.com/stemsi/quizguard/internal/response"
)

var (
	_ proctor.Remote     = (*Client)(nil)
	_ proctor.AnswerSink = (*Autosaver)(nil)
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Code       response.ErrCode
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to one attempt, identified by its invitation token.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   zerolog.Logger

	mu        sync.RWMutex
	attemptID string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	c := &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "attempt_client").Logger()
	return c, nil
}

// AttemptID returns the attempt token learned from Load or Start.
func (c *Client) AttemptID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attemptID
}

func (c *Client) setAttemptID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.attemptID = id
	c.mu.Unlock()
}

// Load fetches the attempt view for the invitation.
func (c *Client) Load(ctx context.Context) (*model.AttemptView, error) {
	var view model.AttemptView
	if err := c.do(ctx, http.MethodGet, "/api/v1/attempt/"+url.PathEscape(c.token), nil, &view); err != nil {
		return nil, err
	}
	c.setAttemptID(view.AttemptID)
	return &view, nil
}

// Start creates the attempt. Any 4xx is reported as a *proctor.ValidationError.
func (c *Client) Start(ctx context.Context, info model.StudentInfo) (*model.StartAttemptResponse, error) {
	req := model.StartAttemptRequest{Token: c.token, StudentInfo: info}
	var resp model.StartAttemptResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/attempt/start", req, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			fields := apiErr.Fields
			if len(fields) == 0 {
				fields = map[string]string{"detail": apiErr.Message}
			}
			return nil, &proctor.ValidationError{Fields: fields}
		}
		return nil, err
	}
	c.setAttemptID(resp.AttemptID)
	return &resp, nil
}

// Flag records a violation. Failures are logged and dropped.
func (c *Client) Flag(ctx context.Context, reason string) {
	req := model.FlagRequest{Token: c.token, Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/api/v1/attempt/flag", req, nil); err != nil {
		c.log.Warn().Err(err).Str("reason", reason).Msg("Flag not recorded")
	}
}

// Submit sends the final answers. Failures are wrapped in
// *proctor.SubmissionError.
func (c *Client) Submit(ctx context.Context, attemptID string, answers map[int]string) (*model.SubmitResult, error) {
	req := model.SubmitRequest{AttemptID: attemptID, Answers: answers}
	var res model.SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/attempt/submit", req, &res); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &proctor.SubmissionError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, &proctor.SubmissionError{Err: err}
	}
	return &res, nil
}

// do sends body as JSON and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env response.Envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("request_id", env.Metadata.RequestID).
			Msg("Request rejected")
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// streamURL is the autosave websocket endpoint for this invitation.
func (c *Client) streamURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/v1/attempt/" + url.PathEscape(c.token) + "/stream"
	return u.String()
}
