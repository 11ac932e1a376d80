// Package api implements the HTTP client for the backend.
//
// The client covers session CRUD, document submission, task status polling,
// and the question endpoint in both streaming and single-document form.
// Idempotent reads retry with exponential backoff; writes never retry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/filegeek/filegeek-go/auth"
	"github.com/filegeek/filegeek-go/iox"
	"github.com/filegeek/filegeek-go/log"
	"github.com/filegeek/filegeek-go/types"
)

// DefaultTimeout is the per-request timeout for non-streaming calls.
const DefaultTimeout = 30 * time.Second

// DefaultRetries is the default number of retry attempts for idempotent
// requests.
const DefaultRetries = 2

// eventStreamType is the content type of a streaming answer response.
const eventStreamType = "text/event-stream"

// Config configures a Client.
type Config struct {
	// BaseURL is the backend base URL (required), e.g. https://api.filegeek.dev
	BaseURL string
	// Tokens supplies bearer tokens. Defaults to auth.Anonymous.
	Tokens auth.TokenProvider
	// Timeout is the per-request timeout for non-streaming calls
	// (default 30s). Streaming requests are bounded by context only.
	Timeout time.Duration
	// Retries is the retry attempt count for idempotent requests (default 2).
	Retries int
	// Logger is an optional logger. Defaults to no-op.
	Logger *log.Logger
	// HTTPClient overrides the underlying client. Mainly for tests.
	HTTPClient *http.Client
}

// Client is the backend HTTP client. Safe for concurrent use.
type Client struct {
	config Config
	base   *url.URL
	http   *http.Client
	stream *http.Client // no client timeout; streams outlive any fixed bound
	logger *log.Logger
}

// New creates a Client from the given config.
// Returns an error if the base URL is empty or unparseable.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base URL: %w", err)
	}
	if cfg.Tokens == nil {
		cfg.Tokens = auth.Anonymous
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("api: retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	streamClient := &http.Client{Transport: httpClient.Transport}

	return &Client{
		config: cfg,
		base:   base,
		http:   httpClient,
		stream: streamClient,
		logger: cfg.Logger,
	}, nil
}

// AskRequest is the payload of the question endpoint.
type AskRequest struct {
	Question  string `json:"question"`
	DeepThink bool   `json:"deepThink,omitempty"`
	Model     string `json:"model,omitempty"`
	Stream    bool   `json:"stream"`
}

// SubmitRequest registers an uploaded file for indexing.
type SubmitRequest struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileURL  string `json:"file_url"`
}

// SubmitResponse is the document submission outcome. Exactly one of TaskID
// and Document is set: TaskID for asynchronous indexing, Document when the
// server indexed synchronously.
type SubmitResponse struct {
	TaskID   string          `json:"task_id,omitempty"`
	Status   string          `json:"status,omitempty"`
	Document *types.Document `json:"document,omitempty"`
}

// AskStream opens the streaming answer endpoint for a session.
//
// On a streaming response the raw body is returned for frame decoding and
// the caller owns closing it. Some server configurations answer with a
// single JSON document even when streaming was requested; in that case the
// decoded result is returned instead and the body is nil.
func (c *Client) AskStream(ctx context.Context, sessionID string, ask AskRequest) (io.ReadCloser, *types.StreamResult, error) {
	if sessionID == "" {
		return nil, nil, errors.New("api: empty session ID")
	}

	ask.Stream = true
	body, err := json.Marshal(ask)
	if err != nil {
		return nil, nil, fmt.Errorf("api: marshal ask request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("sessions", sessionID, "messages"), bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", eventStreamType)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("api: ask request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer iox.DiscardClose(resp.Body)
		return nil, nil, c.statusError(resp)
	}

	if mediaType(resp) != eventStreamType {
		defer iox.DiscardClose(resp.Body)
		var result types.StreamResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, nil, fmt.Errorf("api: decode non-streaming answer: %w", err)
		}
		result.Done = true
		return nil, &result, nil
	}

	return resp.Body, nil, nil
}

// Ask posts the question without streaming and returns the complete answer.
// This is the fallback path when the streaming endpoint is unavailable.
func (c *Client) Ask(ctx context.Context, sessionID string, ask AskRequest) (*types.StreamResult, error) {
	if sessionID == "" {
		return nil, errors.New("api: empty session ID")
	}

	ask.Stream = false
	var result types.StreamResult
	if err := c.do(ctx, http.MethodPost, c.endpoint("sessions", sessionID, "messages"), ask, &result, false); err != nil {
		return nil, err
	}
	result.Done = true
	return &result, nil
}

// SubmitDocument registers an uploaded file for indexing in a session.
// The server decides between the synchronous and asynchronous path; the
// response carries either the finished document or a task ID to track.
func (c *Client) SubmitDocument(ctx context.Context, sessionID string, in SubmitRequest) (*SubmitResponse, error) {
	if sessionID == "" {
		return nil, errors.New("api: empty session ID")
	}
	if in.FileURL == "" {
		return nil, errors.New("api: submit requires a file URL")
	}

	var out SubmitResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("sessions", sessionID, "documents"), in, &out, false); err != nil {
		return nil, err
	}
	if out.TaskID == "" && out.Document == nil {
		return nil, errors.New("api: submit response carries neither task nor document")
	}
	return &out, nil
}

// TaskStatus polls the status of a background indexing task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*types.TaskStatus, error) {
	if taskID == "" {
		return nil, errors.New("api: empty task ID")
	}

	var out types.TaskStatus
	if err := c.do(ctx, http.MethodGet, c.endpoint("tasks", taskID, "status"), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns all sessions, newest first per server ordering.
func (c *Client) ListSessions(ctx context.Context) ([]types.Session, error) {
	var out []types.Session
	if err := c.do(ctx, http.MethodGet, c.endpoint("sessions"), nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession creates a session with the given title and persona.
func (c *Client) CreateSession(ctx context.Context, title, persona string) (*types.Session, error) {
	in := map[string]string{"title": title}
	if persona != "" {
		in["persona"] = persona
	}

	var out types.Session
	if err := c.do(ctx, http.MethodPost, c.endpoint("sessions"), in, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns one session with its exchanges.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	if sessionID == "" {
		return nil, errors.New("api: empty session ID")
	}

	var out types.Session
	if err := c.do(ctx, http.MethodGet, c.endpoint("sessions", sessionID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession deletes a session and everything in it.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("api: empty session ID")
	}
	return c.do(ctx, http.MethodDelete, c.endpoint("sessions", sessionID), nil, nil, false)
}

// Feedback records a helpfulness rating for an answer message.
func (c *Client) Feedback(ctx context.Context, messageID int64, helpful bool, comment string) error {
	if messageID == 0 {
		return errors.New("api: empty message ID")
	}

	in := map[string]any{"helpful": helpful}
	if comment != "" {
		in["comment"] = comment
	}
	return c.do(ctx, http.MethodPost, c.endpoint("messages", fmt.Sprint(messageID), "feedback"), in, nil, false)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

// --- Internals ---

// endpoint joins path segments onto the base URL, escaping each segment.
func (c *Client) endpoint(segments ...string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + joinEscaped(segments)
	return u.String()
}

func joinEscaped(segments []string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

// do performs one JSON round-trip. Idempotent requests retry on network
// errors and retriable statuses with exponential backoff; writes fail on the
// first error.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any, idempotent bool) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
	}

	attempts := 1
	if idempotent {
		attempts = 1 + c.config.Retries
	}

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("api: context canceled: %w", err)
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("api: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = c.doOnce(ctx, method, endpoint, body, out)
		if lastErr == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(lastErr, &statusErr) && !statusErr.Retriable() {
			return lastErr
		}
	}

	if attempts > 1 {
		return fmt.Errorf("api: failed after %d attempts: %w", attempts, lastErr)
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := c.newRequest(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	if out == nil {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}

	token, err := c.config.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("api: token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// errorBody is the server's error response shape. Some endpoints report
// detail, others error; take whichever is present.
type errorBody struct {
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusError builds a StatusError from a non-2xx response, salvaging the
// server's message when the body is parseable.
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var eb errorBody
	message := ""
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Detail != "" {
			message = eb.Detail
		} else {
			message = eb.Error
		}
	}

	c.logger.Debug("request failed", map[string]any{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	})

	return &StatusError{Code: resp.StatusCode, Message: message}
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}
