// Package agentkit is a Go client for the agentd HTTP API. It drives the
// agent through /api/chat and decodes the resulting event stream.
package agentkit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout applies to non-streaming calls made by clients created
// without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// maxFrameLine bounds a single data line of the event stream.
const maxFrameLine = 1 << 20

// Event names emitted by the relay.
const (
	EventInit      = "init"
	EventAgent     = "agent"
	EventTools     = "tools"
	EventError     = "error"
	EventCompleted = "completed"
)

// ErrIncompleteStream is returned when the server closes the stream before
// sending the completed event.
var ErrIncompleteStream = errors.New("agentkit: stream ended before completion")

// Event is one decoded frame of the chat stream.
type Event struct {
	Name string
	Data string
}

// Run mirrors one entry returned by /api/runs.
type Run struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Instruction string    `json:"instruction"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Frames      int       `json:"frames"`
	AgentSteps  int       `json:"agent_steps"`
	ToolSteps   int       `json:"tool_steps"`
	LastMessage string    `json:"last_message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// APIError represents a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("agentd api error (%d): %s", e.StatusCode, e.Message)
}

// Client wraps the HTTP interactions with agentd.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	streamer   *http.Client
}

// NewClient instantiates a client for the agentd API. When httpClient is nil,
// a default client with DefaultHTTPTimeout is used for plain calls while
// streams run without a client timeout and rely on ctx instead.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	streamer := httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
		streamer = &http.Client{}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, streamer: streamer}, nil
}

// Chat posts instruction and calls handle for every event until the completed
// event arrives. An empty instruction lets the server use its default one.
// Returning an error from handle closes the stream, which cancels the run on
// the server, and that error is returned.
func (c *Client) Chat(ctx context.Context, instruction string, handle func(Event) error) error {
	body, err := json.Marshal(map[string]string{"instruction": instruction})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamer.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	return readStream(resp.Body, handle)
}

// Runs lists the most recent runs recorded by the server.
func (c *Client) Runs(ctx context.Context, limit int) ([]Run, error) {
	endpoint := "/api/runs"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var runs []Run
	if err := c.do(req, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Healthy reports whether /healthz answers with 200.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// readStream decodes frames separated by blank lines. Data payloads are JSON
// strings; anything else is passed through verbatim.
func readStream(r io.Reader, handle func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLine)

	var (
		current Event
		hasData bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !hasData {
				continue
			}
			if err := handle(current); err != nil {
				return err
			}
			if current.Name == EventCompleted {
				return nil
			}
			current, hasData = Event{}, false
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			current.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.Data = decodeData(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			hasData = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return ErrIncompleteStream
}

func decodeData(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return raw
	}
	return s
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rawPath, rawQuery, _ := strings.Cut(endpoint, "?")
	rel := &url.URL{Path: path.Join(c.baseURL.Path, rawPath), RawQuery: rawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
