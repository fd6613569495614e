package comfy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/graph"
)

// Client drives a ComfyUI-compatible engine through one generation round
// trip: queue a compiled workflow, track it to completion, download the
// produced image.
//
// Each Client carries its own random client id, set once at construction.
// The engine scopes push-channel events by this id, which is how a client
// tells its own submissions apart from other clients sharing the engine.
type Client struct {
	baseURL  string
	wsURL    string
	clientID string

	http   *http.Client
	dialer *websocket.Dialer

	recvWait     time.Duration // bounded wait per push-channel receive
	pollInterval time.Duration // cadence of the pure-polling fallback
	saveNodes    []string      // save-node ids the artifact locator checks
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for engine calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRecvWait sets the bounded per-receive wait on the push channel.
// When it elapses without a message the tracker polls engine state once
// without abandoning the channel.
func WithRecvWait(d time.Duration) Option {
	return func(c *Client) { c.recvWait = d }
}

// WithPollInterval sets the cadence of the pure-polling fallback.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithSaveNodes overrides the save-node ids checked by the artifact
// locator, in priority order.
func WithSaveNodes(ids ...string) Option {
	return func(c *Client) { c.saveNodes = ids }
}

// NewClient creates a client for the engine at addr (host:port, scheme
// optional).
func NewClient(addr string, opts ...Option) *Client {
	host := strings.TrimPrefix(strings.TrimPrefix(addr, "http://"), "https://")
	c := &Client{
		baseURL:      "http://" + host,
		wsURL:        "ws://" + host + "/ws",
		clientID:     uuid.NewString(),
		http:         &http.Client{Timeout: 30 * time.Second},
		dialer:       websocket.DefaultDialer,
		recvWait:     10 * time.Second,
		pollInterval: 2 * time.Second,
		saveNodes:    defaultSaveNodes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the per-instance session identifier.
func (c *Client) ClientID() string { return c.clientID }

// Generate runs one compiled workflow end to end and returns the produced
// image base64-encoded. It fails with *SubmissionError, *ExecutionError,
// ErrTimeout or ErrNoArtifact; push-channel trouble is absorbed by the
// polling fallback and never surfaces.
func (c *Client) Generate(ctx context.Context, spec graph.Spec, timeout time.Duration) (string, error) {
	promptID, err := c.Queue(ctx, spec)
	if err != nil {
		return "", err
	}
	slog.Info("comfy: workflow queued", "prompt_id", promptID)

	result, err := c.waitForCompletion(ctx, promptID, timeout)
	if err != nil {
		return "", err
	}

	ref, err := LocateImage(result.Outputs, c.saveNodes)
	if err != nil {
		return "", err
	}
	slog.Info("comfy: downloading image", "filename", ref.Filename, "subfolder", ref.Subfolder, "type", ref.Type)

	data, err := c.Download(ctx, ref)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

type queueRequest struct {
	Prompt   graph.Spec `json:"prompt"`
	ClientID string     `json:"client_id"`
}

type queueResponse struct {
	PromptID string `json:"prompt_id"`
}

// Queue submits a compiled workflow to the engine and returns the opaque
// prompt id the engine assigned.
func (c *Client) Queue(ctx context.Context, spec graph.Spec) (string, error) {
	body, err := json.Marshal(queueRequest{Prompt: spec, ClientID: c.clientID})
	if err != nil {
		return "", fmt.Errorf("comfy: marshal queue request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("comfy: create queue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("comfy: queue request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("comfy: read queue response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var qr queueResponse
	if err := json.Unmarshal(respBody, &qr); err != nil {
		return "", fmt.Errorf("comfy: unmarshal queue response: %w", err)
	}
	if qr.PromptID == "" {
		return "", fmt.Errorf("comfy: queue response missing prompt_id")
	}
	return qr.PromptID, nil
}

// Result is the completion record for one queued workflow.
type Result struct {
	PromptID string
	Status   *Status
	Outputs  Outputs
}

// Status is the engine's own verdict on a history record.
type Status struct {
	StatusStr string            `json:"status_str"`
	Completed bool              `json:"completed"`
	Messages  []json.RawMessage `json:"messages"`
}

// failure converts an error-status record into an *ExecutionError.
func (r *Result) failure() *ExecutionError {
	if r.Status == nil || r.Status.StatusStr != "error" {
		return nil
	}
	msgs := make([]string, 0, len(r.Status.Messages))
	for _, m := range r.Status.Messages {
		msgs = append(msgs, string(m))
	}
	if len(msgs) == 0 {
		msgs = []string{"engine reported error without detail"}
	}
	return &ExecutionError{Messages: msgs}
}

type historyRecord struct {
	Status  *Status `json:"status"`
	Outputs Outputs `json:"outputs"`
}

// history pulls the authoritative completion record for a prompt id. The
// boolean reports whether the record exists yet; a non-200 response is
// treated as not-yet-written, not an error.
func (c *Client) history(ctx context.Context, promptID string) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, false, fmt.Errorf("comfy: create history request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("comfy: history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}

	var records map[string]historyRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, false, fmt.Errorf("comfy: unmarshal history: %w", err)
	}
	rec, ok := records[promptID]
	if !ok {
		return nil, false, nil
	}
	return &Result{PromptID: promptID, Status: rec.Status, Outputs: rec.Outputs}, true, nil
}

type queueStatus struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

// queuedIDs returns the prompt ids currently running or pending on the
// engine. Queue entries are heterogeneous tuples; the prompt id sits in
// the second position.
func (c *Client) queuedIDs(ctx context.Context) ([]string, error) {
	qs, err := c.queueStatus(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range append(qs.Running, qs.Pending...) {
		var tuple []json.RawMessage
		if err := json.Unmarshal(entry, &tuple); err != nil || len(tuple) < 2 {
			continue
		}
		var id string
		if err := json.Unmarshal(tuple[1], &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) queueStatus(ctx context.Context) (*queueStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: create queue status request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: queue status request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("comfy: queue status returned %d", resp.StatusCode)
	}
	var qs queueStatus
	if err := json.NewDecoder(resp.Body).Decode(&qs); err != nil {
		return nil, fmt.Errorf("comfy: unmarshal queue status: %w", err)
	}
	return &qs, nil
}

// QueueInfo reports current engine queue depth.
type QueueInfo struct {
	Running int `json:"running"`
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

// GetQueueInfo returns the engine's current queue depth.
func (c *Client) GetQueueInfo(ctx context.Context) (*QueueInfo, error) {
	qs, err := c.queueStatus(ctx)
	if err != nil {
		return nil, err
	}
	info := &QueueInfo{Running: len(qs.Running), Pending: len(qs.Pending)}
	info.Total = info.Running + info.Pending
	return info, nil
}

// Health reports whether the engine answers its queue endpoint.
func (c *Client) Health(ctx context.Context) bool {
	_, err := c.queueStatus(ctx)
	return err == nil
}

// Download fetches the raw bytes of an engine-stored image.
func (c *Client) Download(ctx context.Context, ref ImageRef) ([]byte, error) {
	if ref.Filename == "" {
		return nil, fmt.Errorf("%w: descriptor has no filename", ErrNoArtifact)
	}
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("type", ref.Type)
	if ref.Subfolder != "" {
		q.Set("subfolder", ref.Subfolder)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: create view request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: view request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("comfy: view returned %d for %s", resp.StatusCode, ref.Filename)
	}
	return io.ReadAll(resp.Body)
}
