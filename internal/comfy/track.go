package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// trackState is the lifecycle of one queued workflow as seen by the
// tracker. The push path and the polling fallback both funnel into the
// same terminal states.
type trackState int

const (
	stateAwaitingPush trackState = iota // listening on the push channel
	stateResolving                      // push said done; confirming against history
	statePolling                        // push channel unusable; pulling engine state
	stateResolved                       // success, result payload in hand
	stateFailed                         // engine reported an execution error
	stateTimedOut                       // budget exhausted
)

func (s trackState) String() string {
	switch s {
	case stateAwaitingPush:
		return "awaiting_push"
	case stateResolving:
		return "resolving"
	case statePolling:
		return "polling"
	case stateResolved:
		return "resolved"
	case stateFailed:
		return "failed"
	case stateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// pushEvent is one inbound push-channel message. Types other than
// "executed" and "execution_error" are progress noise and ignored.
type pushEvent struct {
	Type string `json:"type"`
	Data struct {
		PromptID         string  `json:"prompt_id"`
		Output           Outputs `json:"output"`
		ExceptionMessage string  `json:"exception_message"`
		NodeType         string  `json:"node_type"`
	} `json:"data"`
}

// tracker follows one queued workflow to a terminal state.
type tracker struct {
	client   *Client
	promptID string
	deadline time.Time

	state   trackState
	conn    *websocket.Conn
	msgs    <-chan []byte
	result  *Result
	failure *ExecutionError
}

// waitForCompletion tracks promptID until the engine resolves it, fails
// it, or the timeout budget runs out.
func (c *Client) waitForCompletion(ctx context.Context, promptID string, timeout time.Duration) (*Result, error) {
	t := &tracker{
		client:   c,
		promptID: promptID,
		deadline: time.Now().Add(timeout),
		state:    stateAwaitingPush,
	}
	return t.run(ctx)
}

func (t *tracker) run(ctx context.Context) (*Result, error) {
	wsURL := t.client.wsURL + "?clientId=" + t.client.clientID
	conn, _, err := t.client.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		// Transport trouble never fails a generation; the polling loop
		// reaches the same terminal states.
		slog.Warn("comfy: push channel unavailable, falling back to polling", "err", err)
		t.state = statePolling
	} else {
		t.conn = conn
		t.msgs = readPushChannel(conn)
		defer conn.Close()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(t.deadline) && !t.state.terminal() {
			t.state = stateTimedOut
		}

		switch t.state {
		case stateAwaitingPush:
			t.awaitPush(ctx)
		case stateResolving:
			t.resolve(ctx)
		case statePolling:
			t.poll(ctx)
		case stateResolved:
			return t.result, nil
		case stateFailed:
			return nil, t.failure
		case stateTimedOut:
			return nil, fmt.Errorf("%w (prompt %s)", ErrTimeout, t.promptID)
		}
	}
}

func (s trackState) terminal() bool {
	return s == stateResolved || s == stateFailed || s == stateTimedOut
}

// readPushChannel pumps inbound frames into a channel. A read error is
// permanent on a gorilla connection, so one goroutine owns every read for
// the connection's lifetime; the channel closing means the connection is
// gone. The goroutine exits when the tracker closes the connection.
func readPushChannel(conn *websocket.Conn) <-chan []byte {
	ch := make(chan []byte, 8)
	go func() {
		defer close(ch)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ch <- msg
		}
	}()
	return ch
}

// awaitPush waits on the push channel for one bounded slice. A quiet
// slice triggers a one-shot pull of engine state without abandoning the
// channel; a closed channel demotes the whole tracker to polling.
func (t *tracker) awaitPush(ctx context.Context) {
	wait := t.client.recvWait
	if remain := time.Until(t.deadline); remain < wait {
		wait = remain
	}
	if wait <= 0 {
		t.state = stateTimedOut
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		// No event inside the slice. The engine may have finished while
		// we were not looking; check without giving up the channel.
		t.checkEngineState(ctx)
		return
	case msg, ok := <-t.msgs:
		if !ok {
			slog.Warn("comfy: push channel dropped, falling back to polling")
			t.conn.Close()
			t.conn = nil
			t.msgs = nil
			t.state = statePolling
			return
		}
		t.handlePush(msg)
	}
}

// handlePush dispatches one push-channel frame.
func (t *tracker) handlePush(msg []byte) {
	var ev pushEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return // binary preview frames and other noise
	}
	if ev.Data.PromptID != t.promptID {
		return // another client's workflow, or an unscoped broadcast
	}

	switch ev.Type {
	case "executed":
		slog.Debug("comfy: push reported completion", "prompt_id", t.promptID)
		t.state = stateResolving
	case "execution_error":
		msgs := []string{ev.Data.ExceptionMessage}
		if ev.Data.ExceptionMessage == "" {
			msgs = []string{string(msg)}
		}
		t.failure = &ExecutionError{Messages: msgs}
		t.state = stateFailed
	}
}

// resolve re-confirms a push-indicated completion against history. The
// push event is a hint, not a source of truth: engines emit it before the
// history record is durably written, so a miss loops back to listening
// rather than failing.
func (t *tracker) resolve(ctx context.Context) {
	res, ok, err := t.client.history(ctx, t.promptID)
	if err != nil || !ok {
		if err != nil {
			slog.Debug("comfy: history not confirmable yet", "prompt_id", t.promptID, "err", err)
		}
		if t.conn != nil {
			t.state = stateAwaitingPush
		} else {
			t.state = statePolling
		}
		return
	}
	t.finish(res)
}

// poll is one turn of the pure-polling fallback.
func (t *tracker) poll(ctx context.Context) {
	if t.checkEngineState(ctx) {
		return
	}
	interval := t.client.pollInterval
	if remain := time.Until(t.deadline); remain < interval {
		interval = remain
	}
	if interval <= 0 {
		t.state = stateTimedOut
		return
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// checkEngineState pulls history, then the queue, and reports whether a
// terminal state was reached. Transport errors are absorbed: the next
// slice or poll turn tries again.
func (t *tracker) checkEngineState(ctx context.Context) bool {
	res, ok, err := t.client.history(ctx, t.promptID)
	if err != nil {
		slog.Debug("comfy: history check failed", "err", err)
		return false
	}
	if ok {
		t.finish(res)
		return true
	}

	ids, err := t.client.queuedIDs(ctx)
	if err != nil {
		slog.Debug("comfy: queue check failed", "err", err)
		return false
	}
	for _, id := range ids {
		if id == t.promptID {
			return false // still running or pending
		}
	}

	// Not in history and not queued: the engine lost it.
	t.failure = &ExecutionError{Messages: []string{fmt.Sprintf("prompt %s not found in queue", t.promptID)}}
	t.state = stateFailed
	return true
}

// finish moves the tracker to its terminal state for a confirmed record.
func (t *tracker) finish(res *Result) {
	if fail := res.failure(); fail != nil {
		t.failure = fail
		t.state = stateFailed
		return
	}
	t.result = res
	t.state = stateResolved
}
