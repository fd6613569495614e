package comfy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is returned when a generation does not resolve within
	// the caller's budget.
	ErrTimeout = errors.New("comfy: generation timed out")

	// ErrNoArtifact is returned when a completed workflow exposes no
	// locatable image descriptor.
	ErrNoArtifact = errors.New("comfy: no image found in outputs")
)

// SubmissionError is returned when the engine rejects a queued workflow.
// Body carries the raw response for diagnostics; engine validation errors
// are verbose JSON and worth keeping whole.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("comfy: queue rejected with status %d: %s", e.StatusCode, e.Body)
}

// ExecutionError is returned when the engine ran the workflow and reported
// failure. It is terminal for that submission; the client never resubmits.
type ExecutionError struct {
	Messages []string
}

func (e *ExecutionError) Error() string {
	return "comfy: execution failed: " + strings.Join(e.Messages, "; ")
}
