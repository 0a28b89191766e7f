package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrison/driftwatch/internal/filelock"
)

// TimestampLayout is the local ISO-8601 layout the agent stamps lines with.
const TimestampLayout = "2006-01-02T15:04:05.000000"

type record struct {
	Event          string   `json:"event"`
	ToolType       string   `json:"tool_type,omitempty"`
	ExecTime       *float64 `json:"exec_time,omitempty"`
	InferenceTime  *float64 `json:"inference_time,omitempty"`
	ResponseLength *int64   `json:"response_length,omitempty"`
	Entropy        *float64 `json:"entropy,omitempty"`
	Iteration      *int64   `json:"iteration,omitempty"`
}

// FormatLine renders ev as a telemetry line stamped with ts (without the
// trailing newline). The event's own Timestamp field is ignored.
func FormatLine(ts time.Time, ev BehaviorEvent) (string, error) {
	if ev.Kind == "" {
		return "", fmt.Errorf("event kind is required")
	}
	payload, err := json.Marshal(record{
		Event:          ev.Kind,
		ToolType:       ev.ToolType,
		ExecTime:       ev.ExecTime,
		InferenceTime:  ev.InferenceTime,
		ResponseLength: ev.ResponseLength,
		Entropy:        ev.Entropy,
		Iteration:      ev.Iteration,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}
	return ts.Local().Format(TimestampLayout) + " " + string(payload), nil
}

// Writer appends telemetry lines to a log file. Appends are serialized with
// an flock so several emitters can share one file.
type Writer struct {
	path string
	now  func() time.Time
}

// NewWriter returns a Writer appending to path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// SetClock replaces the timestamp source (for deterministic output).
func (w *Writer) SetClock(now func() time.Time) {
	w.now = now
}

// Path returns the telemetry file path.
func (w *Writer) Path() string {
	return w.path
}

// Write stamps ev with the current time and appends it as one line.
func (w *Writer) Write(ctx context.Context, ev BehaviorEvent) error {
	line, err := FormatLine(w.now(), ev)
	if err != nil {
		return err
	}
	return filelock.LockAndAppend(ctx, w.path, line)
}

// InferenceEvent builds the event the agent records after a model call that
// returned text.
func InferenceEvent(toolType string, inferenceTime float64, text string, iteration int64) BehaviorEvent {
	return BehaviorEvent{
		Kind:           KindInference,
		ToolType:       toolType,
		InferenceTime:  Float(inferenceTime),
		ResponseLength: Int(ResponseLength(text)),
		Entropy:        Float(ShannonEntropy(text)),
		Iteration:      Int(iteration),
	}
}

// ToolExecutionEvent builds the event the agent records after running a tool.
func ToolExecutionEvent(toolType string, execTime float64, iteration int64) BehaviorEvent {
	return BehaviorEvent{
		Kind:      KindToolExecution,
		ToolType:  toolType,
		ExecTime:  Float(execTime),
		Iteration: Int(iteration),
	}
}
