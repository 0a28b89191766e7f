package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Decode failure categories. Every error returned by Decode wraps one of these.
var (
	ErrMalformedLine = errors.New("malformed telemetry line")
	ErrInvalidJSON   = errors.New("invalid JSON payload")
	ErrSchema        = errors.New("schema violation")
)

// DecodeError describes why a telemetry line was discarded.
type DecodeError struct {
	Kind   error  // One of ErrMalformedLine, ErrInvalidJSON, ErrSchema
	Field  string // Offending field for schema violations
	Detail string
	Err    error // Underlying parse error, if any
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the category sentinel and the underlying error.
func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// wireEvent mirrors the JSON payload. Numbers decode as float64 so integer
// fields can be checked for integrality instead of failing on 3.0.
type wireEvent struct {
	Event          *string  `json:"event"`
	Kind           *string  `json:"kind"`
	ToolType       *string  `json:"tool_type"`
	ExecTime       *float64 `json:"exec_time"`
	InferenceTime  *float64 `json:"inference_time"`
	ResponseLength *float64 `json:"response_length"`
	Entropy        *float64 `json:"entropy"`
	Iteration      *float64 `json:"iteration"`
}

// Decode parses one raw telemetry line of the form "<timestamp> <json>".
// The line is split on the first space only. On any failure it returns a
// *DecodeError and a zero event; callers skip the line.
func Decode(line string) (BehaviorEvent, error) {
	line = strings.TrimSpace(line)
	ts, payload, ok := strings.Cut(line, " ")
	if !ok || ts == "" || strings.TrimSpace(payload) == "" {
		return BehaviorEvent{}, &DecodeError{Kind: ErrMalformedLine, Detail: "expected \"<timestamp> <json>\""}
	}

	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return BehaviorEvent{}, &DecodeError{Kind: ErrInvalidJSON, Detail: "payload is not a JSON object"}
	}

	var w wireEvent
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return BehaviorEvent{}, &DecodeError{Kind: ErrSchema, Field: typeErr.Field, Detail: "expected " + typeErr.Type.String() + ", got " + typeErr.Value}
		}
		return BehaviorEvent{}, &DecodeError{Kind: ErrInvalidJSON, Err: err}
	}

	return validate(ts, w)
}

func validate(ts string, w wireEvent) (BehaviorEvent, error) {
	kind := w.Event
	if kind == nil {
		kind = w.Kind
	}
	if kind == nil {
		return BehaviorEvent{}, &DecodeError{Kind: ErrSchema, Field: "event", Detail: "field required"}
	}
	if strings.TrimSpace(*kind) == "" {
		return BehaviorEvent{}, &DecodeError{Kind: ErrSchema, Field: "event", Detail: "must not be empty"}
	}

	ev := BehaviorEvent{Timestamp: ts, Kind: *kind}
	if w.ToolType != nil {
		ev.ToolType = *w.ToolType
	}

	var err error
	if ev.ExecTime, err = nonNegative("exec_time", w.ExecTime); err != nil {
		return BehaviorEvent{}, err
	}
	if ev.InferenceTime, err = nonNegative("inference_time", w.InferenceTime); err != nil {
		return BehaviorEvent{}, err
	}
	if ev.Entropy, err = nonNegative("entropy", w.Entropy); err != nil {
		return BehaviorEvent{}, err
	}
	if ev.ResponseLength, err = nonNegativeInt("response_length", w.ResponseLength); err != nil {
		return BehaviorEvent{}, err
	}
	if ev.Iteration, err = nonNegativeInt("iteration", w.Iteration); err != nil {
		return BehaviorEvent{}, err
	}
	return ev, nil
}

func nonNegative(field string, v *float64) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil, &DecodeError{Kind: ErrSchema, Field: field, Detail: "must be finite"}
	}
	if *v < 0 {
		return nil, &DecodeError{Kind: ErrSchema, Field: field, Detail: fmt.Sprintf("must be non-negative, got %v", *v)}
	}
	out := *v
	return &out, nil
}

func nonNegativeInt(field string, v *float64) (*int64, error) {
	f, err := nonNegative(field, v)
	if err != nil || f == nil {
		return nil, err
	}
	if *f != math.Trunc(*f) || *f >= math.MaxInt64 {
		return nil, &DecodeError{Kind: ErrSchema, Field: field, Detail: fmt.Sprintf("must be an integer, got %v", *f)}
	}
	n := int64(*f)
	return &n, nil
}
