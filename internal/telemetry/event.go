// Package telemetry defines the behavioral telemetry records an agent writes to
// its append-only log, and the helpers to decode and produce them.
//
// Each log line has the form "<timestamp> <json object>", where the JSON object
// carries the event kind and a set of optional numeric measurements.
package telemetry

// Metric names for the numeric fields that are tracked in sliding windows.
const (
	MetricExecTime       = "exec_time"
	MetricInferenceTime  = "inference_time"
	MetricResponseLength = "response_length"
	MetricEntropy        = "entropy"
)

// Metrics lists the windowed metrics in evaluation order.
var Metrics = []string{
	MetricExecTime,
	MetricInferenceTime,
	MetricResponseLength,
	MetricEntropy,
}

// Event kinds emitted by the agent.
const (
	KindInference     = "inference"
	KindToolExecution = "tool_execution"
)

// BehaviorEvent is one decoded and validated telemetry record.
// Nil pointer fields were absent (or null) in the source line.
type BehaviorEvent struct {
	Timestamp      string   // Raw timestamp text preceding the JSON payload
	Kind           string   // e.g. "inference", "tool_execution"
	ToolType       string   // Empty when absent
	ExecTime       *float64 // Seconds
	InferenceTime  *float64 // Seconds
	ResponseLength *int64
	Entropy        *float64 // Bits per symbol
	Iteration      *int64
}

// Sample is a single numeric measurement taken from an event.
type Sample struct {
	Metric   string
	Value    float64
	Integral bool // true for integer-typed metrics
}

// Samples returns the populated windowed measurements of the event in
// evaluation order. Iteration is carried on the event but not windowed.
func (e BehaviorEvent) Samples() []Sample {
	samples := make([]Sample, 0, len(Metrics))
	if e.ExecTime != nil {
		samples = append(samples, Sample{Metric: MetricExecTime, Value: *e.ExecTime})
	}
	if e.InferenceTime != nil {
		samples = append(samples, Sample{Metric: MetricInferenceTime, Value: *e.InferenceTime})
	}
	if e.ResponseLength != nil {
		samples = append(samples, Sample{Metric: MetricResponseLength, Value: float64(*e.ResponseLength), Integral: true})
	}
	if e.Entropy != nil {
		samples = append(samples, Sample{Metric: MetricEntropy, Value: *e.Entropy})
	}
	return samples
}

// Float returns a pointer to v, for building events.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for building events.
func Int(v int64) *int64 { return &v }
