package detector

import (
	"testing"
	"time"

	"github.com/harrison/driftwatch/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inference(v float64) telemetry.BehaviorEvent {
	return telemetry.BehaviorEvent{Kind: telemetry.KindInference, InferenceTime: telemetry.Float(v)}
}

func responseLength(n int64) telemetry.BehaviorEvent {
	return telemetry.BehaviorEvent{Kind: telemetry.KindInference, ResponseLength: telemetry.Int(n)}
}

func TestDetector_WindowNeverExceedsCapacity(t *testing.T) {
	d := NewDefault()

	for i := 0; i < 350; i++ {
		d.Observe(inference(float64(i % 7)))
		require.LessOrEqual(t, d.WindowLen(telemetry.MetricInferenceTime), 100)
	}

	assert.Equal(t, 100, d.WindowLen(telemetry.MetricInferenceTime))
	values := d.WindowValues(telemetry.MetricInferenceTime)
	assert.Equal(t, float64(250%7), values[0], "oldest retained sample is push #250")
}

func TestDetector_NoAlertBelowMinSamples(t *testing.T) {
	d := NewDefault()

	assert.Empty(t, d.Observe(inference(1)))
	assert.Empty(t, d.Observe(inference(1e12)), "second sample must never alert")

	_, ready := d.Snapshot(telemetry.MetricInferenceTime)
	assert.False(t, ready)

	verdict, ready := d.Record("custom", 1)
	assert.False(t, ready)
	assert.False(t, verdict.Outlier)
}

func TestDetector_ConstantWindowNotFlagged(t *testing.T) {
	d := NewDefault()
	for i := 0; i < 10; i++ {
		d.Observe(inference(1))
	}

	alerts := d.Observe(inference(1))
	assert.Empty(t, alerts)

	snap, ready := d.Snapshot(telemetry.MetricInferenceTime)
	require.True(t, ready)
	assert.Equal(t, 0.0, snap.Std)

	verdict, ready := d.Record(telemetry.MetricInferenceTime, 1)
	require.True(t, ready)
	assert.False(t, verdict.ByZ)
	assert.Equal(t, 0.0, verdict.ZScore)
}

func TestDetector_SpikeFlaggedByBothRules(t *testing.T) {
	d := NewDefault()
	fixed := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	d.SetClock(func() time.Time { return fixed })

	for _, v := range []int64{10, 12, 11, 13, 12, 11, 10, 12, 13, 11} {
		require.Empty(t, d.Observe(responseLength(v)))
	}

	ev := responseLength(1000)
	ev.Timestamp = "2025-01-15T10:00:00.000001"
	alerts := d.Observe(ev)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, telemetry.MetricResponseLength, a.Metric)
	assert.Equal(t, 1000.0, a.Value)
	assert.InDelta(t, 3.162, a.ZScore, 0.001)
	assert.Equal(t, fixed, a.Timestamp)
	assert.Equal(t, "2025-01-15T10:00:00.000001", a.EventTimestamp)
	assert.Equal(t, "ALERT: Outlier in response_length (z=3.16, value=1000). Potential security drift!", a.Message())

	snap, _ := d.Snapshot(telemetry.MetricResponseLength)
	verdict := Classify(1000, snap, d.Config())
	assert.True(t, verdict.ByIQR)
	assert.True(t, verdict.ByZ)
}

func TestDetector_IQROnlyOutlier(t *testing.T) {
	d := NewDefault()
	for i := 1; i <= 10; i++ {
		d.Observe(inference(float64(i)))
	}

	alerts := d.Observe(inference(17))
	require.Len(t, alerts, 1)
	assert.Less(t, alerts[0].ZScore, 2.5, "z-score alone would not have flagged this sample")
	assert.Equal(t, "ALERT: Outlier in inference_time (z=2.44, value=17.0). Potential security drift!", alerts[0].Message())
}

func TestDetector_OnlyPopulatedMetricsEvaluated(t *testing.T) {
	d := NewDefault()
	for _, v := range []int64{10, 12, 11, 13, 12, 11, 10, 12, 13, 11} {
		d.Observe(responseLength(v))
	}
	require.Len(t, d.Observe(responseLength(1000)), 1)

	// An event without response_length must not re-alert the previous sample.
	assert.Empty(t, d.Observe(inference(1)))
	assert.Equal(t, 11, d.WindowLen(telemetry.MetricResponseLength))
	assert.Equal(t, 1, d.WindowLen(telemetry.MetricInferenceTime))
}

func TestDetector_MetricsAreIndependent(t *testing.T) {
	d := NewDefault()
	for i := 0; i < 10; i++ {
		d.Observe(telemetry.BehaviorEvent{
			Kind:          telemetry.KindInference,
			InferenceTime: telemetry.Float(1.0 + float64(i%3)*0.01),
			Entropy:       telemetry.Float(4.0 + float64(i%2)*0.01),
		})
	}

	alerts := d.Observe(telemetry.BehaviorEvent{
		Kind:          telemetry.KindInference,
		InferenceTime: telemetry.Float(1.01),
		Entropy:       telemetry.Float(7.9),
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, telemetry.MetricEntropy, alerts[0].Metric)
	assert.Equal(t, telemetry.KindInference, alerts[0].EventKind)
}

func TestDetector_Reset(t *testing.T) {
	d := NewDefault()
	for i := 0; i < 5; i++ {
		d.Observe(inference(1))
	}
	d.Reset()
	assert.Equal(t, 0, d.WindowLen(telemetry.MetricInferenceTime))
	assert.Nil(t, d.WindowValues(telemetry.MetricInferenceTime))
}
