package detector

import (
	"time"

	"github.com/harrison/driftwatch/internal/alert"
	"github.com/harrison/driftwatch/internal/stats"
	"github.com/harrison/driftwatch/internal/telemetry"
)

// Detector holds one sliding window per metric and classifies each new
// sample as it arrives. It has a single owner and is not safe for
// concurrent use.
type Detector struct {
	config  ClassifierConfig
	windows map[string]*stats.Window
	now     func() time.Time
}

// New creates a Detector with empty windows.
func New(config ClassifierConfig) *Detector {
	return &Detector{
		config:  config,
		windows: make(map[string]*stats.Window),
		now:     time.Now,
	}
}

// NewDefault creates a Detector with DefaultClassifierConfig.
func NewDefault() *Detector {
	return New(DefaultClassifierConfig())
}

// SetClock replaces the alert timestamp source.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// Config returns the classifier configuration.
func (d *Detector) Config() ClassifierConfig {
	return d.config
}

// Observe records every populated metric of ev in its window and returns an
// alert for each newly inserted sample classified as an outlier. Earlier
// samples are never re-evaluated.
func (d *Detector) Observe(ev telemetry.BehaviorEvent) []alert.Alert {
	var alerts []alert.Alert

	for _, sample := range ev.Samples() {
		verdict, ready := d.Record(sample.Metric, sample.Value)
		if !ready || !verdict.Outlier {
			continue
		}
		alerts = append(alerts, alert.Alert{
			Metric:         sample.Metric,
			Value:          sample.Value,
			Integral:       sample.Integral,
			ZScore:         verdict.ZScore,
			Timestamp:      d.now(),
			EventTimestamp: ev.Timestamp,
			EventKind:      ev.Kind,
		})
	}

	return alerts
}

// Record pushes value into the metric's window and classifies it against the
// post-insertion statistics. ready is false while the window holds fewer than
// MinSamples values; no classification happens then.
func (d *Detector) Record(metric string, value float64) (verdict Verdict, ready bool) {
	w := d.window(metric)
	w.Push(value)

	snap, ok := stats.ComputeMin(w.Values(), d.config.MinSamples)
	if !ok {
		return Verdict{}, false
	}
	return Classify(value, snap, d.config), true
}

// Snapshot returns the current statistics of a metric's window.
func (d *Detector) Snapshot(metric string) (stats.Snapshot, bool) {
	w, ok := d.windows[metric]
	if !ok {
		return stats.Snapshot{}, false
	}
	return stats.ComputeMin(w.Values(), d.config.MinSamples)
}

// WindowLen returns the number of samples held for metric.
func (d *Detector) WindowLen(metric string) int {
	if w, ok := d.windows[metric]; ok {
		return w.Len()
	}
	return 0
}

// WindowValues returns a copy of the metric's window, oldest first.
func (d *Detector) WindowValues(metric string) []float64 {
	if w, ok := d.windows[metric]; ok {
		return w.Values()
	}
	return nil
}

// Reset drops all windows.
func (d *Detector) Reset() {
	d.windows = make(map[string]*stats.Window)
}

func (d *Detector) window(metric string) *stats.Window {
	w, ok := d.windows[metric]
	if !ok {
		w = stats.NewWindow(d.config.WindowSize)
		d.windows[metric] = w
	}
	return w
}
