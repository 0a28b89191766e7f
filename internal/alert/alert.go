// Package alert formats outlier alerts and delivers them to the console, the
// append-only alert log and, optionally, a sqlite ledger.
package alert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Alert is one flagged sample.
type Alert struct {
	Metric         string
	Value          float64
	Integral       bool // Value came from an integer metric
	ZScore         float64
	Timestamp      time.Time // When the alert was raised
	EventTimestamp string    // Timestamp text of the telemetry line
	EventKind      string
}

// Message renders the alert line written to stdout and the alert log.
func (a Alert) Message() string {
	return fmt.Sprintf("ALERT: Outlier in %s (z=%.2f, value=%s). Potential security drift!",
		a.Metric, a.ZScore, FormatValue(a.Value, a.Integral))
}

// FormatValue renders a raw sample. Integer metrics print without a decimal
// point; floats print in shortest round-trip form, keeping ".0" on integral
// values and switching to exponent form for very large or small magnitudes.
func FormatValue(v float64, integral bool) string {
	if integral {
		return strconv.FormatInt(int64(v), 10)
	}
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
