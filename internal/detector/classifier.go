// Package detector turns telemetry samples into outlier verdicts. It owns the
// per-metric sliding windows and evaluates each new sample against the
// statistics of its window after insertion.
package detector

import (
	"fmt"
	"math"

	"github.com/harrison/driftwatch/internal/stats"
)

// ClassifierConfig holds the outlier thresholds.
type ClassifierConfig struct {
	// ZThreshold flags samples whose |z-score| exceeds it (default: 2.5)
	ZThreshold float64

	// IQRMultiplier flags samples above Q3 + IQRMultiplier*IQR (default: 1.5)
	IQRMultiplier float64

	// WindowSize is the per-metric sliding window capacity (default: 100)
	WindowSize int

	// MinSamples is the window size below which classification is skipped (default: 3)
	MinSamples int
}

// DefaultClassifierConfig returns the standard thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ZThreshold:    2.5,
		IQRMultiplier: 1.5,
		WindowSize:    stats.DefaultCapacity,
		MinSamples:    stats.MinSamples,
	}
}

// Validate reports whether the thresholds are usable.
func (c ClassifierConfig) Validate() error {
	if c.ZThreshold <= 0 {
		return fmt.Errorf("z threshold must be positive, got %v", c.ZThreshold)
	}
	if c.IQRMultiplier <= 0 {
		return fmt.Errorf("iqr multiplier must be positive, got %v", c.IQRMultiplier)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("min samples must be at least 1, got %d", c.MinSamples)
	}
	return nil
}

// Verdict is the classification of one sample.
type Verdict struct {
	Outlier bool
	ZScore  float64 // 0 when the window has zero variance
	ByIQR   bool    // value exceeded Q3 + multiplier*IQR
	ByZ     bool    // |z| exceeded the z threshold
}

// Classify evaluates value against snap, the statistics of its window taken
// after value was inserted. The two rules are independent: a zero standard
// deviation disables only the z-score rule.
func Classify(value float64, snap stats.Snapshot, cfg ClassifierConfig) Verdict {
	var v Verdict

	v.ByIQR = value > snap.Q3+cfg.IQRMultiplier*snap.IQR()

	if snap.Std != 0 {
		v.ZScore = (value - snap.Mean) / snap.Std
		v.ByZ = math.Abs(v.ZScore) > cfg.ZThreshold
	}

	v.Outlier = v.ByIQR || v.ByZ
	return v
}
