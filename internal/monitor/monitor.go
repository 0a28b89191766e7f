// Package monitor wires the telemetry tailer, decoder, detector and alert
// sink into the poll loop.
package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/driftwatch/internal/alert"
	"github.com/harrison/driftwatch/internal/detector"
	"github.com/harrison/driftwatch/internal/logger"
	"github.com/harrison/driftwatch/internal/tailer"
	"github.com/harrison/driftwatch/internal/telemetry"
)

// AlertEmitter receives flagged samples.
type AlertEmitter interface {
	Emit(ctx context.Context, a alert.Alert) error
}

// Stats counts what a Monitor has processed.
type Stats struct {
	Lines        int // Non-blank lines read
	Events       int // Lines decoded into events
	Invalid      int // Lines rejected by the decoder
	Alerts       int // Alerts delivered
	AlertErrors  int // Alerts that failed to deliver
	LedgerErrors int // Delivered alerts the ledger failed to record
}

// Monitor runs the pipeline on a single goroutine. The detector's windows
// are only touched from HandleLine.
type Monitor struct {
	tailer   *tailer.Tailer
	detector *detector.Detector
	sink     AlertEmitter
	log      logger.Logger
	stats    Stats
}

// New creates a Monitor. A nil log discards diagnostics.
func New(t *tailer.Tailer, d *detector.Detector, sink AlertEmitter, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.Nop{}
	}
	return &Monitor{
		tailer:   t,
		detector: d,
		sink:     sink,
		log:      log,
	}
}

// Detector returns the monitor's detector.
func (m *Monitor) Detector() *detector.Detector {
	return m.detector
}

// Stats returns the counters so far.
func (m *Monitor) Stats() Stats {
	return m.stats
}

// Run follows the telemetry file until ctx is cancelled. The cycle in flight
// when ctx is cancelled is finished first. Run returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	return m.tailer.Follow(ctx, func(line string) {
		m.HandleLine(ctx, line)
	})
}

// RunOnce processes everything currently in the telemetry file, including a
// final line without a trailing newline, and returns.
func (m *Monitor) RunOnce(ctx context.Context) error {
	defer m.tailer.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines, err := m.tailer.Poll()
		if err != nil {
			return fmt.Errorf("read telemetry: %w", err)
		}
		if len(lines) == 0 {
			break
		}
		for _, line := range lines {
			m.HandleLine(ctx, line)
		}
	}

	if last := m.tailer.Drain(); last != "" {
		m.HandleLine(ctx, last)
	}
	return nil
}

// HandleLine decodes one telemetry line, feeds the detector and emits any
// alerts. Lines that fail to decode are logged and leave all state unchanged.
func (m *Monitor) HandleLine(ctx context.Context, line string) {
	m.stats.Lines++

	ev, err := telemetry.Decode(line)
	if err != nil {
		m.stats.Invalid++
		m.log.LogWarn(fmt.Sprintf("Invalid log line: %v", err))
		return
	}
	m.stats.Events++

	// Alerts raised before cancellation are still delivered.
	emitCtx := context.WithoutCancel(ctx)
	for _, a := range m.detector.Observe(ev) {
		if err := m.sink.Emit(emitCtx, a); err != nil {
			if errors.Is(err, alert.ErrLedgerWrite) {
				m.stats.Alerts++
				m.stats.LedgerErrors++
				m.log.LogWarn(fmt.Sprintf("Failed to record alert in ledger: %v", err))
				continue
			}
			m.stats.AlertErrors++
			m.log.LogError(fmt.Sprintf("Failed to write alert: %v", err))
			continue
		}
		m.stats.Alerts++
	}
}
