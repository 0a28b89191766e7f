package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/harrison/driftwatch/internal/alert"
	"github.com/harrison/driftwatch/internal/detector"
	"github.com/harrison/driftwatch/internal/logger"
	"github.com/harrison/driftwatch/internal/tailer"
	"github.com/harrison/driftwatch/internal/telemetry"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (s *recordingSink) Emit(_ context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = a.Message()
	}
	return out
}

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	require.TestingT
	Helper()
}

func writeLines(t tb, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	for _, l := range lines {
		_, err := f.WriteString(l + "\n")
		require.NoError(t, err)
	}
}

func responseLine(n int) string {
	return fmt.Sprintf(`2025-01-01T00:00:00.000000 {"event": "inference", "response_length": %d}`, n)
}

func replay(t tb, path string) (*Monitor, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	m := New(tailer.New(path), detector.NewDefault(), sink, nil)
	require.NoError(t, m.RunOnce(context.Background()))
	return m, sink
}

func TestRunOnce_SpikeRaisesSingleAlert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_behavior.log")
	for _, n := range []int{10, 12, 11, 13, 12, 11, 10, 12, 13, 11, 1000} {
		writeLines(t, path, responseLine(n))
	}

	m, sink := replay(t, path)

	require.Equal(t, []string{
		"ALERT: Outlier in response_length (z=3.16, value=1000). Potential security drift!",
	}, sink.messages())
	assert.Equal(t, Stats{Lines: 11, Events: 11, Alerts: 1}, m.Stats())
	assert.Equal(t, 11, m.Detector().WindowLen(telemetry.MetricResponseLength))
}

func TestRunOnce_ProcessesFinalLineWithoutNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_behavior.log")
	for _, n := range []int{10, 12, 11, 13, 12, 11, 10, 12, 13, 11} {
		writeLines(t, path, responseLine(n))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(responseLine(1000))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, sink := replay(t, path)
	assert.Len(t, sink.messages(), 1)
}

func TestHandleLine_MalformedLinesLeaveStateUntouched(t *testing.T) {
	valid := []string{
		`2025-01-01T00:00:00 {"event": "tool_execution", "exec_time": 0.5}`,
		`2025-01-01T00:00:01 {"event": "tool_execution", "exec_time": 0.6}`,
		`2025-01-01T00:00:02 {"event": "tool_execution", "exec_time": 0.55}`,
		`2025-01-01T00:00:03 {"event": "tool_execution", "exec_time": 9.0}`,
	}
	malformed := []string{
		`no-json-here`,
		`2025-01-01T00:00:00 {"event": "tool_execution", "exec_time": 0.5`,
		`2025-01-01T00:00:00 {"exec_time": 100}`,
		`2025-01-01T00:00:00 {"event": "tool_execution", "exec_time": "slow"}`,
		`2025-01-01T00:00:00 {"event": "tool_execution", "exec_time": -1}`,
		`2025-01-01T00:00:00 [1, 2, 3]`,
	}

	ctx := context.Background()

	cleanSink := &recordingSink{}
	clean := New(tailer.New(os.DevNull), detector.NewDefault(), cleanSink, nil)
	for _, line := range valid {
		clean.HandleLine(ctx, line)
	}

	var logs bytes.Buffer
	noisySink := &recordingSink{}
	noisy := New(tailer.New(os.DevNull), detector.NewDefault(), noisySink, logger.NewConsoleLogger(&logs, "info"))
	for _, line := range valid {
		for _, bad := range malformed {
			noisy.HandleLine(ctx, bad)
		}
		noisy.HandleLine(ctx, line)
	}

	assert.Equal(t, clean.Detector().WindowValues(telemetry.MetricExecTime), noisy.Detector().WindowValues(telemetry.MetricExecTime))
	assert.Equal(t, cleanSink.messages(), noisySink.messages())
	assert.Equal(t, len(valid)*len(malformed), noisy.Stats().Invalid)
	assert.Equal(t, len(valid)*len(malformed), strings.Count(logs.String(), "[WARN] Invalid log line:"))
}

func TestHandleLine_AlertFailureIsLoggedAndCounted(t *testing.T) {
	var logs bytes.Buffer
	sink := &recordingSink{err: errors.New("disk full")}
	m := New(tailer.New(os.DevNull), detector.NewDefault(), sink, logger.NewConsoleLogger(&logs, "info"))

	for _, n := range []int{10, 12, 11, 13, 12, 11, 10, 12, 13, 11, 1000, 12} {
		m.HandleLine(context.Background(), responseLine(n))
	}

	assert.Equal(t, 1, m.Stats().AlertErrors)
	assert.Equal(t, 0, m.Stats().Alerts)
	assert.Equal(t, 12, m.Stats().Events)
	assert.Contains(t, logs.String(), "[ERROR] Failed to write alert: disk full")
}

func TestHandleLine_LedgerFailureCountsAsDelivered(t *testing.T) {
	var logs bytes.Buffer
	sink := &recordingSink{err: fmt.Errorf("%w: database is closed", alert.ErrLedgerWrite)}
	m := New(tailer.New(os.DevNull), detector.NewDefault(), sink, logger.NewConsoleLogger(&logs, "info"))

	for _, n := range []int{10, 12, 11, 13, 12, 11, 10, 12, 13, 11, 1000, 12} {
		m.HandleLine(context.Background(), responseLine(n))
	}

	assert.Equal(t, 1, m.Stats().Alerts)
	assert.Equal(t, 1, m.Stats().LedgerErrors)
	assert.Equal(t, 0, m.Stats().AlertErrors)
	assert.Contains(t, logs.String(), "[WARN] Failed to record alert in ledger:")
	assert.NotContains(t, logs.String(), "[ERROR]")
}

func TestRunOnce_RestartReplaysIdenticalAlerts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_behavior.log")
	lines := []string{
		`2025-01-01T00:00:00 {"event": "inference", "inference_time": 1.0, "response_length": 120, "entropy": 4.1}`,
		`2025-01-01T00:00:01 {"event": "inference", "inference_time": 1.1, "response_length": 130, "entropy": 4.0}`,
		`2025-01-01T00:00:02 {"event": "inference", "inference_time": 0.9, "response_length": 125, "entropy": 4.2}`,
		`2025-01-01T00:00:03 {"event": "tool_execution", "tool_type": "bash", "exec_time": 0.2}`,
		`garbage`,
		`2025-01-01T00:00:04 {"event": "inference", "inference_time": 1.0, "response_length": 5000, "entropy": 7.9}`,
	}
	writeLines(t, path, lines...)

	_, first := replay(t, path)
	_, second := replay(t, path)

	require.NotEmpty(t, first.messages())
	assert.Equal(t, first.messages(), second.messages())
}

func TestRunOnce_ReplayDeterminismProperty(t *testing.T) {
	dir := t.TempDir()
	run := 0

	rapid.Check(t, func(rt *rapid.T) {
		run++
		path := filepath.Join(dir, fmt.Sprintf("telemetry-%d.log", run))

		n := rapid.IntRange(0, 60).Draw(rt, "n")
		var lines []string
		for i := 0; i < n; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "kind") {
			case 0:
				v := rapid.Float64Range(0, 50).Draw(rt, "exec_time")
				lines = append(lines, fmt.Sprintf(`2025-01-01T00:00:00 {"event": "tool_execution", "exec_time": %v}`, v))
			case 1:
				rl := rapid.IntRange(0, 5000).Draw(rt, "response_length")
				e := rapid.Float64Range(0, 8).Draw(rt, "entropy")
				lines = append(lines, fmt.Sprintf(`2025-01-01T00:00:00 {"event": "inference", "response_length": %d, "entropy": %v}`, rl, e))
			case 2:
				v := rapid.Float64Range(0, 10).Draw(rt, "inference_time")
				lines = append(lines, fmt.Sprintf(`2025-01-01T00:00:00 {"kind": "inference", "inference_time": %v}`, v))
			default:
				lines = append(lines, rapid.StringMatching(`[a-z ]{1,20}`).Draw(rt, "noise"))
			}
		}
		writeLines(rt, path, lines...)

		m1, first := replay(rt, path)
		m2, second := replay(rt, path)

		if !assert.Equal(rt, first.messages(), second.messages()) {
			rt.FailNow()
		}
		if m1.Stats() != m2.Stats() {
			rt.Fatalf("stats differ: %+v vs %+v", m1.Stats(), m2.Stats())
		}
	})
}

func TestRun_FollowsUntilCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_behavior.log")
	sink := &recordingSink{}
	m := New(tailer.New(path, tailer.WithPollInterval(10*time.Millisecond)), detector.NewDefault(), sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for _, n := range []int{10, 12, 11, 13, 12, 11, 10, 12, 13, 11, 1000} {
		writeLines(t, path, responseLine(n))
	}

	require.Eventually(t, func() bool { return len(sink.messages()) == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
