package simulate

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/driftwatch/internal/detector"
	"github.com/harrison/driftwatch/internal/telemetry"
)

func TestGenerate_Deterministic(t *testing.T) {
	first, err := Generate(DefaultOptions())
	require.NoError(t, err)
	second, err := Generate(DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	other := DefaultOptions()
	other.Seed = 7
	third, err := Generate(other)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestGenerate_BaselineComesFirst(t *testing.T) {
	opts := Options{Seed: DefaultSeed, Baseline: 5, Scenarios: []string{"runaway"}}
	steps, err := Generate(opts)
	require.NoError(t, err)

	require.Len(t, steps, 5*2+5)
	for i, s := range steps[:10] {
		assert.Equal(t, "baseline", s.Scenario, "step %d", i)
	}
	for _, s := range steps[10:] {
		assert.Equal(t, "runaway", s.Scenario)
	}

	// Iterations increase monotonically across the run
	var last int64
	for _, s := range steps {
		require.NotNil(t, s.Event.Iteration)
		assert.GreaterOrEqual(t, *s.Event.Iteration, last)
		last = *s.Event.Iteration
	}
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(Options{Scenarios: []string{"teleport"}})
	assert.ErrorContains(t, err, `unknown scenario "teleport"`)

	_, err = Generate(Options{Baseline: -1})
	assert.Error(t, err)

	_, err = Generate(Options{Iterations: -1})
	assert.Error(t, err)
}

func TestScenarios_AreFlagged(t *testing.T) {
	tests := []struct {
		scenario string
		metric   string
	}{
		{"probing", telemetry.MetricExecTime},
		{"runaway", telemetry.MetricInferenceTime},
		{"exfiltration", telemetry.MetricResponseLength},
		{"exfiltration", telemetry.MetricEntropy},
	}

	for _, tt := range tests {
		t.Run(tt.scenario+"/"+tt.metric, func(t *testing.T) {
			steps, err := Generate(Options{Seed: DefaultSeed, Baseline: 30, Scenarios: []string{tt.scenario}})
			require.NoError(t, err)

			d := detector.NewDefault()
			flagged := map[string]bool{}
			for _, s := range steps {
				for _, a := range d.Observe(s.Event) {
					if s.Scenario == tt.scenario {
						flagged[a.Metric] = true
					}
				}
			}
			assert.True(t, flagged[tt.metric], "expected %s alert during %s, got %v", tt.metric, tt.scenario, flagged)
		})
	}
}

func TestLookup(t *testing.T) {
	s, ok := Lookup("benign")
	require.True(t, ok)
	assert.Equal(t, "Normal benign: check OS version", s.Description)

	_, ok = Lookup("missing")
	assert.False(t, ok)
}

func TestWrite_AppendsDecodableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_behavior.log")
	steps, err := Generate(Options{Seed: DefaultSeed, Baseline: 3, Scenarios: []string{"exfiltration"}})
	require.NoError(t, err)

	n, err := Write(context.Background(), telemetry.NewWriter(path), steps, 0)
	require.NoError(t, err)
	assert.Equal(t, len(steps), n)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		_, err := telemetry.Decode(scanner.Text())
		require.NoError(t, err, "line %d", lines)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, len(steps), lines)
}

func TestWrite_StopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_behavior.log")
	steps, err := Generate(Options{Seed: DefaultSeed, Baseline: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := Write(ctx, telemetry.NewWriter(path), steps, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}
