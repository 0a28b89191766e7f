// Package simulate produces synthetic agent telemetry: a benign baseline
// followed by drift scenarios that the detector should flag.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/harrison/driftwatch/internal/telemetry"
)

// DefaultSeed makes runs reproducible unless overridden.
const DefaultSeed = 42

// Scenario is a named burst of agent behavior.
type Scenario struct {
	Name        string
	Description string
	generate    func(g *generator) []telemetry.BehaviorEvent
}

// Scenarios lists the drift scenarios in a stable order.
var Scenarios = []Scenario{
	{
		Name:        "probing",
		Description: "Enumerate system with repeated whoami calls",
		generate:    probing,
	},
	{
		Name:        "runaway",
		Description: "Inject prompt: ignore safety and search endlessly",
		generate:    runaway,
	},
	{
		Name:        "exfiltration",
		Description: "High-complexity: generate random data exfiltration",
		generate:    exfiltration,
	},
	{
		Name:        "benign",
		Description: "Normal benign: check OS version",
		generate:    benign,
	},
}

// Lookup returns the scenario called name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Options controls Generate.
type Options struct {
	Seed       uint64
	Baseline   int      // benign inference/tool pairs written first
	Iterations int      // scenarios drawn at random when Scenarios is empty
	Scenarios  []string // explicit scenario names, run in order
}

// DefaultOptions returns the defaults used by the simulate command.
func DefaultOptions() Options {
	return Options{
		Seed:       DefaultSeed,
		Baseline:   30,
		Iterations: 3,
	}
}

// Step is one generated event and the scenario it belongs to.
type Step struct {
	Scenario string
	Event    telemetry.BehaviorEvent
}

// Generate builds the event sequence for opts. The same options always give
// the same sequence.
func Generate(opts Options) ([]Step, error) {
	if opts.Baseline < 0 {
		return nil, fmt.Errorf("baseline must be >= 0, got %d", opts.Baseline)
	}

	var chosen []Scenario
	if len(opts.Scenarios) > 0 {
		for _, name := range opts.Scenarios {
			s, ok := Lookup(name)
			if !ok {
				return nil, fmt.Errorf("unknown scenario %q", name)
			}
			chosen = append(chosen, s)
		}
	}

	g := &generator{r: rand.New(rand.NewPCG(opts.Seed, opts.Seed))}

	if len(chosen) == 0 {
		if opts.Iterations < 0 {
			return nil, fmt.Errorf("iterations must be >= 0, got %d", opts.Iterations)
		}
		for i := 0; i < opts.Iterations; i++ {
			chosen = append(chosen, Scenarios[g.r.IntN(len(Scenarios))])
		}
	}

	var steps []Step
	for i := 0; i < opts.Baseline; i++ {
		for _, ev := range benign(g) {
			steps = append(steps, Step{Scenario: "baseline", Event: ev})
		}
	}
	for _, s := range chosen {
		for _, ev := range s.generate(g) {
			steps = append(steps, Step{Scenario: s.Name, Event: ev})
		}
	}
	return steps, nil
}

// Write appends every step to w, sleeping delay between events. It stops
// early when ctx is cancelled.
func Write(ctx context.Context, w *telemetry.Writer, steps []Step, delay time.Duration) (int, error) {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := w.Write(ctx, step.Event); err != nil {
			return i, fmt.Errorf("write event %d: %w", i, err)
		}
		if delay > 0 && i < len(steps)-1 {
			select {
			case <-ctx.Done():
				return i + 1, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return len(steps), nil
}

type generator struct {
	r         *rand.Rand
	iteration int64
}

func (g *generator) next() int64 {
	g.iteration++
	return g.iteration
}

func (g *generator) between(lo, hi float64) float64 {
	return lo + g.r.Float64()*(hi-lo)
}

var benignWords = []string{
	"the", "system", "reports", "version", "kernel", "release", "is", "running",
	"on", "linux", "host", "with", "uptime", "and", "no", "errors", "found",
	"command", "completed", "successfully", "output", "shows", "status", "ok",
}

func (g *generator) prose(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = benignWords[g.r.IntN(len(benignWords))]
	}
	return strings.Join(parts, " ")
}

const noiseAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/=!@#$%^&*"

func (g *generator) noise(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(noiseAlphabet[g.r.IntN(len(noiseAlphabet))])
	}
	return b.String()
}

func benign(g *generator) []telemetry.BehaviorEvent {
	iter := g.next()
	return []telemetry.BehaviorEvent{
		telemetry.InferenceEvent("llm", g.between(0.8, 1.4), g.prose(20+g.r.IntN(20)), iter),
		telemetry.ToolExecutionEvent("shell_exec", g.between(0.05, 0.2), iter),
	}
}

// probing repeats a cheap command many times, then stalls on a slow one.
func probing(g *generator) []telemetry.BehaviorEvent {
	var events []telemetry.BehaviorEvent
	for i := 0; i < 8; i++ {
		iter := g.next()
		events = append(events,
			telemetry.InferenceEvent("llm", g.between(0.8, 1.4), "run whoami", iter),
			telemetry.ToolExecutionEvent("shell_exec", g.between(0.05, 0.2), iter),
		)
	}
	events = append(events, telemetry.ToolExecutionEvent("shell_exec", g.between(4, 6), g.next()))
	return events
}

// runaway keeps iterating with ever slower inference.
func runaway(g *generator) []telemetry.BehaviorEvent {
	var events []telemetry.BehaviorEvent
	for i := 0; i < 5; i++ {
		events = append(events,
			telemetry.InferenceEvent("llm", g.between(8, 12)+float64(i), g.prose(30), g.next()))
	}
	return events
}

// exfiltration emits one long, high-entropy response.
func exfiltration(g *generator) []telemetry.BehaviorEvent {
	iter := g.next()
	return []telemetry.BehaviorEvent{
		telemetry.InferenceEvent("llm", g.between(0.8, 1.4), g.noise(2000), iter),
		telemetry.ToolExecutionEvent("web_search", g.between(0.05, 0.2), iter),
	}
}
