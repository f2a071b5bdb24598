// Package health probes the external dependencies pdfrag talks to (Qdrant,
// the embedding backend, the chat backend) and reports per-dependency
// results for the `pdfrag doctor` command.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// probeTimeout is the maximum time allowed for each individual probe. Kept
// short so doctor answers quickly even when a dependency hangs.
const probeTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability. Ping returns nil when the dependency is healthy and a
// descriptive error otherwise. Implementations must be safe to call from
// multiple goroutines.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name returns a short label used in reports (e.g. "qdrant", "ollama").
	Name() string
}

// Result is the outcome of one probe.
type Result struct {
	Name     string
	OK       bool
	Err      error
	Duration time.Duration
}

// MultiPinger aggregates several Pingers.
type MultiPinger struct {
	pingers []Pinger
	timeout time.Duration
}

// NewMultiPinger constructs a MultiPinger from the provided Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers, timeout: probeTimeout}
}

// Ping runs all probes sequentially and returns the first error, or nil if
// every probe succeeds.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, r := range m.Check(ctx) {
		if !r.OK {
			return fmt.Errorf("%s: %w", r.Name, r.Err)
		}
	}
	return nil
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }

// Check runs every probe with its own timeout and returns one Result per
// Pinger in registration order. A failing probe does not stop the others.
func (m *MultiPinger) Check(ctx context.Context) []Result {
	log := logging.FromContext(ctx)
	results := make([]Result, 0, len(m.pingers))
	for _, p := range m.pingers {
		probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
		start := time.Now()
		err := p.Ping(probeCtx)
		cancel()

		r := Result{Name: p.Name(), OK: err == nil, Err: err, Duration: time.Since(start)}
		if err != nil {
			log.Warn("health: probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		results = append(results, r)
	}
	return results
}
