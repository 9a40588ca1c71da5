// Package probe runs startup checks against the upstream services the
// pipeline depends on. Non-critical failures are logged and the service
// starts degraded; critical failures abort startup.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// defaultTimeout bounds a single check when the probe sets none.
const defaultTimeout = 5 * time.Second

// Probe is one startup check.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool          // a failure aborts startup
	Timeout  time.Duration // zero means defaultTimeout
}

// Result holds the outcome of a single probe.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Run executes the probes in order and logs a summary line per check.
// It returns the joined errors of all failed critical probes, nil when
// the service can start.
func Run(ctx context.Context, probes []Probe) error {
	var critical []error

	slog.Info("Startup checks")
	for _, p := range probes {
		r := runOne(ctx, p)

		status := "PASS"
		if r.Err != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-16s (%v)", status, r.Name, r.Duration.Round(time.Millisecond))

		if r.Err == nil {
			slog.Info(msg)
			continue
		}
		slog.Error(msg, "error", r.Err)
		if p.Critical {
			critical = append(critical, fmt.Errorf("%s: %w", p.Name, r.Err))
		}
	}

	return errors.Join(critical...)
}

func runOne(ctx context.Context, p Probe) Result {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	return Result{Name: p.Name, Err: err, Duration: time.Since(start)}
}
