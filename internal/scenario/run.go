package scenario

import (
	"context"
	stderrors "errors"
	"time"
)

// Result is the outcome of running a scenario.
type Result struct {
	Name string
	File string

	// Steps is the number of steps carried out.
	Steps int

	// Log is the complete notification log.
	Log []string

	// Failures holds the failed expectations in step order.
	Failures []error

	Duration time.Duration
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Err joins the failures, or returns nil when the scenario passed.
func (r *Result) Err() error {
	return stderrors.Join(r.Failures...)
}

// Run builds s and carries out its steps in order. Failed expectations are
// collected in the Result; a step that cannot be carried out stops the run
// and is returned as the error together with the partial Result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	start := time.Now()
	g, err := Build(s, opts...)
	if err != nil {
		return nil, err
	}
	defer g.Close()

	res := &Result{Name: s.Name, File: s.File}
	finish := func() {
		res.Log = g.Log()
		res.Duration = time.Since(start)
	}

	for _, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			finish()
			return res, err
		}
		failure, err := g.Apply(st)
		if err != nil {
			finish()
			return res, err
		}
		res.Steps++
		if failure != nil {
			res.Failures = append(res.Failures, failure)
		}
	}

	finish()
	g.opts.logger.Debug("scenario: done",
		"scenario", s.Name,
		"steps", res.Steps,
		"failures", len(res.Failures),
		"duration", res.Duration)
	return res, nil
}

// RunFile loads and runs the scenario at path.
func RunFile(ctx context.Context, path string, opts ...Option) (*Result, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Run(ctx, s, opts...)
}
