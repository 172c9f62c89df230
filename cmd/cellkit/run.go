package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/cellkit/internal/errors"
	"github.com/vango-dev/cellkit/internal/scenario"
	"github.com/vango-dev/cellkit/pkg/metrics"
)

type runOptions struct {
	verbose bool
	json    bool
	metrics bool
}

func runCmd(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run scenario files and check their expectations",
		Long: `Run builds the cell graph declared by each scenario file, carries out its
steps and checks every expectation.

A failed expectation is reported with its file and line and the run goes on;
a step that cannot be carried out stops that file.

Examples:
  cellkit run testdata/*.yaml
  cellkit run --verbose counter.yaml
  cellkit run --json --metrics counter.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScenarios(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print the notification log of each scenario")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Write results as JSON to stdout")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print collected metrics after the run")

	return cmd
}

// runReport is the JSON form of one scenario result.
type runReport struct {
	Name       string   `json:"name"`
	File       string   `json:"file"`
	Passed     bool     `json:"passed"`
	Steps      int      `json:"steps"`
	DurationMS float64  `json:"duration_ms"`
	Failures   []string `json:"failures,omitempty"`
	Error      string   `json:"error,omitempty"`
	Log        []string `json:"log,omitempty"`
}

func (a *app) runScenarios(ctx context.Context, files []string, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		reg      *prometheus.Registry
		scenOpts = []scenario.Option{scenario.WithLogger(a.logger)}
	)
	if opts.metrics {
		reg = prometheus.NewRegistry()
		collector := metrics.New(
			metrics.WithNamespace(a.cfg.Metrics.Namespace),
			metrics.WithRegistry(reg),
		)
		scenOpts = append(scenOpts, scenario.WithObserver(collector))
	}

	var (
		reports []runReport
		failed  int
	)
	for _, file := range files {
		res, err := scenario.RunFile(ctx, file, scenOpts...)
		report := newRunReport(file, res, err)
		reports = append(reports, report)
		if !report.Passed {
			failed++
		}

		if opts.json {
			continue
		}
		a.printResult(report, res, err, opts.verbose)
	}

	if opts.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	}

	if reg != nil {
		if err := dumpMetrics(a.out, reg); err != nil {
			return err
		}
	}

	if failed > 0 {
		return errors.New("C142").WithDetailf("%d of %d scenarios failed", failed, len(files))
	}
	if !opts.json {
		fmt.Fprintln(a.out)
		a.success("%d scenarios passed", len(files))
	}
	return nil
}

func newRunReport(file string, res *scenario.Result, err error) runReport {
	report := runReport{File: file}
	if res != nil {
		report.Name = res.Name
		report.Steps = res.Steps
		report.DurationMS = ms(res.Duration)
		report.Log = res.Log
		for _, f := range res.Failures {
			report.Failures = append(report.Failures, f.Error())
		}
	}
	if err != nil {
		report.Error = err.Error()
	}
	report.Passed = err == nil && len(report.Failures) == 0
	return report
}

func (a *app) printResult(report runReport, res *scenario.Result, err error, verbose bool) {
	name := report.Name
	if name == "" {
		name = report.File
	}

	if report.Passed {
		a.success("%s %s", name, dimStyle.Render(fmt.Sprintf("(%d steps, %s)", report.Steps, time.Duration(report.DurationMS*float64(time.Millisecond)).Round(time.Microsecond))))
	} else {
		a.fail("%s", name)
	}

	if verbose {
		for _, entry := range report.Log {
			a.detail("%s", entry)
		}
	}

	if res != nil {
		for _, f := range res.Failures {
			errors.Fprint(a.out, f)
		}
	}
	if err != nil {
		errors.Fprint(a.out, err)
	}
}
