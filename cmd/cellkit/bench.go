package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/cellkit/internal/errors"
	"github.com/vango-dev/cellkit/pkg/cell"
	"github.com/vango-dev/cellkit/pkg/loop"
	"github.com/vango-dev/cellkit/pkg/metrics"
)

type benchConfig struct {
	Depth      int
	Fanout     int
	Iterations int
	Shapes     []string
	JSONOutput string
	Metrics    bool
}

var shapeNames = []string{"chain", "fanout", "loop"}

func benchCmd(a *app) *cobra.Command {
	var (
		cfg        benchConfig
		depth      int
		fanout     int
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure change propagation",
		Long: `Bench sets a source cell repeatedly and measures how long the change takes
to reach every dependent.

Shapes:
  chain    a line of derived cells, --depth long
  fanout   one cell with --fanout subscribers
  loop     a cell set from another goroutine through the task loop

Examples:
  cellkit bench
  cellkit bench --shape chain --depth 1000
  cellkit bench --json - --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Depth = a.cfg.Bench.Depth
			cfg.Fanout = a.cfg.Bench.Fanout
			cfg.Iterations = a.cfg.Bench.Iterations
			return a.bench(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 100, "Length of the derived chain")
	cmd.Flags().IntVar(&fanout, "fanout", 100, "Number of subscribers of the fan-out cell")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 10000, "Number of sets per shape")
	cmd.Flags().StringSliceVar(&cfg.Shapes, "shape", shapeNames, "Shapes to run")
	cmd.Flags().StringVar(&cfg.JSONOutput, "json", "", "Write the JSON report to a file (- for stdout)")
	cmd.Flags().BoolVar(&cfg.Metrics, "metrics", false, "Print collected metrics after the run")

	return cmd
}

// shape is a graph under measurement. step sets the source for iteration i
// and returns once every dependent has seen it.
type shape struct {
	name  string
	nodes int
	step  func(ctx context.Context, i int) error
	close func()

	notifications int
}

type benchReport struct {
	Version  string        `json:"version"`
	Run      runInfo       `json:"run"`
	Workload workloadInfo  `json:"workload"`
	Shapes   []shapeReport `json:"shapes"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
}

type workloadInfo struct {
	Depth      int `json:"depth"`
	Fanout     int `json:"fanout"`
	Iterations int `json:"iterations"`
}

type shapeReport struct {
	Name          string      `json:"name"`
	Nodes         int         `json:"nodes"`
	Notifications int         `json:"notifications"`
	LatencyMS     latencyInfo `json:"latency_ms"`
	SetsPerSec    float64     `json:"sets_per_sec"`
}

type latencyInfo struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

func (a *app) bench(ctx context.Context, cfg benchConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		reg      *prometheus.Registry
		cellOpts []cell.Option
		hooks    loop.Hooks
	)
	if cfg.Metrics {
		reg = prometheus.NewRegistry()
		collector := metrics.New(
			metrics.WithNamespace(a.cfg.Metrics.Namespace),
			metrics.WithSubsystem("bench"),
			metrics.WithRegistry(reg),
		)
		cellOpts = append(cellOpts, cell.WithObserver(collector))
		hooks = collector
	}

	report, err := runBench(ctx, cfg, cellOpts, hooks)
	if err != nil {
		return err
	}

	if cfg.JSONOutput != "" {
		if err := writeJSON(cfg.JSONOutput, report); err != nil {
			return errors.New("C143").WithDetailf("write %s", cfg.JSONOutput).Wrap(err)
		}
	}
	if cfg.JSONOutput != "-" {
		writeSummary(a.out, report)
	}
	if reg != nil {
		return dumpMetrics(a.out, reg)
	}
	return nil
}

// runBench builds and measures each requested shape in turn.
func runBench(ctx context.Context, cfg benchConfig, cellOpts []cell.Option, hooks loop.Hooks) (benchReport, error) {
	report := benchReport{
		Version: version,
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
		},
		Workload: workloadInfo{
			Depth:      cfg.Depth,
			Fanout:     cfg.Fanout,
			Iterations: cfg.Iterations,
		},
	}
	if cfg.Iterations < 1 {
		return report, errors.New("C140").WithDetailf("--iterations must be at least 1, got %d", cfg.Iterations)
	}

	for _, name := range cfg.Shapes {
		var s *shape
		switch name {
		case "chain":
			if cfg.Depth < 1 {
				return report, errors.New("C140").WithDetailf("--depth must be at least 1, got %d", cfg.Depth)
			}
			s = chainShape(cfg.Depth, cellOpts)
		case "fanout":
			if cfg.Fanout < 1 {
				return report, errors.New("C140").WithDetailf("--fanout must be at least 1, got %d", cfg.Fanout)
			}
			s = fanoutShape(cfg.Fanout, cellOpts)
		case "loop":
			s = loopShape(ctx, cellOpts, hooks)
		default:
			return report, errors.New("C140").
				WithDetailf("unknown shape %q", name).
				WithSuggestion(fmt.Sprintf("Use one of %v", shapeNames))
		}

		sr, err := measure(ctx, s, cfg.Iterations)
		s.close()
		if err != nil {
			return report, err
		}
		report.Shapes = append(report.Shapes, sr)
	}
	return report, nil
}

func measure(ctx context.Context, s *shape, iterations int) (shapeReport, error) {
	warmup := iterations / 10
	if warmup > 1000 {
		warmup = 1000
	}
	for i := 0; i < warmup; i++ {
		if err := s.step(ctx, i); err != nil {
			return shapeReport{}, errors.New("C143").WithDetailf("%s warmup", s.name).Wrap(err)
		}
	}
	s.notifications = 0

	samples := make([]time.Duration, 0, iterations)
	begin := time.Now()
	for i := warmup; i < warmup+iterations; i++ {
		start := time.Now()
		if err := s.step(ctx, i); err != nil {
			return shapeReport{}, errors.New("C143").WithDetailf("%s step %d", s.name, i).Wrap(err)
		}
		samples = append(samples, time.Since(start))
	}
	elapsed := time.Since(begin)

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	var total time.Duration
	for _, d := range samples {
		total += d
	}

	sr := shapeReport{
		Name:          s.name,
		Nodes:         s.nodes,
		Notifications: s.notifications,
		LatencyMS: latencyInfo{
			Min:  ms(samples[0]),
			Mean: ms(total / time.Duration(len(samples))),
			P50:  ms(percentile(samples, 0.50)),
			P90:  ms(percentile(samples, 0.90)),
			P99:  ms(percentile(samples, 0.99)),
			Max:  ms(samples[len(samples)-1]),
		},
	}
	if elapsed > 0 {
		sr.SetsPerSec = float64(iterations) / elapsed.Seconds()
	}
	return sr, nil
}

// chainShape links depth derived cells, each adding one to its source.
func chainShape(depth int, opts []cell.Option) *shape {
	s := &shape{name: "chain", nodes: depth + 1}

	src := cell.New(0, append(opts, cell.Named("chain.src"))...)
	derived := make([]*cell.Derived[int], 0, depth)
	var prev cell.Input[int] = src
	for i := 0; i < depth; i++ {
		d := cell.Derive1(prev, func(v int) int { return v + 1 }, append(opts, cell.Named(fmt.Sprintf("chain.%d", i)))...)
		derived = append(derived, d)
		prev = d
	}
	tail := derived[len(derived)-1]
	tail.Connect(func(int) { s.notifications++ })

	s.step = func(_ context.Context, i int) error {
		src.Set(i + 1)
		if got, want := tail.Get(), i+1+depth; got != want {
			return fmt.Errorf("chain tail = %d, want %d", got, want)
		}
		return nil
	}
	s.close = func() {
		for _, d := range derived {
			d.Dispose()
		}
	}
	return s
}

// fanoutShape connects n subscribers to one cell.
func fanoutShape(n int, opts []cell.Option) *shape {
	s := &shape{name: "fanout", nodes: n + 1}

	host := cell.NewOwner(nil)
	src := cell.New(0, append(opts, cell.Named("fanout.src"))...)
	for i := 0; i < n; i++ {
		src.Connect(func(int) { s.notifications++ }, cell.WithHost(host), cell.WithKey(new(int)))
	}

	s.step = func(_ context.Context, i int) error {
		before := s.notifications
		src.Set(i + 1)
		if got := s.notifications - before; got != n {
			return fmt.Errorf("fanout notified %d subscribers, want %d", got, n)
		}
		return nil
	}
	s.close = host.Dispose
	return s
}

// loopShape sets a cell owned by a loop goroutine and waits for the change
// to be delivered.
func loopShape(ctx context.Context, opts []cell.Option, hooks loop.Hooks) *shape {
	s := &shape{name: "loop", nodes: 2}

	loopOpts := []loop.Option{loop.WithQueueSize(16)}
	if hooks != nil {
		loopOpts = append(loopOpts, loop.WithHooks(hooks))
	}
	l := loop.New(loopOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(runCtx)
	}()

	src := cell.New(0, append(opts, cell.Named("loop.src"))...)
	src.Connect(func(int) { s.notifications++ })

	s.step = func(ctx context.Context, i int) error {
		return l.Await(ctx, func() { src.Set(i + 1) })
	}
	s.close = func() {
		cancel()
		<-done
		l.Close()
	}
	return s
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func writeSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== cellkit propagation benchmark ===")
	fmt.Fprintf(w, "Iterations: %d\n", report.Workload.Iterations)
	fmt.Fprintf(w, "Go: %s %s/%s, %d CPUs\n", report.Run.Go, report.Run.OS, report.Run.Arch, report.Run.CPUCount)
	fmt.Fprintln(w)

	for _, s := range report.Shapes {
		fmt.Fprintf(w, "%s (%d nodes, %d notifications):\n", s.Name, s.Nodes, s.Notifications)
		fmt.Fprintf(w, "  min:  %.4f ms\n", s.LatencyMS.Min)
		fmt.Fprintf(w, "  mean: %.4f ms\n", s.LatencyMS.Mean)
		fmt.Fprintf(w, "  p50:  %.4f ms\n", s.LatencyMS.P50)
		fmt.Fprintf(w, "  p90:  %.4f ms\n", s.LatencyMS.P90)
		fmt.Fprintf(w, "  p99:  %.4f ms\n", s.LatencyMS.P99)
		fmt.Fprintf(w, "  max:  %.4f ms\n", s.LatencyMS.Max)
		fmt.Fprintf(w, "  throughput: %.0f sets/s\n", s.SetsPerSec)
		fmt.Fprintln(w)
	}
}

func writeJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
