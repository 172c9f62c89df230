package main

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/cellkit/internal/config"
	"github.com/vango-dev/cellkit/internal/errors"
	"github.com/vango-dev/cellkit/internal/scenario"
	"github.com/vango-dev/cellkit/pkg/catalog"
	"github.com/vango-dev/cellkit/pkg/cell"
	"github.com/vango-dev/cellkit/pkg/inspect"
	"github.com/vango-dev/cellkit/pkg/loop"
	"github.com/vango-dev/cellkit/pkg/metrics"
	"github.com/vango-dev/cellkit/pkg/persist"
	"github.com/vango-dev/cellkit/pkg/tracing"
)

//go:embed demo.yaml
var demoScenario []byte

const shutdownTimeout = 5 * time.Second

type inspectOptions struct {
	scenario     string
	tick         string
	tickInterval time.Duration
}

func inspectCmd(a *app) *cobra.Command {
	var (
		opts inspectOptions

		// Bound to config keys in setup.
		addr             string
		snapshotTarget   string
		snapshotFormat   string
		snapshotInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Serve a live cell graph over HTTP",
		Long: `Inspect builds a cell graph and serves it:

  GET  /healthz        liveness
  GET  /cells          list every cell with its value
  GET  /cells/{name}   read one cell
  PUT  /cells/{name}   set a cell from a JSON body
  GET  /ws             websocket stream of changes
  GET  /metrics        Prometheus metrics

Without --scenario a built-in demo graph is served. With --snapshot the
writable cells are restored at startup and saved on shutdown, to a
directory or to s3://bucket/prefix.

Examples:
  cellkit inspect
  cellkit inspect --scenario counter.yaml --addr :7070
  cellkit inspect --snapshot ./state --snapshot-interval 30s
  cellkit inspect --snapshot s3://my-bucket/cellkit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inspect(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "Scenario file declaring the graph (default: built-in demo)")
	cmd.Flags().StringVar(&opts.tick, "tick", "tick", "Pulse to trigger every --tick-interval")
	cmd.Flags().DurationVar(&opts.tickInterval, "tick-interval", time.Second, "Interval between ticks, 0 to disable")
	cmd.Flags().StringVar(&addr, "addr", config.DefaultInspectAddr, "Listen address")
	cmd.Flags().StringVar(&snapshotTarget, "snapshot", "", "Snapshot directory or s3://bucket/prefix")
	cmd.Flags().StringVar(&snapshotFormat, "snapshot-format", "json", "Snapshot encoding: json or yaml")
	cmd.Flags().DurationVar(&snapshotInterval, "snapshot-interval", 0, "Save a snapshot this often, 0 for only on shutdown")

	return cmd
}

func (a *app) inspect(ctx context.Context, opts inspectOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg
	logger := a.logger

	s, err := loadInspectScenario(opts.scenario)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	var (
		observers []cell.Observer
		loopOpts  = []loop.Option{loop.WithQueueSize(cfg.Loop.QueueSize), loop.WithLogger(logger)}
	)
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector := metrics.New(metrics.WithNamespace(cfg.Metrics.Namespace), metrics.WithRegistry(reg))
		observers = append(observers, collector)
		loopOpts = append(loopOpts, loop.WithHooks(collector))
	}
	if cfg.Tracing.Enabled {
		observers = append(observers, tracing.New(ctx, tracing.WithTracerName(cfg.Tracing.TracerName)))
	}

	// The graph is built here and only touched through the loop once it runs.
	g, err := scenario.Build(s, scenario.WithLogger(logger), scenario.WithObserver(cell.Observers(observers...)))
	if err != nil {
		return err
	}

	l := loop.New(loopOpts...)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := l.Run(loopCtx); err != nil && !stderrors.Is(err, context.Canceled) {
			logger.Error("loop stopped", "error", err)
		}
	}()
	defer func() {
		stopLoop()
		<-loopDone
		l.Close()
		g.Close()
	}()

	snap, err := newSnapshotter(cfg.Snapshot, cfg.S3, g.Catalog, l)
	if err != nil {
		return err
	}
	if snap != nil {
		defer snap.Store.Close()
		if err := snap.Restore(ctx); err != nil {
			if !stderrors.Is(err, persist.ErrNotFound) {
				return errors.New("C131").WithDetailf("%s from %s", snap.Key, cfg.Snapshot.Target).Wrap(err)
			}
			a.warn("No snapshot %q in %s yet, starting fresh", snap.Key, cfg.Snapshot.Target)
		} else {
			logger.Info("snapshot restored", "target", cfg.Snapshot.Target, "key", snap.Key)
		}
	}

	srv := inspect.New(g.Catalog, l, &inspect.Config{
		CheckOrigin:  originCheck(cfg.Inspect),
		WriteTimeout: cfg.Inspect.WriteTimeout,
		PingInterval: cfg.Inspect.PingInterval,
		SendBuffer:   cfg.Inspect.SendBuffer,
		Logger:       logger,
	})
	if err := srv.Start(ctx); err != nil {
		return errors.New("C141").WithDetail("start change stream").Wrap(err)
	}

	router := chi.NewRouter()
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	router.Mount("/", srv.Handler())

	ln, err := net.Listen("tcp", cfg.Inspect.Addr)
	if err != nil {
		return errors.New("C141").WithDetailf("listen on %s", cfg.Inspect.Addr).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	if p, ok := g.Pulse(opts.tick); ok && opts.tickInterval > 0 {
		stopTick := l.Every(ctx, opts.tickInterval, p)
		defer stopTick()
	}
	if snap != nil && cfg.Snapshot.Interval > 0 {
		go saveEvery(ctx, snap, cfg.Snapshot.Interval, logger)
	}

	a.printBanner()
	a.success("Inspecting %s (%d cells)", s.Name, g.Catalog.Len())
	a.info("http://%s/cells", ln.Addr())
	a.info("ws://%s/ws", ln.Addr())
	if cfg.Metrics.Enabled {
		a.info("http://%s%s", ln.Addr(), cfg.Metrics.Path)
	}
	a.detail("Press Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !stderrors.Is(err, http.ErrServerClosed) {
			runErr = errors.New("C141").WithDetail("serve").Wrap(err)
		}
	}

	fmt.Fprintln(a.out)
	a.info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := srv.Close(shutdownCtx); err != nil {
		logger.Warn("inspector close", "error", err)
	}
	if snap != nil {
		if err := snap.Save(shutdownCtx); err != nil {
			return stderrors.Join(runErr, errors.New("C130").WithDetailf("%s to %s", snap.Key, cfg.Snapshot.Target).Wrap(err))
		}
		a.success("Snapshot saved to %s", cfg.Snapshot.Target)
	}
	return runErr
}

func loadInspectScenario(path string) (*scenario.Scenario, error) {
	if path != "" {
		return scenario.Load(path)
	}
	return scenario.Parse(demoScenario, "demo.yaml")
}

// newSnapshotter returns nil when no snapshot target is configured.
func newSnapshotter(cfg config.SnapshotConfig, s3cfg config.S3Config, cat *catalog.Catalog, l *loop.Loop) (*persist.Snapshotter, error) {
	if cfg.Target == "" {
		return nil, nil
	}
	codec, ok := persist.CodecFor(cfg.Format)
	if !ok {
		return nil, errors.New("C102").WithDetailf("snapshot.format %q", cfg.Format)
	}
	store, err := storeFor(cfg.Target, codec, s3cfg)
	if err != nil {
		return nil, err
	}
	return &persist.Snapshotter{
		Catalog: cat,
		Store:   store,
		Key:     cfg.Key,
		Codec:   codec,
		Loop:    l,
	}, nil
}

func saveEvery(ctx context.Context, snap *persist.Snapshotter, d time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := snap.Save(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("periodic snapshot failed", "key", snap.Key, "error", err)
				continue
			}
			logger.Debug("snapshot saved", "key", snap.Key)
		}
	}
}

func originCheck(cfg config.InspectConfig) func(*http.Request) bool {
	if cfg.AllowAnyOrigin {
		return inspect.AllowAllOrigins
	}
	return inspect.SameOriginCheck
}
