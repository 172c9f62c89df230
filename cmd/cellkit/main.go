package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vango-dev/cellkit/internal/config"
	"github.com/vango-dev/cellkit/internal/errors"
	"github.com/vango-dev/cellkit/pkg/cell"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┬  ┬  ┬┌─┬┌┬┐
  │  ├┤ │  │  ├┴┐│ │
  └─┘└─┘┴─┘┴─┘┴ ┴┴ ┴
`

var (
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// flagKeys maps config keys to the flags that override them. Flags a
// command does not define are skipped.
var flagKeys = map[string]string{
	"log.level":         "log-level",
	"log.format":        "log-format",
	"bench.depth":       "depth",
	"bench.fanout":      "fanout",
	"bench.iterations":  "iterations",
	"inspect.addr":      "addr",
	"snapshot.target":   "snapshot",
	"snapshot.format":   "snapshot-format",
	"snapshot.interval": "snapshot-interval",
}

// app carries what every subcommand needs once the root flags are parsed.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	a := &app{out: os.Stdout}
	rootCmd := newRootCmd(a)

	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cellkit",
		Short: "Run, measure and inspect reactive cell graphs",
		Long: `cellkit drives graphs of reactive cells.

  • run scenario files and check their expectations
  • benchmark change propagation through chains and fan-outs
  • serve a live inspector with a websocket change stream,
    Prometheus metrics and catalog snapshots`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgPath, "config", "c", "", "config file (default cellkit.{yaml,json,toml} in . or "+config.ConfigDir()+")")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(
		runCmd(a),
		benchCmd(a),
		inspectCmd(a),
		versionCmd(a),
	)
	return rootCmd
}

// setup loads the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	l := config.NewLoader()
	flags := cmd.Flags()
	for key, name := range flagKeys {
		if err := l.BindFlag(key, flags.Lookup(name)); err != nil {
			return errors.New("C140").WithDetailf("--%s", name).Wrap(err)
		}
	}

	cfg, err := l.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(a.logger)
	cell.SetLogger(a.logger)

	if cfg.Path() != "" {
		a.logger.Debug("config loaded", "path", cfg.Path())
	}
	return nil
}

// newLogger builds the slog handler selected by level and format. Both are
// validated by the config package.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// printBanner prints the cellkit banner.
func (a *app) printBanner() {
	fmt.Fprint(a.out, bannerStyle.Render(banner))
	fmt.Fprintln(a.out)
}

// success prints a success message.
func (a *app) success(format string, args ...any) {
	fmt.Fprintf(a.out, "%s %s\n", successStyle.Render("✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func (a *app) info(format string, args ...any) {
	fmt.Fprintf(a.out, "  %s\n", fmt.Sprintf(format, args...))
}

// detail prints a dimmed, indented line.
func (a *app) detail(format string, args ...any) {
	fmt.Fprintf(a.out, "    %s\n", dimStyle.Render(fmt.Sprintf(format, args...)))
}

// warn prints a warning message.
func (a *app) warn(format string, args ...any) {
	fmt.Fprintf(a.out, "%s %s\n", warnStyle.Render("⚠"), fmt.Sprintf(format, args...))
}

// fail prints a failure message.
func (a *app) fail(format string, args ...any) {
	fmt.Fprintf(a.out, "%s %s\n", failStyle.Render("✗"), fmt.Sprintf(format, args...))
}
