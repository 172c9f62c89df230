package scenario

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/vango-dev/cellkit/internal/errors"
	"github.com/vango-dev/cellkit/pkg/cell"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func runFile(t *testing.T, name string) *Result {
	t.Helper()
	res, err := RunFile(context.Background(), filepath.Join("testdata", name), quiet())
	if err != nil {
		t.Fatalf("RunFile(%s): %v", name, err)
	}
	return res
}

func TestRunPassingScenarios(t *testing.T) {
	for _, name := range []string{"sum.yaml", "lifecycle.yaml", "ops.yaml"} {
		t.Run(name, func(t *testing.T) {
			res := runFile(t, name)
			if !res.Passed() {
				t.Fatalf("failures:\n%v", res.Err())
			}
			if res.Steps == 0 {
				t.Error("no steps ran")
			}
		})
	}
}

func TestRunSumLog(t *testing.T) {
	res := runFile(t, "sum.yaml")
	if want := []string{"t 13", "t 15"}; !slices.Equal(res.Log, want) {
		t.Errorf("Log = %q, want %q", res.Log, want)
	}
	if res.Name != "sum" {
		t.Errorf("Name = %q", res.Name)
	}
}

func TestRunCollectsFailures(t *testing.T) {
	res := runFile(t, "failures.yaml")
	if res.Passed() {
		t.Fatal("failures.yaml should not pass")
	}
	if res.Steps != 6 {
		t.Errorf("Steps = %d, want 6", res.Steps)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("Failures = %v, want 2", res.Failures)
	}
	if !errors.HasCode(res.Failures[0], "C120") {
		t.Errorf("first failure = %v, want C120", res.Failures[0])
	}
	if !errors.HasCode(res.Failures[1], "C121") {
		t.Errorf("second failure = %v, want C121", res.Failures[1])
	}

	var ce *errors.Error
	if !stderrors.As(res.Failures[0], &ce) || ce.Location == nil {
		t.Fatalf("failure should carry a location: %v", res.Failures[0])
	}
	if ce.Location.Line != 24 {
		t.Errorf("failure line = %d, want 24", ce.Location.Line)
	}
	if !strings.Contains(ce.Detail, "double = 8, want 9") {
		t.Errorf("Detail = %q", ce.Detail)
	}
	if len(ce.Context) == 0 {
		t.Error("failure should carry source lines")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{
			name: "malformed yaml",
			src:  "cells:\n\t- name: a\n",
			code: "C111",
			line: 2,
		},
		{
			name: "unknown cell key",
			src:  "cells:\n  - name: a\n    vale: 1\n",
			code: "C111",
			line: 3,
		},
		{
			name: "unknown step key",
			src:  "cells:\n  - name: a\nsteps:\n  - set: a\n    valu: 1\n",
			code: "C116",
			line: 5,
		},
		{
			name: "two actions",
			src:  "steps:\n  - set: a\n    expect: a\n",
			code: "C116",
			line: 3,
		},
		{
			name: "no action",
			src:  "steps:\n  - value: 1\n",
			code: "C116",
			line: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "inline.yaml")
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			var ce *errors.Error
			stderrors.As(err, &ce)
			if ce.Location == nil || ce.Location.File != "inline.yaml" || ce.Location.Line != tt.line {
				t.Errorf("Location = %+v, want inline.yaml line %d", ce.Location, tt.line)
			}
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{
			name: "unknown source",
			src:  "cells:\n  - name: a\n    value: 1\nderived:\n  - name: d\n    op: sum\n    of: [a, missing]\n",
			code: "C112",
			line: 5,
		},
		{
			name: "duplicate name",
			src:  "cells:\n  - name: a\nderived:\n  - name: a\n    op: sum\n",
			code: "C113",
			line: 4,
		},
		{
			name: "unknown op",
			src:  "cells:\n  - name: a\nderived:\n  - name: d\n    op: average\n    of: [a]\n",
			code: "C114",
			line: 4,
		},
		{
			name: "unknown kind",
			src:  "cells:\n  - name: a\n    kind: queue\n",
			code: "C119",
			line: 2,
		},
		{
			name: "pulse fallback",
			src:  "cells:\n  - name: p\n    kind: pulse\n    fallback: 1\n",
			code: "C119",
			line: 2,
		},
		{
			name: "unknown host parent",
			src:  "hosts:\n  - name: child\n    parent: root\n",
			code: "C117",
			line: 2,
		},
		{
			name: "watch on unknown cell",
			src:  "watch:\n  - id: w\n    cell: ghost\n",
			code: "C112",
			line: 2,
		},
		{
			name: "trig a plain cell",
			src:  "cells:\n  - name: a\nsteps:\n  - trig: a\n",
			code: "C116",
			line: 4,
		},
		{
			name: "set without value",
			src:  "cells:\n  - name: a\nsteps:\n  - set: a\n",
			code: "C116",
			line: 4,
		},
		{
			name: "disconnect unknown watch",
			src:  "steps:\n  - disconnect: w\n",
			code: "C118",
			line: 2,
		},
		{
			name: "expect error on plain cell",
			src:  "cells:\n  - name: a\nsteps:\n  - expect: a\n    error: true\n",
			code: "C116",
			line: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.src), "inline.yaml")
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = Build(s, quiet())
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			var ce *errors.Error
			stderrors.As(err, &ce)
			if ce.Location == nil || ce.Location.Line != tt.line {
				t.Errorf("Location = %+v, want line %d", ce.Location, tt.line)
			}
		})
	}
}

func TestRunStepErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		code  string
		steps int
	}{
		{
			name:  "set derived",
			src:   "cells:\n  - name: a\n    value: 1\nderived:\n  - name: d\n    op: sum\n    of: [a]\nsteps:\n  - expect: d\n    value: 1\n  - set: d\n    value: 2\n",
			code:  "C116",
			steps: 1,
		},
		{
			name:  "pulse from text",
			src:   "cells:\n  - name: p\n    kind: pulse\nsteps:\n  - set: p\n    value: often\n",
			code:  "C115",
			steps: 0,
		},
		{
			name:  "add to text",
			src:   "cells:\n  - name: a\n    value: x\nsteps:\n  - add: a\n    value: 1\n",
			code:  "C115",
			steps: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.src), "inline.yaml")
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			res, err := Run(context.Background(), s, quiet())
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			if res == nil || res.Steps != tt.steps {
				t.Errorf("Result = %+v, want %d steps", res, tt.steps)
			}
		})
	}
}

func TestRunHonorsContext(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "sum.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, s, quiet())
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Steps != 0 {
		t.Errorf("Steps = %d, want 0", res.Steps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if !errors.HasCode(err, "C110") {
		t.Fatalf("err = %v, want C110", err)
	}
}

func TestBuildExposesCatalog(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "lifecycle.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	g, err := Build(s, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	want := []string{"clicked", "clicks", "heading", "ping", "quiet", "rows", "title"}
	if got := g.Catalog.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %q, want %q", got, want)
	}
	if err := g.Catalog.Set("title", "catalog"); err != nil {
		t.Fatal(err)
	}
	if v, _ := g.Catalog.Value("heading"); v != "catalog!" {
		t.Errorf("heading = %v, want catalog!", v)
	}
	if got := g.Log(); !slices.Equal(got, []string{"h hello! -> catalog!"}) {
		t.Errorf("Log() = %q", got)
	}
}

func TestGraphPulse(t *testing.T) {
	s, err := Parse([]byte("cells:\n  - name: tick\n    kind: pulse\n  - name: n\n    value: 1\n"), "inline.yaml")
	if err != nil {
		t.Fatal(err)
	}
	g, err := Build(s, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	p, ok := g.Pulse("tick")
	if !ok {
		t.Fatal("Pulse(tick) not found")
	}
	p.Trig()
	p.Trig()
	if v, _ := g.Catalog.Value("tick"); v != 2 {
		t.Errorf("tick = %v, want 2", v)
	}
	if _, ok := g.Pulse("n"); ok {
		t.Error("Pulse(n) should not find a plain cell")
	}
}

func TestWithObserverSeesNamedCells(t *testing.T) {
	obs := &nameObserver{}
	s, err := Parse([]byte("cells:\n  - name: a\n    value: 1\nderived:\n  - name: d\n    op: sum\n    of: [a]\nwatch:\n  - id: w\n    cell: d\nsteps:\n  - set: a\n    value: 2\n"), "inline.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), s, quiet(), WithObserver(obs)); err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "d"}; !slices.Equal(obs.names, want) {
		t.Errorf("dispatches = %q, want %q", obs.names, want)
	}
}

type nameObserver struct {
	names []string
}

func (o *nameObserver) BeginDispatch(info cell.DispatchInfo) func() {
	if info.Channel == cell.Changed {
		o.names = append(o.names, info.Name)
	}
	return func() {}
}

func (o *nameObserver) RecomputeFailed(string, error) {}
