package scenario

import (
	stderrors "errors"
	"log/slog"
	"slices"

	"github.com/vango-dev/cellkit/pkg/catalog"
	"github.com/vango-dev/cellkit/pkg/cell"
)

// Option configures Build and Run.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer cell.Observer
}

// WithLogger sets the logger used by the graph's cells and the runner.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver attaches obs to every cell of the graph.
func WithObserver(obs cell.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// watchKey is the callback identity of a watch.
type watchKey string

type watch struct {
	decl WatchDecl
	conn *cell.Connection
}

// Graph is a scenario's cells wired together and ready to step through.
// Like the cells it holds, a Graph belongs to one goroutine.
type Graph struct {
	// Catalog names every cell, derived cell and pulse of the graph.
	Catalog *catalog.Catalog

	s      *Scenario
	opts   options
	root   *cell.Owner
	names  map[string]string
	cells  map[string]*cell.Cell[any]
	pulses map[string]*cell.Pulse

	derived  map[string]*cell.Derived[any]
	adapters []*cell.Derived[any]
	inputs   map[string]cell.Input[any]
	hosts    map[string]*cell.Owner
	watches  map[string]*watch

	log    []string
	cursor int
}

// Build wires the declarations of s into a Graph without running its steps.
func Build(s *Scenario, opts ...Option) (*Graph, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	g := &Graph{
		Catalog: catalog.New(),
		s:       s,
		opts:    o,
		root:    cell.NewOwner(nil),
		names:   make(map[string]string),
		cells:   make(map[string]*cell.Cell[any]),
		pulses:  make(map[string]*cell.Pulse),
		derived: make(map[string]*cell.Derived[any]),
		inputs:  make(map[string]cell.Input[any]),
		hosts:   make(map[string]*cell.Owner),
		watches: make(map[string]*watch),
	}

	steps := []func() error{g.buildHosts, g.buildCells, g.buildDerived, g.buildWatches, g.checkSteps}
	for _, step := range steps {
		if err := step(); err != nil {
			g.Close()
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) claim(name, what string, p Pos) error {
	if name == "" {
		return g.s.errorFor("C119", p, "%s has no name", what)
	}
	if prev, ok := g.names[name]; ok {
		return g.s.errorFor("C113", p, "%q is already declared as a %s", name, prev)
	}
	g.names[name] = what
	return nil
}

func (g *Graph) cellOptions(name string, sensitive, silent bool) []cell.Option {
	opts := []cell.Option{cell.Named(name), cell.WithLogger(g.opts.logger)}
	if g.opts.observer != nil {
		opts = append(opts, cell.WithObserver(g.opts.observer))
	}
	if sensitive {
		opts = append(opts, cell.Sensitive())
	}
	if silent {
		opts = append(opts, cell.Silent())
	}
	return opts
}

func (g *Graph) buildHosts() error {
	for _, h := range g.s.Hosts {
		if err := g.claim(h.Name, "host", h.Pos); err != nil {
			return err
		}
		parent := g.root
		if h.Parent != "" {
			p, ok := g.hosts[h.Parent]
			if !ok {
				return g.s.errorFor("C117", h.Pos, "parent %q of host %q is not declared above it", h.Parent, h.Name)
			}
			parent = p
		}
		g.hosts[h.Name] = cell.NewOwner(parent)
	}
	return nil
}

func (g *Graph) buildCells() error {
	for _, d := range g.s.Cells {
		if err := g.claim(d.Name, "cell", d.Pos); err != nil {
			return err
		}
		opts := g.cellOptions(d.Name, d.Sensitive, d.Silent)
		var entryOpts []catalog.EntryOption
		if d.Transient {
			entryOpts = append(entryOpts, catalog.Transient())
		}

		switch d.Kind {
		case "", KindPlain, KindSpread:
			if d.Kind == KindSpread {
				opts = append(opts, cell.Spread())
			}
			c := cell.New[any](d.Value, opts...)
			if d.Fallback != nil {
				c.WithFallback(d.Fallback)
			}
			g.cells[d.Name] = c
			g.inputs[d.Name] = c
			if err := catalog.Add(g.Catalog, d.Name, c, entryOpts...); err != nil {
				return g.s.errorFor("C113", d.Pos, "%v", err)
			}

		case KindPulse:
			if d.Fallback != nil {
				return g.s.errorFor("C119", d.Pos, "pulse %q cannot have a fallback", d.Name)
			}
			p := cell.NewPulse(opts...)
			if d.Value != nil {
				n, err := catalog.Convert[int](d.Value)
				if err != nil || n < 0 {
					return g.s.errorFor("C115", d.Pos, "pulse %q starts at %v, want a count", d.Name, d.Value)
				}
				p.Set(n)
			}
			g.pulses[d.Name] = p
			adapter := cell.Derive1[int, any](p, func(n int) any { return n })
			g.adapters = append(g.adapters, adapter)
			g.inputs[d.Name] = adapter
			if err := catalog.AddPulse(g.Catalog, d.Name, p); err != nil {
				return g.s.errorFor("C113", d.Pos, "%v", err)
			}

		default:
			return g.s.errorFor("C119", d.Pos, "cell %q has unknown kind %q", d.Name, d.Kind)
		}
	}
	return nil
}

func (g *Graph) buildDerived() error {
	for _, d := range g.s.Derived {
		if err := g.claim(d.Name, "derived cell", d.Pos); err != nil {
			return err
		}
		op, ok := ops[d.Op]
		if !ok {
			return g.s.errorFor("C114", d.Pos, "derived cell %q uses %q", d.Name, d.Op)
		}

		inputs := make([]cell.Input[any], 0, len(d.Of)+len(d.With))
		for _, name := range d.Of {
			in, ok := g.inputs[name]
			if !ok {
				return g.s.errorFor("C112", d.Pos, "derived cell %q reads %q, which is not declared above it", d.Name, name)
			}
			inputs = append(inputs, in)
		}
		for _, v := range d.With {
			inputs = append(inputs, cell.Const[any](v))
		}

		fn := func(vals []any) any {
			for i, v := range vals {
				vals[i] = cell.Unspread(v)
			}
			return op(vals)
		}
		dc := cell.DeriveNWith[any, any](fn, g.cellOptions(d.Name, d.Sensitive, false), inputs...)
		g.derived[d.Name] = dc
		g.inputs[d.Name] = dc
		if err := catalog.AddDerived(g.Catalog, d.Name, dc); err != nil {
			return g.s.errorFor("C113", d.Pos, "%v", err)
		}
	}
	return nil
}

func (g *Graph) buildWatches() error {
	for _, d := range g.s.Watches {
		if err := g.claim(d.ID, "watch", d.Pos); err != nil {
			return err
		}
		var host cell.Host = g.root
		if d.Host != "" {
			h, ok := g.hosts[d.Host]
			if !ok {
				return g.s.errorFor("C117", d.Pos, "watch %q is hosted by %q", d.ID, d.Host)
			}
			host = h
		}
		if d.Key == "" {
			d.Key = d.ID
		}
		if d.Channel == "" {
			d.Channel = ChannelChanged
		}
		if d.Channel != ChannelChanged && d.Channel != ChannelActivated {
			return g.s.errorFor("C111", d.Pos, "watch %q has unknown channel %q", d.ID, d.Channel)
		}

		opts := []cell.ConnectOption{cell.WithHost(host), cell.WithKey(watchKey(d.Key))}
		if d.Once {
			opts = append(opts, cell.Once())
		}

		w := &watch{decl: d}
		switch {
		case g.cells[d.Cell] != nil:
			w.conn = connectWatch(g, g.cells[d.Cell], d, opts)
		case g.derived[d.Cell] != nil:
			w.conn = connectWatch(g, g.derived[d.Cell].Cell, d, opts)
		case g.pulses[d.Cell] != nil:
			w.conn = connectWatch(g, g.pulses[d.Cell].Cell, d, opts)
		default:
			return g.s.errorFor("C112", d.Pos, "watch %q observes %q", d.ID, d.Cell)
		}
		g.watches[d.ID] = w
	}
	return nil
}

func connectWatch[T any](g *Graph, c *cell.Cell[T], d WatchDecl, opts []cell.ConnectOption) *cell.Connection {
	if d.Channel == ChannelActivated {
		return c.ActConnect(func(v, prev T) {
			g.record(d.ID + " " + format(cell.Unspread(any(prev))) + " -> " + format(cell.Unspread(any(v))))
		}, opts...)
	}
	return c.Connect(func(v T) {
		g.record(d.ID + " " + format(cell.Unspread(any(v))))
	}, opts...)
}

func (g *Graph) record(entry string) {
	g.log = append(g.log, entry)
	g.opts.logger.Debug("scenario: notify", "scenario", g.s.Name, "entry", entry)
}

func (g *Graph) isCell(name string) bool {
	return g.cells[name] != nil || g.pulses[name] != nil || g.derived[name] != nil
}

func (g *Graph) hasKey(key string) bool {
	for _, w := range g.watches {
		if w.decl.Key == key {
			return true
		}
	}
	return false
}

// checkSteps resolves every name the steps refer to.
func (g *Graph) checkSteps() error {
	for _, st := range g.s.Steps {
		switch st.Action {
		case ActionSet, ActionAdd:
			if !g.isCell(st.Target) {
				return g.s.errorFor("C112", st.Pos, "%s %q", st.Action, st.Target)
			}
			if !st.HasValue {
				return g.s.errorFor("C116", st.Pos, "%s %q has no value", st.Action, st.Target)
			}
		case ActionTrig, ActionReset:
			if g.pulses[st.Target] == nil {
				if g.isCell(st.Target) {
					return g.s.errorFor("C116", st.Pos, "%s %q: not a pulse", st.Action, st.Target)
				}
				return g.s.errorFor("C112", st.Pos, "%s %q", st.Action, st.Target)
			}
		case ActionDispose:
			if g.hosts[st.Target] == nil && g.derived[st.Target] == nil {
				return g.s.errorFor("C117", st.Pos, "dispose %q: not a host or derived cell", st.Target)
			}
		case ActionDisconnect:
			if g.watches[st.Target] != nil {
				break
			}
			if !g.isCell(st.Target) {
				return g.s.errorFor("C118", st.Pos, "disconnect %q: not a watch or cell", st.Target)
			}
			if st.Host != "" && g.hosts[st.Host] == nil {
				return g.s.errorFor("C117", st.Pos, "disconnect host %q", st.Host)
			}
			if st.Watch != "" && !g.hasKey(st.Watch) {
				return g.s.errorFor("C118", st.Pos, "disconnect watch key %q", st.Watch)
			}
		case ActionExpect:
			if !g.isCell(st.Target) {
				return g.s.errorFor("C112", st.Pos, "expect %q", st.Target)
			}
			if !st.HasValue && st.Error == nil {
				return g.s.errorFor("C116", st.Pos, "expect %q needs value: or error:", st.Target)
			}
			if st.Error != nil && g.derived[st.Target] == nil {
				return g.s.errorFor("C116", st.Pos, "expect %q: error: applies to derived cells only", st.Target)
			}
		case ActionSignal:
			if !g.isCell(st.Target) {
				return g.s.errorFor("C112", st.Pos, "signal %q", st.Target)
			}
			if _, ok := st.Value.(bool); !ok {
				return g.s.errorFor("C116", st.Pos, "signal %q needs value: true or false", st.Target)
			}
		case ActionLog:
		default:
			return g.s.errorFor("C116", st.Pos, "unknown action %q", st.Action)
		}
	}
	return nil
}

// Apply runs one step. A failed expectation is returned as failure and the
// scenario may go on; err means the step could not be carried out.
func (g *Graph) Apply(st Step) (failure, err error) {
	g.opts.logger.Debug("scenario: step",
		"scenario", g.s.Name,
		"line", st.Line,
		"action", st.Action,
		"target", st.Target)

	switch st.Action {
	case ActionSet:
		return nil, g.set(st, st.Value)

	case ActionAdd:
		cur, err := g.Catalog.Value(st.Target)
		if err != nil {
			return nil, g.s.errorFor("C112", st.Pos, "%v", err)
		}
		sum, ok := add(cur, st.Value)
		if !ok {
			return nil, g.s.errorFor("C115", st.Pos, "add %v to %q holding %v", st.Value, st.Target, cur)
		}
		return nil, g.set(st, sum)

	case ActionTrig:
		times := st.Times
		if times <= 0 {
			times = 1
		}
		p := g.pulses[st.Target]
		for i := 0; i < times; i++ {
			p.Trig()
		}

	case ActionReset:
		g.pulses[st.Target].Reset()

	case ActionDispose:
		if h := g.hosts[st.Target]; h != nil {
			h.Dispose()
		} else {
			g.derived[st.Target].Dispose()
		}

	case ActionDisconnect:
		if w := g.watches[st.Target]; w != nil {
			w.conn.Disconnect()
			return nil, nil
		}
		var host cell.Host
		if st.Host != "" {
			host = g.hosts[st.Host]
		}
		var key any
		if st.Watch != "" {
			key = watchKey(st.Watch)
		}
		n := g.disconnect(st.Target, host, key)
		g.opts.logger.Debug("scenario: disconnected", "cell", st.Target, "removed", n)

	case ActionSignal:
		on := st.Value.(bool)
		switch {
		case g.cells[st.Target] != nil:
			g.cells[st.Target].EnableSignal(on)
		case g.derived[st.Target] != nil:
			g.derived[st.Target].EnableSignal(on)
		default:
			g.pulses[st.Target].EnableSignal(on)
		}

	case ActionExpect:
		return g.expect(st), nil

	case ActionLog:
		got := slices.Clone(g.log[g.cursor:])
		g.cursor = len(g.log)
		if !slices.Equal(got, st.Log) {
			return g.s.errorFor("C121", st.Pos, "want %q, got %q", st.Log, got), nil
		}
	}
	return nil, nil
}

func (g *Graph) set(st Step, v any) error {
	err := g.Catalog.Set(st.Target, v)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, catalog.ErrReadOnly):
		return g.s.errorFor("C116", st.Pos, "%q is derived and cannot be set", st.Target)
	case stderrors.Is(err, catalog.ErrTypeMismatch):
		return g.s.errorFor("C115", st.Pos, "%v", err).Wrap(err)
	default:
		return g.s.errorFor("C116", st.Pos, "%v", err).Wrap(err)
	}
}

func (g *Graph) disconnect(name string, host cell.Host, key any) int {
	switch {
	case g.cells[name] != nil:
		return g.cells[name].Disconnect(host, key)
	case g.derived[name] != nil:
		return g.derived[name].Disconnect(host, key)
	case g.pulses[name] != nil:
		return g.pulses[name].Disconnect(host, key)
	}
	return 0
}

func (g *Graph) expect(st Step) error {
	if st.HasValue {
		got, err := g.Catalog.Value(st.Target)
		if err != nil {
			return g.s.errorFor("C112", st.Pos, "%v", err)
		}
		if !equal(st.Value, got) {
			return g.s.errorFor("C120", st.Pos, "%s = %s, want %s", st.Target, format(got), format(st.Value))
		}
	}
	if st.Error != nil {
		recErr := g.derived[st.Target].Err()
		if (recErr != nil) != *st.Error {
			return g.s.errorFor("C122", st.Pos, "%s error = %v, want error: %t", st.Target, recErr, *st.Error)
		}
	}
	return nil
}

func add(cur, delta any) (any, bool) {
	if _, _, ok := number(cur); !ok {
		return nil, false
	}
	if _, _, ok := number(delta); !ok {
		return nil, false
	}
	return numeric("add", []any{cur, delta}, 0, func(acc, x float64) float64 { return acc + x }), true
}

// Pulse returns the pulse declared under name.
func (g *Graph) Pulse(name string) (*cell.Pulse, bool) {
	p, ok := g.pulses[name]
	return p, ok
}

// Log returns every notification recorded so far.
func (g *Graph) Log() []string {
	return slices.Clone(g.log)
}

// Close disposes every host and disconnects every derived cell.
func (g *Graph) Close() {
	g.root.Dispose()
	for _, d := range g.derived {
		d.Dispose()
	}
	for _, d := range g.adapters {
		d.Dispose()
	}
}
