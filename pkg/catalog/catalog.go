// Package catalog gives cells names so that tools can read and write them
// without knowing their types: the inspector, the scenario runner and
// snapshot persistence all work through a Catalog.
//
// A Catalog is not safe for concurrent use. Like the cells it holds, it
// belongs to one goroutine; use a loop.Loop to reach it from others.
package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/vango-dev/cellkit/pkg/cell"
)

var (
	// ErrUnknownCell is returned for names that are not in the catalog.
	ErrUnknownCell = errors.New("catalog: unknown cell")

	// ErrTypeMismatch is returned when a value cannot be converted to the
	// cell's type.
	ErrTypeMismatch = errors.New("catalog: type mismatch")

	// ErrDuplicate is returned when a name is added twice.
	ErrDuplicate = errors.New("catalog: duplicate name")

	// ErrReadOnly is returned when setting a derived cell.
	ErrReadOnly = errors.New("catalog: cell is read-only")
)

// Kind classifies catalog entries.
type Kind string

const (
	KindCell    Kind = "cell"
	KindDerived Kind = "derived"
	KindPulse   Kind = "pulse"
)

// Change is delivered to catalog watchers.
type Change struct {
	Name  string
	Value any
}

// Entry is a named, type-erased cell.
type Entry interface {
	// Name returns the catalog name.
	Name() string

	// Kind reports what sort of cell backs the entry.
	Kind() Kind

	// Type returns the Go type of the cell's values.
	Type() reflect.Type

	// GetAny returns the current value with spread elements resolved.
	GetAny() any

	// SetAny converts v to the cell's type and sets it.
	SetAny(v any) error

	// Transient entries are left out of snapshots.
	Transient() bool

	// Watch connects fn to the Changed channel of the cell.
	Watch(fn func(v any), host cell.Host) *cell.Connection
}

// EntryOption configures an entry when it is added.
type EntryOption func(*entryOptions)

type entryOptions struct {
	transient bool
}

// Transient leaves the entry out of Snapshot and Restore.
func Transient() EntryOption {
	return func(o *entryOptions) {
		o.transient = true
	}
}

func applyEntryOptions(opts []EntryOption) entryOptions {
	var o entryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type watcher struct {
	fn   func(Change)
	host cell.Host
	id   int
}

// Catalog maps names to cells.
type Catalog struct {
	entries  map[string]Entry
	watchers []*watcher
	nextID   int
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Add registers a writable cell under name.
func Add[T any](cat *Catalog, name string, c *cell.Cell[T], opts ...EntryOption) error {
	o := applyEntryOptions(opts)
	return cat.register(&cellEntry[T]{name: name, c: c, kind: KindCell, transient: o.transient})
}

// AddDerived registers a derived cell. It can be read and watched but not
// set, and it is never part of a snapshot.
func AddDerived[T any](cat *Catalog, name string, d *cell.Derived[T]) error {
	return cat.register(&cellEntry[T]{name: name, c: d.Cell, kind: KindDerived, transient: true})
}

// AddPulse registers a pulse. Setting it with nil triggers it; an integer
// sets the counter. Pulses are never part of a snapshot.
func AddPulse(cat *Catalog, name string, p *cell.Pulse) error {
	return cat.register(&pulseEntry{cellEntry: cellEntry[int]{name: name, c: p.Cell, kind: KindPulse, transient: true}, p: p})
}

func (c *Catalog) register(e Entry) error {
	if e.Name() == "" {
		return errors.New("catalog: empty name")
	}
	if _, exists := c.entries[e.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.Name())
	}
	c.entries[e.Name()] = e
	for _, w := range c.watchers {
		c.attach(e, w)
	}
	return nil
}

// Get returns the entry registered under name.
func (c *Catalog) Get(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value returns the current value of the named cell.
func (c *Catalog) Value(name string) (any, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCell, name)
	}
	return e.GetAny(), nil
}

// Set converts v to the named cell's type and sets it.
func (c *Catalog) Set(name string, v any) error {
	e, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCell, name)
	}
	if err := e.SetAny(v); err != nil {
		return fmt.Errorf("catalog: set %s: %w", name, err)
	}
	return nil
}

// Snapshot returns the values of all non-transient entries.
func (c *Catalog) Snapshot() map[string]any {
	snap := make(map[string]any, len(c.entries))
	for name, e := range c.entries {
		if e.Transient() {
			continue
		}
		snap[name] = e.GetAny()
	}
	return snap
}

// Restore sets every non-transient entry named in values, in name order.
// Unknown and transient names are skipped. Conversion failures do not stop
// the restore; they are returned joined.
func (c *Catalog) Restore(values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		e, ok := c.entries[name]
		if !ok || e.Transient() {
			continue
		}
		if err := e.SetAny(values[name]); err != nil {
			errs = append(errs, fmt.Errorf("catalog: restore %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Watch calls fn with every change of every entry, including entries added
// later. When host is non-nil the watch ends with it.
func (c *Catalog) Watch(fn func(Change), host cell.Host) {
	if fn == nil {
		return
	}
	c.nextID++
	w := &watcher{fn: fn, host: host, id: c.nextID}
	c.watchers = append(c.watchers, w)

	for _, name := range c.Names() {
		c.attach(c.entries[name], w)
	}

	if host != nil {
		host.OnCleanup(func() {
			c.removeWatcher(w.id)
		})
	}
}

func (c *Catalog) attach(e Entry, w *watcher) {
	name := e.Name()
	e.Watch(func(v any) {
		w.fn(Change{Name: name, Value: v})
	}, w.host)
}

func (c *Catalog) removeWatcher(id int) {
	kept := c.watchers[:0:0]
	for _, w := range c.watchers {
		if w.id != id {
			kept = append(kept, w)
		}
	}
	c.watchers = kept
}

type cellEntry[T any] struct {
	name      string
	c         *cell.Cell[T]
	kind      Kind
	transient bool
}

func (e *cellEntry[T]) Name() string {
	return e.name
}

func (e *cellEntry[T]) Kind() Kind {
	return e.kind
}

func (e *cellEntry[T]) Type() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (e *cellEntry[T]) GetAny() any {
	return cell.Unspread(any(e.c.Get()))
}

func (e *cellEntry[T]) SetAny(v any) error {
	if e.kind == KindDerived {
		return ErrReadOnly
	}
	out, err := Convert[T](v)
	if err != nil {
		return err
	}
	e.c.Set(out)
	return nil
}

func (e *cellEntry[T]) Transient() bool {
	return e.transient
}

func (e *cellEntry[T]) Watch(fn func(v any), host cell.Host) *cell.Connection {
	return e.c.Connect(func(v T) {
		fn(cell.Unspread(any(v)))
	}, cell.WithHost(host), cell.WithKey(new(int)))
}

type pulseEntry struct {
	cellEntry[int]
	p *cell.Pulse
}

func (e *pulseEntry) SetAny(v any) error {
	if v == nil {
		e.p.Trig()
		return nil
	}
	n, err := Convert[int](v)
	if err != nil {
		return err
	}
	e.p.Set(n)
	return nil
}
