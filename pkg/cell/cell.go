package cell

import (
	"fmt"
	"log/slog"
)

// Cell is a reactive value container. Set stores a value and, when it
// differs from the stored one, notifies the Changed channel with the new value
// and then the Activated channel with the new and previous values.
//
// Notification is synchronous: Set returns after every dependent cell and
// callback has run.
type Cell[T any] struct {
	id    uint64
	name  string
	value T

	signal    bool
	sensitive bool
	spread    bool

	fallback    T
	hasFallback bool

	// equal overrides the default change detection when non-nil.
	equal func(T, T) bool

	conns registry[T]

	observer Observer
	logger   *slog.Logger
}

// New creates a cell holding initial. A cell passed as initial is unwrapped;
// with Spread the value is normalized once.
func New[T any](initial T, opts ...Option) *Cell[T] {
	o := applyOptions(opts)
	c := &Cell[T]{
		id:        nextID(),
		name:      o.name,
		signal:    !o.silent,
		sensitive: o.sensitive,
		spread:    o.spread,
		observer:  o.observer,
		logger:    o.logger,
	}
	c.value = c.normalize(Unwrap(initial))
	return c
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	return c.value
}

// Set stores v and notifies subscribers if it changed. A cell passed as v is
// unwrapped first, a nil v is replaced by the fallback when one is set, and
// spread cells box container elements before comparing.
//
// With the signal disabled the value is stored silently. A sensitive cell
// notifies even when the value is equal.
func (c *Cell[T]) Set(v T) {
	v = Unwrap(v)
	if c.hasFallback && isNil(any(v)) {
		v = c.fallback
	}
	v = c.normalize(v)

	prev := c.value
	changed := !c.equals(prev, v)
	if !changed && c.spread && !c.sensitive {
		// Keep the element cells already handed out to subscribers.
		return
	}
	c.value = v

	if (changed || c.sensitive) && c.signal {
		c.notify(v, prev)
	}
}

// SetFrom stores the current value of in.
func (c *Cell[T]) SetFrom(in Input[T]) {
	if in == nil {
		return
	}
	c.Set(in.Get())
}

// Update stores fn applied to the current value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.value))
}

// WithFallback configures the value substituted whenever Set receives nil.
func (c *Cell[T]) WithFallback(v T) *Cell[T] {
	c.fallback = v
	c.hasFallback = true
	return c
}

// WithEquals configures a custom equality function for change detection.
func (c *Cell[T]) WithEquals(fn func(T, T) bool) *Cell[T] {
	c.equal = fn
	return c
}

// EnableSignal turns notification on or off and returns the previous state.
// Values set while the signal is off are stored without notifying.
func (c *Cell[T]) EnableSignal(on bool) bool {
	prev := c.signal
	c.signal = on
	return prev
}

// SignalEnabled reports whether Set notifies subscribers.
func (c *Cell[T]) SignalEnabled() bool {
	return c.signal
}

// IsSensitive reports whether the cell notifies on equal values.
func (c *Cell[T]) IsSensitive() bool {
	return c.sensitive
}

// IsSpread reports whether container values are boxed element-wise.
func (c *Cell[T]) IsSpread() bool {
	return c.spread
}

// ID returns the unique identifier for this cell.
func (c *Cell[T]) ID() uint64 {
	return c.id
}

// Name returns the label given with Named, or "".
func (c *Cell[T]) Name() string {
	return c.name
}

// String returns the name, or "cell#<id>" for unnamed cells.
func (c *Cell[T]) String() string {
	if c.name != "" {
		return c.name
	}
	return fmt.Sprintf("cell#%d", c.id)
}

// Connect registers fn on the Changed channel.
func (c *Cell[T]) Connect(fn func(T), opts ...ConnectOption) *Connection {
	if fn == nil {
		return nil
	}
	o := applyConnectOptions(fn, opts)
	return c.connect(Changed, &binding[T]{changed: fn}, o)
}

// ActConnect registers fn on the Activated channel. fn receives the new value
// followed by the previous one.
func (c *Cell[T]) ActConnect(fn func(T, T), opts ...ConnectOption) *Connection {
	if fn == nil {
		return nil
	}
	o := applyConnectOptions(fn, opts)
	return c.connect(Activated, &binding[T]{activated: fn}, o)
}

// UniqueConnect registers fn on the Changed channel after removing every
// Changed connection with the same callback identity, whatever its host.
func (c *Cell[T]) UniqueConnect(fn func(T), opts ...ConnectOption) *Connection {
	if fn == nil {
		return nil
	}
	o := applyConnectOptions(fn, opts)
	if o.key != nil {
		c.conns.removeWhere(Changed, matchFilter[T](nil, o.key))
	}
	return c.connect(Changed, &binding[T]{changed: fn}, o)
}

// UniqueBind connects fn with a bound argument. At most one binding per fn
// exists on c: rebinding replaces the previous one, which is what per-index
// callbacks need after rows shift. All closures of one function literal count
// as the same fn here.
//
//	for i := range rows {
//	    cell.UniqueBind(selected, renderRow, i)
//	}
func UniqueBind[T, A any](c *Cell[T], fn func(T, A), arg A, opts ...ConnectOption) *Connection {
	if fn == nil {
		return nil
	}
	opts = append([]ConnectOption{WithKey(codeKey(fn))}, opts...)
	return c.UniqueConnect(func(v T) { fn(v, arg) }, opts...)
}

// Disconnect removes connections on both channels. A nil host or callback is
// a wildcard: both given match both, one given matches that one, none removes
// everything. callback is either the function that was connected or the key
// given with WithKey. It returns the number removed; no match is not an
// error.
func (c *Cell[T]) Disconnect(host Host, callback any) int {
	if !comparableHost(host) {
		return 0
	}
	return c.conns.removeAll(matchFilter[T](host, callbackKey(callback)))
}

// ConnectionCount returns the number of connections on ch.
func (c *Cell[T]) ConnectionCount(ch Channel) int {
	return c.conns.count(ch)
}

func (c *Cell[T]) connect(ch Channel, b *binding[T], o connectOptions) *Connection {
	if !comparableHost(o.host) {
		c.log().Warn("cell: connection refused, host is not comparable",
			"cell", c.String(),
			"host", fmt.Sprintf("%T", o.host))
		return nil
	}
	if o.once {
		c.conns.removeWhere(ch, func(existing *binding[T]) bool {
			return existing.host == o.host && existing.key == o.key
		})
	}

	b.id = nextID()
	b.host = o.host
	b.key = o.key
	c.conns.add(ch, b)

	conn := &Connection{
		id:      b.id,
		channel: ch,
		drop: func(id uint64) bool {
			return c.conns.removeWhere(ch, func(existing *binding[T]) bool {
				return existing.id == id
			}) > 0
		},
		alive: func(id uint64) bool {
			return c.conns.contains(ch, id)
		},
	}

	if o.host != nil {
		c.hookHost(o.host)
	}
	return conn
}

// hookHost installs one teardown hook per host. A host that is already
// disposed runs the hook at once, leaving no connection behind.
func (c *Cell[T]) hookHost(h Host) {
	if _, ok := c.conns.hooked[h]; ok {
		return
	}
	if c.conns.hooked == nil {
		c.conns.hooked = make(map[Host]struct{})
	}
	c.conns.hooked[h] = struct{}{}

	h.OnCleanup(func() {
		delete(c.conns.hooked, h)
		c.conns.removeAll(matchFilter[T](h, nil))
	})
}

// notify dispatches to both channels. Both subscriber lists are captured
// before any callback runs.
func (c *Cell[T]) notify(v, prev T) {
	changed := c.conns.snapshot(Changed)
	activated := c.conns.snapshot(Activated)

	if len(changed) > 0 {
		c.dispatchChanged(changed, v)
	}
	if len(activated) > 0 {
		c.dispatchActivated(activated, v, prev)
	}
}

// The dispatch is closed on the observer even when a subscriber panics.
func (c *Cell[T]) dispatchChanged(list []*binding[T], v T) {
	defer c.beginDispatch(Changed, len(list))()
	for _, b := range list {
		b.changed(v)
	}
}

func (c *Cell[T]) dispatchActivated(list []*binding[T], v, prev T) {
	defer c.beginDispatch(Activated, len(list))()
	for _, b := range list {
		b.activated(v, prev)
	}
}

func (c *Cell[T]) beginDispatch(ch Channel, n int) func() {
	return c.obs().BeginDispatch(DispatchInfo{
		CellID:      c.id,
		Name:        c.name,
		Channel:     ch,
		Subscribers: n,
	})
}

func (c *Cell[T]) obs() Observer {
	if c.observer != nil {
		return c.observer
	}
	return defaultObserver
}

func (c *Cell[T]) log() *slog.Logger {
	return resolveLogger(c.logger)
}

func (c *Cell[T]) equals(a, b T) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	if c.spread {
		return spreadEquals(any(a), any(b))
	}
	return defaultEquals(a, b)
}

// normalize boxes container elements when the cell is spread. Values whose
// type cannot hold boxed elements are left alone.
func (c *Cell[T]) normalize(v T) T {
	if !c.spread {
		return v
	}
	if out, ok := spreadValue(any(v)).(T); ok {
		return out
	}
	return v
}

// watch implements Input.
func (c *Cell[T]) watch(fn func(), host Host) bool {
	c.Connect(func(T) { fn() }, WithHost(host), WithKey(&fn))
	return true
}

// identity implements Input.
func (c *Cell[T]) identity() any {
	return c
}

func (c *Cell[T]) getAny() any {
	return c.value
}
