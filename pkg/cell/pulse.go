package cell

// Pulse is a counter cell used as a payload-less "do it now" event. Every
// Trig increments the counter by one, so it always passes change detection
// and always notifies.
type Pulse struct {
	*Cell[int]
}

// NewPulse creates a pulse at zero.
func NewPulse(opts ...Option) *Pulse {
	return &Pulse{Cell: New(0, opts...)}
}

// Trig fires the pulse.
func (p *Pulse) Trig() {
	p.Cell.Set(p.Cell.Get() + 1)
}

// TrigTimes returns how many times the pulse fired since creation or the
// last Reset.
func (p *Pulse) TrigTimes() int {
	return p.Cell.Get()
}

// Reset sets the counter back to zero. Subscribers are notified if the
// counter was non-zero.
func (p *Pulse) Reset() {
	p.Cell.Set(0)
}

// Set accepts 0 (a reset) or a value not below the current count. Anything
// else would make the counter go backwards and is ignored.
func (p *Pulse) Set(n int) {
	if n != 0 && n < p.Cell.Get() {
		p.log().Warn("cell: pulse counter cannot decrease",
			"cell", p.String(),
			"current", p.Cell.Get(),
			"requested", n)
		return
	}
	p.Cell.Set(n)
}

// Update applies fn under the same rule as Set.
func (p *Pulse) Update(fn func(int) int) {
	p.Set(fn(p.Cell.Get()))
}

// OnTrig connects fn to the pulse, ignoring the counter. The callback
// identity is fn itself, so Disconnect(nil, fn) with the same func value
// removes it.
func (p *Pulse) OnTrig(fn func(), opts ...ConnectOption) *Connection {
	if fn == nil {
		return nil
	}
	opts = append([]ConnectOption{WithKey(fn)}, opts...)
	return p.Connect(func(int) { fn() }, opts...)
}
