package cell

// binding is one registered callback on one channel.
type binding[T any] struct {
	id        uint64
	host      Host
	key       any
	changed   func(T)
	activated func(T, T)
}

// registry stores a cell's connections per channel, in registration order.
type registry[T any] struct {
	lists [2][]*binding[T]

	// hooked records hosts that already carry a teardown hook for this
	// registry, so each host registers at most one.
	hooked map[Host]struct{}
}

func (r *registry[T]) add(ch Channel, b *binding[T]) {
	r.lists[ch] = append(r.lists[ch], b)
}

// snapshot copies the subscriber list of ch. Dispatch iterates the copy, so
// callbacks may mutate the registry freely.
func (r *registry[T]) snapshot(ch Channel) []*binding[T] {
	list := r.lists[ch]
	if len(list) == 0 {
		return nil
	}
	snap := make([]*binding[T], len(list))
	copy(snap, list)
	return snap
}

// removeWhere drops every binding on ch accepted by match and returns how many
// were dropped. A new backing array is built so snapshots are never aliased.
func (r *registry[T]) removeWhere(ch Channel, match func(*binding[T]) bool) int {
	list := r.lists[ch]
	removed := 0
	for _, b := range list {
		if match(b) {
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	kept := make([]*binding[T], 0, len(list)-removed)
	for _, b := range list {
		if !match(b) {
			kept = append(kept, b)
		}
	}
	r.lists[ch] = kept
	return removed
}

// removeAll applies removeWhere to both channels.
func (r *registry[T]) removeAll(match func(*binding[T]) bool) int {
	return r.removeWhere(Changed, match) + r.removeWhere(Activated, match)
}

func (r *registry[T]) contains(ch Channel, id uint64) bool {
	for _, b := range r.lists[ch] {
		if b.id == id {
			return true
		}
	}
	return false
}

func (r *registry[T]) count(ch Channel) int {
	return len(r.lists[ch])
}

// matchFilter accepts bindings matching host and key. A nil host or key is a
// wildcard.
func matchFilter[T any](host Host, key any) func(*binding[T]) bool {
	return func(b *binding[T]) bool {
		if host != nil && b.host != host {
			return false
		}
		if key != nil && !keyMatches(b.key, key) {
			return false
		}
		return true
	}
}

// Connection is the handle returned by Connect and friends.
type Connection struct {
	id      uint64
	channel Channel
	drop    func(id uint64) bool
	alive   func(id uint64) bool
}

// Disconnect removes this connection. It reports whether the connection was
// still registered.
func (c *Connection) Disconnect() bool {
	if c == nil || c.drop == nil {
		return false
	}
	return c.drop(c.id)
}

// Connected reports whether the connection is still registered.
func (c *Connection) Connected() bool {
	if c == nil || c.alive == nil {
		return false
	}
	return c.alive(c.id)
}

// Channel returns the channel the connection listens on.
func (c *Connection) Channel() Channel {
	return c.channel
}
