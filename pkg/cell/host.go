package cell

import "reflect"

// Host is anything whose lifetime bounds a connection. The cell registers a
// teardown hook through OnCleanup; the host must call it when it is destroyed.
// Hosts are compared by identity, so implementations should be pointers.
type Host interface {
	OnCleanup(fn func())
}

// comparableHost reports whether h can serve as a map key. A nil host is
// comparable.
func comparableHost(h Host) bool {
	return h == nil || reflect.TypeOf(h).Comparable()
}

// Owner is a disposable scope and the standard Host. Owners form a hierarchy
// mirroring the widget tree: disposing an owner disposes its children first,
// then runs its own cleanups in reverse registration order.
//
// Owner is not safe for concurrent use. It belongs to the thread that owns the
// cells, like everything else in this package.
type Owner struct {
	id       uint64
	parent   *Owner
	children []*Owner
	cleanups []func()
	disposed bool
}

// NewOwner creates an owner. When parent is non-nil the new owner is
// registered as its child and is disposed with it.
func NewOwner(parent *Owner) *Owner {
	o := &Owner{
		id:     nextID(),
		parent: parent,
	}
	if parent != nil {
		if parent.disposed {
			o.disposed = true
		} else {
			parent.children = append(parent.children, o)
		}
	}
	return o
}

// ID returns the unique identifier for this owner.
func (o *Owner) ID() uint64 {
	return o.id
}

// Parent returns the parent owner, or nil for a root.
func (o *Owner) Parent() *Owner {
	return o.parent
}

// IsDisposed returns true once Dispose has run.
func (o *Owner) IsDisposed() bool {
	return o.disposed
}

// OnCleanup registers fn to run at disposal. On an owner that is already
// disposed fn runs immediately.
func (o *Owner) OnCleanup(fn func()) {
	if fn == nil {
		return
	}
	if o.disposed {
		fn()
		return
	}
	o.cleanups = append(o.cleanups, fn)
}

// Dispose disposes children in reverse creation order, then runs cleanups in
// reverse registration order. Calling it again does nothing.
func (o *Owner) Dispose() {
	if o.disposed {
		return
	}
	o.disposed = true

	if o.parent != nil {
		o.parent.removeChild(o)
	}

	children := o.children
	o.children = nil
	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	cleanups := o.cleanups
	o.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func (o *Owner) removeChild(child *Owner) {
	for i, c := range o.children {
		if c == child {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return
		}
	}
}
