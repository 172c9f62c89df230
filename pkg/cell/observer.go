package cell

// Channel identifies one of the two notification streams of a cell.
type Channel uint8

const (
	// Changed callbacks receive the new value.
	Changed Channel = iota

	// Activated callbacks receive the new and the previous value.
	Activated
)

// String returns a human-readable name for the channel.
func (ch Channel) String() string {
	switch ch {
	case Changed:
		return "changed"
	case Activated:
		return "activated"
	default:
		return "unknown"
	}
}

// DispatchInfo describes one channel dispatch.
type DispatchInfo struct {
	CellID uint64

	// Name is the label given with Named, empty for unnamed cells.
	Name        string
	Channel     Channel
	Subscribers int
}

// Observer receives instrumentation callbacks from cells. Implementations
// live in the metrics and tracing packages.
//
// BeginDispatch is called before the subscribers of a channel run; the
// returned function is called after the last one returns. Dispatches nest
// along the synchronous cascade.
type Observer interface {
	BeginDispatch(info DispatchInfo) (end func())

	// RecomputeFailed receives the derived cell's Named label (possibly
	// empty) and the *RecomputeError.
	RecomputeFailed(name string, err error)
}

type nopObserver struct{}

func (nopObserver) BeginDispatch(DispatchInfo) func() {
	return func() {}
}

func (nopObserver) RecomputeFailed(string, error) {}

// defaultObserver is used by cells created without WithObserver.
var defaultObserver Observer = nopObserver{}

// SetObserver sets the observer used by cells that were not given one.
// Passing nil restores the no-op observer.
func SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	defaultObserver = o
}

// Observers fans callbacks out to several observers in order.
func Observers(obs ...Observer) Observer {
	filtered := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

type multiObserver []Observer

func (m multiObserver) BeginDispatch(info DispatchInfo) func() {
	ends := make([]func(), len(m))
	for i, o := range m {
		ends[i] = o.BeginDispatch(info)
	}
	return func() {
		// Close in reverse so nested spans unwind correctly.
		for i := len(ends) - 1; i >= 0; i-- {
			ends[i]()
		}
	}
}

func (m multiObserver) RecomputeFailed(name string, err error) {
	for _, o := range m {
		o.RecomputeFailed(name, err)
	}
}
