package cell

import "fmt"

// recorder collects notifications for assertions.
type recorder[T any] struct {
	values []T
	prevs  []T
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{}
}

func (r *recorder[T]) changed(v T) {
	r.values = append(r.values, v)
}

func (r *recorder[T]) activated(v, prev T) {
	r.values = append(r.values, v)
	r.prevs = append(r.prevs, prev)
}

func (r *recorder[T]) count() int {
	return len(r.values)
}

// testObserver records dispatch nesting and recompute failures.
type testObserver struct {
	events   []string
	failures []error
}

func (o *testObserver) BeginDispatch(info DispatchInfo) func() {
	o.events = append(o.events, fmt.Sprintf("begin %s %s %d", info.Name, info.Channel, info.Subscribers))
	return func() {
		o.events = append(o.events, fmt.Sprintf("end %s %s", info.Name, info.Channel))
	}
}

func (o *testObserver) RecomputeFailed(name string, err error) {
	o.failures = append(o.failures, err)
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
