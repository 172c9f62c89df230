package cell

// Derived is a cell whose value is a pure function of its sources. On every
// source change it re-reads all sources and stores the result with Set, so
// the value never depends on which source changed or in which order sources
// were given.
//
// A panic in the function is recovered: it is logged, reported to the
// Observer and kept in Err, and the previous value stays in place.
//
// Re-evaluation runs once per source notification. There is no batching: when
// two sources change because of one upstream Set, the derived cell evaluates
// twice and the first evaluation may see one source already updated and the
// other not yet.
type Derived[T any] struct {
	*Cell[T]

	eval  func() T
	owner *Owner
	err   error
}

// source is the part of Input that derive needs without knowing its type.
type source interface {
	watch(fn func(), host Host) bool
	identity() any
}

func derive[T any](eval func() T, sources []source, opts []Option) *Derived[T] {
	var zero T
	d := &Derived[T]{
		Cell:  New(zero, opts...),
		eval:  eval,
		owner: NewOwner(nil),
	}

	if v, err := d.evaluate(); err != nil {
		d.fail(err)
	} else {
		d.Cell.value = d.Cell.normalize(Unwrap(v))
	}

	seen := make(map[any]struct{}, len(sources))
	for _, s := range sources {
		if s == nil {
			continue
		}
		id := s.identity()
		if id == nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		s.watch(d.Recompute, d.owner)
	}
	return d
}

// Derive1 derives a cell from one source.
func Derive1[A, T any](a Input[A], fn func(A) T, opts ...Option) *Derived[T] {
	return derive(func() T {
		return fn(a.Get())
	}, []source{a}, opts)
}

// Derive2 derives a cell from two sources.
func Derive2[A, B, T any](a Input[A], b Input[B], fn func(A, B) T, opts ...Option) *Derived[T] {
	return derive(func() T {
		return fn(a.Get(), b.Get())
	}, []source{a, b}, opts)
}

// Derive3 derives a cell from three sources.
func Derive3[A, B, C, T any](a Input[A], b Input[B], c Input[C], fn func(A, B, C) T, opts ...Option) *Derived[T] {
	return derive(func() T {
		return fn(a.Get(), b.Get(), c.Get())
	}, []source{a, b, c}, opts)
}

// DeriveN derives a cell from any number of sources of one type. fn receives
// a fresh slice on every evaluation.
func DeriveN[S, T any](fn func([]S) T, sources ...Input[S]) *Derived[T] {
	return DeriveNWith(fn, nil, sources...)
}

// DeriveNWith is DeriveN with cell options.
func DeriveNWith[S, T any](fn func([]S) T, opts []Option, sources ...Input[S]) *Derived[T] {
	srcs := make([]source, len(sources))
	for i, s := range sources {
		srcs[i] = s
	}
	return derive(func() T {
		vals := make([]S, len(sources))
		for i, s := range sources {
			if s != nil {
				vals[i] = s.Get()
			}
		}
		return fn(vals)
	}, srcs, opts)
}

// Recompute evaluates the function over the current source values and stores
// the result. It runs automatically on source changes.
func (d *Derived[T]) Recompute() {
	v, err := d.evaluate()
	if err != nil {
		d.fail(err)
		return
	}
	d.err = nil
	d.Set(v)
}

// Err returns the failure of the latest evaluation, or nil if it succeeded.
func (d *Derived[T]) Err() error {
	return d.err
}

// Dispose disconnects the cell from its sources. Its value stays frozen
// unless set explicitly.
func (d *Derived[T]) Dispose() {
	d.owner.Dispose()
}

func (d *Derived[T]) evaluate() (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RecomputeError{Cell: d.String(), Value: r}
		}
	}()
	return d.eval(), nil
}

func (d *Derived[T]) fail(err error) {
	d.err = err
	d.log().Error("cell: recompute failed, keeping previous value",
		"cell", d.String(),
		"error", err)
	d.obs().RecomputeFailed(d.name, err)
}
