package cell

import (
	"reflect"
	"unsafe"
)

// Input is either a constant or a reactive cell. It is the argument type of
// the Derive constructors and SetFrom, letting plain values and cells be mixed
// freely. Input is sealed: *Cell[T], *Derived[T], *Pulse (for int) and Const
// are its only implementations.
type Input[T any] interface {
	// Get returns the current resolved value.
	Get() T

	// watch subscribes fn to changes under host. Constants do nothing and
	// return false.
	watch(fn func(), host Host) bool

	// identity is the underlying *Cell for reactive inputs and nil for
	// constants.
	identity() any
}

type constant[T any] struct {
	v T
}

// Const returns an Input that never changes.
func Const[T any](v T) Input[T] {
	return constant[T]{v: v}
}

func (c constant[T]) Get() T {
	return c.v
}

func (constant[T]) watch(func(), Host) bool {
	return false
}

func (constant[T]) identity() any {
	return nil
}

// IsReactive reports whether in is backed by a cell.
func IsReactive[T any](in Input[T]) bool {
	return in != nil && in.identity() != nil
}

// Unwrap resolves v when it is itself a cell and returns it unchanged
// otherwise. It matters for dynamically typed cells (T = any), where a cell
// of any element type may be handed in where a value is expected.
func Unwrap[T any](v T) T {
	if in, ok := any(v).(Input[T]); ok {
		return in.Get()
	}
	if r, ok := any(v).(anyGetter); ok {
		if out, ok := r.getAny().(T); ok {
			return out
		}
	}
	return v
}

// anyGetter is implemented by every reactive cell whatever its element type.
type anyGetter interface {
	getAny() any
}

// isNil reports whether v is nil or a nil pointer, map, slice, func, chan or
// interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// funcID identifies a callback function value by its closure object. Two
// evaluations of a method value or of a capturing function literal are
// distinct closures; the same variable passed twice is one.
type funcID struct {
	closure unsafe.Pointer
	code    uintptr
}

// codeID identifies every closure built from one function literal or method.
type codeID uintptr

// invalidKey stands in for a key that cannot be compared. Each instance is
// unique, so it never matches anything.
type invalidKey struct{ _ byte }

// callbackKey returns the identity of a callback. Functions are identified by
// their closure object; any other comparable value is its own identity.
func callbackKey(fn any) any {
	if fn == nil {
		return nil
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		if !rv.Type().Comparable() {
			return new(invalidKey)
		}
		return fn
	}
	if rv.IsNil() {
		return nil
	}
	return funcID{closure: closurePointer(fn), code: rv.Pointer()}
}

// codeKey returns the code-pointer identity of fn, shared by all its closures.
func codeKey(fn any) any {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return callbackKey(fn)
	}
	return codeID(rv.Pointer())
}

// closurePointer returns the data word of the interface holding fn. A func
// value is pointer shaped, so the word is its closure object.
func closurePointer(fn any) unsafe.Pointer {
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&fn))[1]
}

// keyMatches reports whether a binding key is selected by query. A function
// query also selects bindings keyed by its code pointer.
func keyMatches(key, query any) bool {
	if key == query {
		return true
	}
	if q, ok := query.(funcID); ok {
		if k, ok := key.(codeID); ok {
			return uintptr(k) == q.code
		}
	}
	return false
}
