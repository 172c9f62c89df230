package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Convert turns v into a T. Values already assignable pass through; numbers
// convert between numeric kinds when no precision is lost (decoded JSON holds
// float64); anything else is re-decoded through JSON, which covers structs,
// typed slices and maps coming from a generic decoder.
func Convert[T any](v any) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()

	out, err := convertValue(v, t)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

func convertValue(v any, t reflect.Type) (any, error) {
	if v == nil {
		if nilable(t.Kind()) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: nil for %s", ErrTypeMismatch, t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out.Interface(), nil
	}

	if isNumber(rv.Kind()) && isNumber(t.Kind()) {
		return convertNumber(rv, t)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T for %s", ErrTypeMismatch, v, t)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(b, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %T for %s: %v", ErrTypeMismatch, v, t, err)
	}
	return ptr.Elem().Interface(), nil
}

func convertNumber(rv reflect.Value, t reflect.Type) (any, error) {
	out := reflect.New(t).Elem()

	switch {
	case isInt(t.Kind()):
		var n int64
		switch {
		case isFloat(rv.Kind()):
			f := rv.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, f)
			}
			n = int64(f)
		case isUint(rv.Kind()):
			u := rv.Uint()
			if u > math.MaxInt64 {
				return nil, fmt.Errorf("%w: %v overflows %s", ErrTypeMismatch, u, t)
			}
			n = int64(u)
		default:
			n = rv.Int()
		}
		if out.OverflowInt(n) {
			return nil, fmt.Errorf("%w: %v overflows %s", ErrTypeMismatch, n, t)
		}
		out.SetInt(n)

	case isUint(t.Kind()):
		var u uint64
		switch {
		case isFloat(rv.Kind()):
			f := rv.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return nil, fmt.Errorf("%w: %v is not an unsigned integer", ErrTypeMismatch, f)
			}
			u = uint64(f)
		case isInt(rv.Kind()):
			n := rv.Int()
			if n < 0 {
				return nil, fmt.Errorf("%w: %v is negative", ErrTypeMismatch, n)
			}
			u = uint64(n)
		default:
			u = rv.Uint()
		}
		if out.OverflowUint(u) {
			return nil, fmt.Errorf("%w: %v overflows %s", ErrTypeMismatch, u, t)
		}
		out.SetUint(u)

	default:
		var f float64
		switch {
		case isInt(rv.Kind()):
			f = float64(rv.Int())
		case isUint(rv.Kind()):
			f = float64(rv.Uint())
		default:
			f = rv.Float()
		}
		if out.OverflowFloat(f) {
			return nil, fmt.Errorf("%w: %v overflows %s", ErrTypeMismatch, f, t)
		}
		out.SetFloat(f)
	}
	return out.Interface(), nil
}

func nilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return true
	}
	return false
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k)
}
