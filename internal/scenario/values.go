package scenario

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// number returns v as a float64 and whether it is an integer kind.
func number(v any) (f float64, integral bool, ok bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true, true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), false, true
	}
	return 0, false, false
}

// numeric folds vals with fn. The result is an int when every operand is an
// integer, a float64 otherwise. A non-numeric operand panics, which a
// derived cell records as a recompute failure.
func numeric(op string, vals []any, start float64, fn func(acc, x float64) float64) any {
	acc := start
	allInt := true
	for i, v := range vals {
		f, integral, ok := number(v)
		if !ok {
			panic(fmt.Errorf("%s: operand %d is %T, not a number", op, i, v))
		}
		allInt = allInt && integral
		acc = fn(acc, f)
	}
	if allInt {
		return int(acc)
	}
	return acc
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	if f, _, ok := number(v); ok {
		return f != 0
	}
	return true
}

func boolean(op string, i int, v any) bool {
	b, ok := v.(bool)
	if !ok {
		panic(fmt.Errorf("%s: operand %d is %T, not a bool", op, i, v))
	}
	return b
}

// equal compares scenario values. Numbers compare by value regardless of
// their Go type, so an expected 3 matches a computed 3.0.
func equal(a, b any) bool {
	if fa, _, ok := number(a); ok {
		fb, _, ok := number(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !equal(x, y) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// format renders a value for the notification log.
func format(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = format(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + format(x[k])
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
	return fmt.Sprint(v)
}
