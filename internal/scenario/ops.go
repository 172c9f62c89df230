package scenario

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Op computes a derived value from the current source values, sources
// first and constants after them.
type Op func(vals []any) any

var ops = map[string]Op{
	"sum": func(vals []any) any {
		return numeric("sum", vals, 0, func(acc, x float64) float64 { return acc + x })
	},
	"product": func(vals []any) any {
		return numeric("product", vals, 1, func(acc, x float64) float64 { return acc * x })
	},
	"min": func(vals []any) any {
		atLeastOne("min", vals)
		return numeric("min", vals, math.Inf(1), math.Min)
	},
	"max": func(vals []any) any {
		atLeastOne("max", vals)
		return numeric("max", vals, math.Inf(-1), math.Max)
	},
	"concat": func(vals []any) any {
		var b strings.Builder
		for _, v := range vals {
			b.WriteString(format(v))
		}
		return b.String()
	},
	"and": func(vals []any) any {
		out := true
		for i, v := range vals {
			out = boolean("and", i, v) && out
		}
		return out
	},
	"or": func(vals []any) any {
		out := false
		for i, v := range vals {
			out = boolean("or", i, v) || out
		}
		return out
	},
	"not": func(vals []any) any {
		if len(vals) != 1 {
			panic(fmt.Errorf("not: takes one operand, got %d", len(vals)))
		}
		return !boolean("not", 0, vals[0])
	},
	"count": func(vals []any) any {
		n := 0
		for _, v := range vals {
			if truthy(v) {
				n++
			}
		}
		return n
	},
}

func atLeastOne(op string, vals []any) {
	if len(vals) == 0 {
		panic(fmt.Errorf("%s: needs at least one operand", op))
	}
}

// OpNames returns the names of the derived operations.
func OpNames() []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterOp adds or replaces a derived operation.
func RegisterOp(name string, op Op) {
	ops[name] = op
}
