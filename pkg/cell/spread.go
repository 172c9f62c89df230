package cell

// Wrap returns a spread cell holding v. Elements of a []any or map[string]any
// become *Cell[any], recursively; elements that already are cells, of any
// element type, keep their identity, so subscriptions made on them stay valid:
//
//	rows := cell.Wrap([]any{"a", "b"})
//	first, _ := cell.Index(rows, 0)
//	first.Connect(redraw)
//	again := cell.Wrap(rows)  // same element cells, redraw still connected
func Wrap(v any) *Cell[any] {
	return New[any](v, Spread())
}

// spreadValue boxes the elements of a container into cells. Anything else is
// returned as is.
func spreadValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = box(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = box(e)
		}
		return out
	}
	return v
}

func box(e any) any {
	switch x := e.(type) {
	case *Cell[any]:
		return x
	case *Derived[any]:
		return x.Cell
	case anyGetter:
		// A cell of another element type is never boxed again.
		return x
	}
	return New(e, Spread())
}

// spreadEquals compares spread values. Element cells are equal when they are
// the same cell or hold equal values.
func spreadEquals(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) || (av == nil) != (bv == nil) {
			return false
		}
		for i := range av {
			if !sameElement(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) || (av == nil) != (bv == nil) {
			return false
		}
		for k, ae := range av {
			be, ok := bv[k]
			if !ok || !sameElement(ae, be) {
				return false
			}
		}
		return true
	}
	return defaultEquals(a, b)
}

func sameElement(a, b any) bool {
	ca, okA := a.(anyGetter)
	cb, okB := b.(anyGetter)
	switch {
	case okA && okB:
		return ca == cb || spreadEquals(ca.getAny(), cb.getAny())
	case okA:
		return spreadEquals(ca.getAny(), b)
	case okB:
		return spreadEquals(a, cb.getAny())
	}
	return spreadEquals(a, b)
}

// Items returns the *Cell[any] elements of a spread list, or nil when c does
// not hold a []any. Elements that are cells of another type are skipped.
func Items(c *Cell[any]) []*Cell[any] {
	list, ok := c.Get().([]any)
	if !ok {
		return nil
	}
	items := make([]*Cell[any], 0, len(list))
	for _, e := range list {
		if ec, ok := e.(*Cell[any]); ok {
			items = append(items, ec)
		}
	}
	return items
}

// Index returns the i-th element cell of a spread list.
func Index(c *Cell[any], i int) (*Cell[any], bool) {
	list, ok := c.Get().([]any)
	if !ok || i < 0 || i >= len(list) {
		return nil, false
	}
	ec, ok := list[i].(*Cell[any])
	return ec, ok
}

// Entry returns the element cell stored under key in a spread map.
func Entry(c *Cell[any], key string) (*Cell[any], bool) {
	m, ok := c.Get().(map[string]any)
	if !ok {
		return nil, false
	}
	ec, ok := m[key].(*Cell[any])
	return ec, ok
}

// Unspread returns a deep copy of v with every cell replaced by its value.
// It accepts a cell, a spread container or a plain value.
func Unspread(v any) any {
	switch x := v.(type) {
	case anyGetter:
		return Unspread(x.getAny())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Unspread(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Unspread(e)
		}
		return out
	}
	return v
}
