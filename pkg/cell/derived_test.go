package cell

import (
	"errors"
	"testing"
)

func add(x, y int) int { return x + y }

func TestDerivedSum(t *testing.T) {
	a := New(2)
	b := New(3)
	sum := Derive2(a, b, add)

	if sum.Get() != 5 {
		t.Errorf("expected 5, got %d", sum.Get())
	}

	a.Set(10)
	if sum.Get() != 13 {
		t.Errorf("expected 13, got %d", sum.Get())
	}
}

func TestDerivedTracksEverySet(t *testing.T) {
	a := New(0)
	b := New(0)
	sum := Derive2(a, b, add)

	steps := []struct {
		cell *Cell[int]
		v    int
	}{
		{a, 4}, {b, 9}, {a, -1}, {b, 9}, {b, 0},
	}
	for _, s := range steps {
		s.cell.Set(s.v)
		if want := a.Get() + b.Get(); sum.Get() != want {
			t.Fatalf("after setting %d: expected %d, got %d", s.v, want, sum.Get())
		}
	}
}

func TestDerivedMixedConstants(t *testing.T) {
	a := New(1)
	d := Derive3(a, Const(10), Const("x"), func(x, y int, s string) string {
		return s + string(rune('0'+x+y-10))
	})

	if d.Get() != "x1" {
		t.Errorf("expected x1, got %q", d.Get())
	}

	a.Set(5)
	if d.Get() != "x5" {
		t.Errorf("expected x5, got %q", d.Get())
	}
}

func TestDerivedOfConstantsOnly(t *testing.T) {
	evals := 0
	d := Derive2(Const(2), Const(3), func(x, y int) int {
		evals++
		return x * y
	})

	if d.Get() != 6 {
		t.Errorf("expected 6, got %d", d.Get())
	}
	if evals != 1 {
		t.Errorf("expected a single evaluation, got %d", evals)
	}
}

func TestDerivedNotifiesOnlyOnChange(t *testing.T) {
	a := New(1)
	parity := Derive1(a, func(x int) bool { return x%2 == 0 })
	rec := newRecorder[bool]()
	parity.Connect(rec.changed)

	a.Set(3)
	a.Set(5)
	a.Set(6)

	if !equalSlices(rec.values, []bool{true}) {
		t.Errorf("expected [true], got %v", rec.values)
	}
}

func TestDerivedChain(t *testing.T) {
	a := New(1)
	double := Derive1(a, func(x int) int { return x * 2 })
	label := Derive1(double, func(x int) string {
		if x > 10 {
			return "big"
		}
		return "small"
	})

	if label.Get() != "small" {
		t.Errorf("expected small, got %q", label.Get())
	}

	a.Set(6)
	if double.Get() != 12 || label.Get() != "big" {
		t.Errorf("expected 12/big, got %d/%q", double.Get(), label.Get())
	}
}

func TestDerivedPanicKeepsPreviousValue(t *testing.T) {
	obs := &testObserver{}
	a := New(2)
	d := Derive1(a, func(x int) int {
		if x == 0 {
			panic("division by zero")
		}
		return 100 / x
	}, Named("ratio"), WithObserver(obs))

	a.Set(0)

	if d.Get() != 50 {
		t.Errorf("expected previous value 50 to be kept, got %d", d.Get())
	}
	err := d.Err()
	if err == nil {
		t.Fatal("expected Err to report the failure")
	}
	if !errors.Is(err, ErrRecompute) {
		t.Errorf("expected ErrRecompute, got %v", err)
	}
	var re *RecomputeError
	if !errors.As(err, &re) || re.Cell != "ratio" || re.Value != "division by zero" {
		t.Errorf("unexpected recompute error: %#v", err)
	}
	if len(obs.failures) != 1 {
		t.Errorf("expected observer to see 1 failure, got %d", len(obs.failures))
	}

	a.Set(4)
	if d.Get() != 25 {
		t.Errorf("expected recovery to 25, got %d", d.Get())
	}
	if d.Err() != nil {
		t.Errorf("expected Err to clear after success, got %v", d.Err())
	}
}

func TestDerivedPanicWithError(t *testing.T) {
	boom := errors.New("boom")
	a := New(0)
	d := Derive1(a, func(x int) int {
		if x > 0 {
			panic(boom)
		}
		return 0
	})

	a.Set(1)

	if !errors.Is(d.Err(), boom) || !errors.Is(d.Err(), ErrRecompute) {
		t.Errorf("expected error to wrap both boom and ErrRecompute, got %v", d.Err())
	}
}

func TestDerivedInitialPanic(t *testing.T) {
	d := Derive1(Const(0), func(int) string { panic("nope") })

	if d.Get() != "" {
		t.Errorf("expected zero value, got %q", d.Get())
	}
	if !errors.Is(d.Err(), ErrRecompute) {
		t.Errorf("expected ErrRecompute, got %v", d.Err())
	}
}

func TestDerivedDispose(t *testing.T) {
	a := New(1)
	d := Derive1(a, func(x int) int { return x + 1 })

	d.Dispose()
	a.Set(10)

	if d.Get() != 2 {
		t.Errorf("disposed cell should keep its value, got %d", d.Get())
	}
	if a.ConnectionCount(Changed) != 0 {
		t.Errorf("expected source to have no connections, got %d", a.ConnectionCount(Changed))
	}
}

func TestDerivedDuplicateSource(t *testing.T) {
	a := New(1)
	evals := 0
	d := Derive2(a, a, func(x, y int) int {
		evals++
		return x + y
	})

	a.Set(3)

	if d.Get() != 6 {
		t.Errorf("expected 6, got %d", d.Get())
	}
	if evals != 2 {
		t.Errorf("expected one evaluation per change plus the initial one, got %d", evals)
	}
	if a.ConnectionCount(Changed) != 1 {
		t.Errorf("expected one subscription on the shared source, got %d", a.ConnectionCount(Changed))
	}
}

func TestDerivedDiamondEvaluatesPerSource(t *testing.T) {
	a := New(1)
	x := Derive1(a, func(v int) int { return v + 1 })
	y := Derive1(a, func(v int) int { return v * 2 })
	d := Derive2(x, y, add)
	rec := newRecorder[int]()
	d.Connect(rec.changed)

	a.Set(2)

	// x updates first and d sees the new x with the old y.
	if !equalSlices(rec.values, []int{5, 7}) {
		t.Errorf("expected intermediate then final values [5 7], got %v", rec.values)
	}
	if d.Get() != 7 {
		t.Errorf("expected final 7, got %d", d.Get())
	}
}

func TestDeriveN(t *testing.T) {
	a, b, c := New(1), New(2), New(3)
	total := DeriveN(func(vs []int) int {
		s := 0
		for _, v := range vs {
			s += v
		}
		return s
	}, a, b, Const(100), c)

	if total.Get() != 106 {
		t.Errorf("expected 106, got %d", total.Get())
	}

	c.Set(10)
	if total.Get() != 113 {
		t.Errorf("expected 113, got %d", total.Get())
	}
}

func TestDeriveNWithOptions(t *testing.T) {
	a := New("a")
	joined := DeriveNWith(func(vs []string) string {
		out := ""
		for _, v := range vs {
			out += v
		}
		return out
	}, []Option{Named("joined")}, a, Const("b"))

	if joined.Name() != "joined" || joined.Get() != "ab" {
		t.Errorf("unexpected derived cell %q = %q", joined.Name(), joined.Get())
	}
}

func TestDerivedFromPulse(t *testing.T) {
	p := NewPulse()
	fired := Derive1(p, func(n int) int { return n * 10 })

	p.Trig()
	p.Trig()

	if fired.Get() != 20 {
		t.Errorf("expected 20, got %d", fired.Get())
	}
}

func TestDerivedSensitive(t *testing.T) {
	a := New(1)
	d := Derive1(a, func(int) int { return 0 }, Sensitive())
	calls := 0
	d.Connect(func(int) { calls++ })

	a.Set(2)
	a.Set(3)

	if calls != 2 {
		t.Errorf("sensitive derived cell should fire per recompute, got %d", calls)
	}
}
