package cell

import "testing"

func TestPulseTrig(t *testing.T) {
	p := NewPulse()
	calls := 0
	p.OnTrig(func() { calls++ })

	for i := 0; i < 3; i++ {
		p.Trig()
	}

	if calls != 3 {
		t.Errorf("expected 3 notifications, got %d", calls)
	}
	if p.TrigTimes() != 3 {
		t.Errorf("expected counter 3, got %d", p.TrigTimes())
	}
}

func TestPulseCounterIsMonotonic(t *testing.T) {
	p := NewPulse()
	var seen []int
	p.Connect(func(n int) { seen = append(seen, n) })

	p.Trig()
	p.Trig()
	p.Set(1)
	p.Update(func(n int) int { return n - 1 })
	p.Trig()

	if !equalSlices(seen, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", seen)
	}
}

func TestPulseSetForward(t *testing.T) {
	p := NewPulse()
	p.Set(5)
	if p.TrigTimes() != 5 {
		t.Errorf("expected counter 5, got %d", p.TrigTimes())
	}
}

func TestPulseReset(t *testing.T) {
	p := NewPulse()
	p.Trig()
	p.Trig()

	var seen []int
	p.Connect(func(n int) { seen = append(seen, n) })

	p.Reset()
	p.Trig()

	if !equalSlices(seen, []int{0, 1}) {
		t.Errorf("expected [0 1], got %v", seen)
	}
}

func TestPulseOnTrigDisconnect(t *testing.T) {
	p := NewPulse()
	calls := 0
	handler := func() { calls++ }
	p.OnTrig(handler)

	if n := p.Disconnect(nil, handler); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	p.Trig()

	if calls != 0 {
		t.Errorf("expected no calls after disconnect, got %d", calls)
	}
}

func TestPulseOnTrigWithHost(t *testing.T) {
	p := NewPulse()
	host := NewOwner(nil)
	calls := 0
	p.OnTrig(func() { calls++ }, WithHost(host))

	p.Trig()
	host.Dispose()
	p.Trig()

	if calls != 1 {
		t.Errorf("expected 1 call before disposal, got %d", calls)
	}
}
