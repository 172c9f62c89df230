package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/cellkit/pkg/cell"
)

func startLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		l.Close()
	})
	return l
}

func TestPostAndDrain(t *testing.T) {
	l := New()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if err := l.Post(func() { order = append(order, i) }); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	if n := l.Drain(); n != 3 {
		t.Errorf("expected 3 tasks drained, got %d", n)
	}
	if len(order) != 3 || order[0] != 0 || order[2] != 2 {
		t.Errorf("expected FIFO order, got %v", order)
	}
	if l.Drain() != 0 {
		t.Error("second drain should find nothing")
	}
}

func TestPostAfterClose(t *testing.T) {
	l := New()
	l.Close()
	l.Close()

	if err := l.Post(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := l.Await(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Await, got %v", err)
	}
}

func TestPostQueueFull(t *testing.T) {
	l := New(WithQueueSize(1))
	if err := l.Post(func() {}); err != nil {
		t.Fatalf("first Post: %v", err)
	}
	if err := l.Post(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunStopsOnClose(t *testing.T) {
	l := New()
	errc := make(chan error, 1)
	go func() { errc <- l.Run(context.Background()) }()

	l.Close()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected nil after Close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestAwaitSerializesCellAccess(t *testing.T) {
	l := startLoop(t)
	counter := cell.New(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Await(ctx, func() { counter.Update(func(n int) int { return n + 1 }) }); err != nil {
				t.Errorf("Await: %v", err)
			}
		}()
	}
	wg.Wait()

	var got int
	if err := l.Await(ctx, func() { got = counter.Get() }); err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got != 50 {
		t.Errorf("expected 50 increments, got %d", got)
	}
}

func TestAwaitReportsPanic(t *testing.T) {
	l := startLoop(t)

	err := l.Await(context.Background(), func() { panic("boom") })

	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("expected PanicError with boom, got %v", err)
	}

	// The loop keeps running.
	if err := l.Await(context.Background(), func() {}); err != nil {
		t.Errorf("loop should survive a panic, got %v", err)
	}
}

func TestTrig(t *testing.T) {
	l := New()
	p := cell.NewPulse()

	if err := l.Trig(p); err != nil {
		t.Fatalf("Trig: %v", err)
	}
	if p.TrigTimes() != 0 {
		t.Error("pulse should not fire before the loop runs")
	}
	l.Drain()
	if p.TrigTimes() != 1 {
		t.Errorf("expected 1 trig, got %d", p.TrigTimes())
	}
}

func TestEvery(t *testing.T) {
	l := startLoop(t)
	p := cell.NewPulse()
	fired := make(chan struct{}, 10)

	if err := l.Await(context.Background(), func() {
		p.OnTrig(func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}); err != nil {
		t.Fatal(err)
	}

	stop := l.Every(context.Background(), 5*time.Millisecond, p)
	defer stop()

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("pulse fired %d times before timeout", i)
		}
	}

	stop()
	stop()
}

func TestHostContext(t *testing.T) {
	l := startLoop(t)
	c := cell.New(0)
	ctx, cancel := context.WithCancel(context.Background())

	var owner *cell.Owner
	calls := 0
	if err := l.Await(context.Background(), func() {
		owner = l.HostContext(ctx)
		c.Connect(func(int) { calls++ }, cell.WithHost(owner))
	}); err != nil {
		t.Fatal(err)
	}

	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		var disposed bool
		l.Await(context.Background(), func() { disposed = owner.IsDisposed() })
		if disposed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("owner was not disposed after context cancel")
		}
		time.Sleep(time.Millisecond)
	}

	l.Await(context.Background(), func() { c.Set(1) })
	if calls != 0 {
		t.Errorf("connection should be gone with the context, got %d calls", calls)
	}
}

type countingHooks struct {
	mu       sync.Mutex
	posted   int
	dropped  int
	done     int
	panicked int
}

func (h *countingHooks) TaskPosted() {
	h.mu.Lock()
	h.posted++
	h.mu.Unlock()
}

func (h *countingHooks) TaskDropped() {
	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
}

func (h *countingHooks) TaskDone(_ time.Duration, panicked bool) {
	h.mu.Lock()
	h.done++
	if panicked {
		h.panicked++
	}
	h.mu.Unlock()
}

func TestHooks(t *testing.T) {
	hooks := &countingHooks{}
	l := New(WithHooks(hooks), WithQueueSize(2))

	l.Post(func() {})
	l.Post(func() { panic("x") })
	l.Post(func() {})
	l.Drain()

	if hooks.posted != 2 || hooks.dropped != 1 {
		t.Errorf("expected 2 posted and 1 dropped, got %d/%d", hooks.posted, hooks.dropped)
	}
	if hooks.done != 2 || hooks.panicked != 1 {
		t.Errorf("expected 2 done with 1 panic, got %d/%d", hooks.done, hooks.panicked)
	}
}
