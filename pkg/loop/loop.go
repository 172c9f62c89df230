package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/cellkit/pkg/cell"
)

// DefaultQueueSize is the task queue capacity used when none is configured.
const DefaultQueueSize = 1024

// Hooks receives task lifecycle events. It is called from arbitrary
// goroutines for TaskPosted and TaskDropped, and from the loop goroutine for
// TaskDone.
type Hooks interface {
	TaskPosted()
	TaskDropped()
	TaskDone(d time.Duration, panicked bool)
}

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the task queue capacity.
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.size = n
		}
	}
}

// WithLogger sets the logger for recovered panics and dropped tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithHooks installs task lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(l *Loop) {
		l.hooks = h
	}
}

// Loop serializes functions onto the goroutine that calls Run.
type Loop struct {
	size   int
	tasks  chan func()
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	logger *slog.Logger
	hooks  Hooks
}

// New creates a loop. It does nothing until Run or Drain is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		size: DefaultQueueSize,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.tasks = make(chan func(), l.size)
	return l
}

// Post queues fn to run on the loop. It is safe to call from any goroutine
// and never blocks: a full queue returns ErrQueueFull.
func (l *Loop) Post(fn func()) error {
	return l.send(fn, false)
}

// send queues fn. With block set it waits for room instead of failing.
func (l *Loop) send(fn func(), block bool) error {
	if fn == nil {
		return nil
	}
	if l.closed.Load() {
		return ErrClosed
	}

	if block {
		select {
		case l.tasks <- fn:
			l.posted()
			return nil
		case <-l.done:
			return ErrClosed
		}
	}

	select {
	case l.tasks <- fn:
		l.posted()
		return nil
	case <-l.done:
		return ErrClosed
	default:
		if l.hooks != nil {
			l.hooks.TaskDropped()
		}
		l.logger.Warn("loop: queue full, dropping task", "capacity", l.size)
		return ErrQueueFull
	}
}

func (l *Loop) posted() {
	if l.hooks != nil {
		l.hooks.TaskPosted()
	}
}

// Run executes queued functions on the calling goroutine until ctx is done or
// the loop is closed. It returns ctx.Err() when ctx ends and nil after Close.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		}
	}
}

// Drain runs every queued function on the calling goroutine without waiting
// for more, and returns how many ran. Tasks posted by the drained tasks run
// too.
func (l *Loop) Drain() int {
	n := 0
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	return len(l.tasks)
}

// Close stops the loop. Queued functions are discarded and later posts fail
// with ErrClosed. Close is idempotent.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// Done returns a channel that is closed by Close.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Await posts fn and waits for it to finish. It returns a *PanicError if fn
// panicked. Calling Await from the loop goroutine deadlocks.
func (l *Loop) Await(ctx context.Context, fn func()) error {
	result := make(chan error, 1)
	if err := l.send(func() { result <- l.safeRun(fn) }, true); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

// Trig posts p.Trig.
func (l *Loop) Trig(p *cell.Pulse) error {
	return l.Post(p.Trig)
}

// Every trigs p through the loop every d until ctx is done, the loop closes,
// or stop is called. Ticks that find the queue full are dropped.
func (l *Loop) Every(ctx context.Context, d time.Duration, p *cell.Pulse) (stop func()) {
	quit := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := l.Post(p.Trig); errors.Is(err, ErrClosed) {
					return
				}
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-l.done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(quit) })
	}
}

// HostContext returns an owner that is disposed on the loop when ctx ends,
// taking every connection hosted by it along. Call it on the loop goroutine.
func (l *Loop) HostContext(ctx context.Context) *cell.Owner {
	owner := cell.NewOwner(nil)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.send(owner.Dispose, true)
		case <-l.done:
		}
	}()
	return owner
}

func (l *Loop) exec(fn func()) {
	_ = l.safeRun(fn)
}

// safeRun runs fn with panic recovery and reports it to the hooks.
func (l *Loop) safeRun(fn func()) (err error) {
	start := time.Now()
	defer func() {
		panicked := false
		if r := recover(); r != nil {
			panicked = true
			stack := debug.Stack()
			l.logger.Error("loop: task panic",
				"panic", r,
				"stack", string(stack))
			err = &PanicError{Value: r, Stack: stack}
		}
		if l.hooks != nil {
			l.hooks.TaskDone(time.Since(start), panicked)
		}
	}()

	fn()
	return nil
}
