package loop

import (
	"context"
	"sync"
)

// Jobs runs blocking work off the loop, keyed so that the same key is never
// in flight twice. Each Loop can have any number of independent Jobs.
type Jobs struct {
	loop *Loop

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewJobs creates a job set whose completions run on l.
func NewJobs(l *Loop) *Jobs {
	return &Jobs{
		loop:     l,
		inflight: make(map[string]struct{}),
	}
}

// Submit runs work on a new goroutine unless key is already in flight, in
// which case it returns false and does nothing. When work returns, done is
// posted to the loop with its error; the key stays in flight until done has
// run. A panic in work is reported to done as a *PanicError.
func (j *Jobs) Submit(ctx context.Context, key string, work func(ctx context.Context) error, done func(err error)) bool {
	j.mu.Lock()
	if _, busy := j.inflight[key]; busy {
		j.mu.Unlock()
		return false
	}
	j.inflight[key] = struct{}{}
	j.mu.Unlock()

	go func() {
		err := runWork(ctx, work)

		posted := j.loop.send(func() {
			j.release(key)
			if done != nil {
				done(err)
			}
		}, true)
		if posted != nil {
			// The loop is gone; nothing will run done.
			j.release(key)
		}
	}()
	return true
}

// InProgress reports whether key is in flight.
func (j *Jobs) InProgress(key string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.inflight[key]
	return ok
}

// Len returns the number of keys in flight.
func (j *Jobs) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.inflight)
}

func (j *Jobs) release(key string) {
	j.mu.Lock()
	delete(j.inflight, key)
	j.mu.Unlock()
}

func runWork(ctx context.Context, work func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return work(ctx)
}
