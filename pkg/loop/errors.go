package loop

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when posting to a loop after Close.
	ErrClosed = errors.New("loop: closed")

	// ErrQueueFull is returned by Post when the task queue is at capacity.
	ErrQueueFull = errors.New("loop: queue full")
)

// PanicError is returned by Await when the task panicked.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("loop: task panicked: %v", e.Value)
}
