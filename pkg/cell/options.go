package cell

import "log/slog"

// Option configures a cell at construction.
type Option func(*options)

type options struct {
	silent    bool
	sensitive bool
	spread    bool
	name      string
	observer  Observer
	logger    *slog.Logger
}

// Silent creates the cell with its signal disabled: values are stored but
// nothing fires until EnableSignal(true).
func Silent() Option {
	return func(o *options) {
		o.silent = true
	}
}

// Sensitive makes the cell fire on every Set, even when the value is equal to
// the stored one.
func Sensitive() Option {
	return func(o *options) {
		o.sensitive = true
	}
}

// Spread boxes every element of a []any or map[string]any value into its own
// *Cell[any], recursively. Non-container values are stored as they are.
func Spread() Option {
	return func(o *options) {
		o.spread = true
	}
}

// Named labels the cell in logs, metrics and traces.
func Named(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithObserver overrides the package-level observer for this cell.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithLogger overrides the package-level logger for this cell.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// ConnectOption configures a single connection.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	host   Host
	once   bool
	key    any
	hasKey bool
}

// WithHost bounds the connection's lifetime by h. When h is disposed the
// connection is removed. h must be comparable (a pointer, typically); a
// connection with any other host is refused.
func WithHost(h Host) ConnectOption {
	return func(o *connectOptions) {
		o.host = h
	}
}

// Once removes any existing connection with the same host and callback
// identity on the same channel before connecting.
func Once() ConnectOption {
	return func(o *connectOptions) {
		o.once = true
	}
}

// WithKey sets the callback identity used by Once, UniqueConnect and
// Disconnect. By default the identity is the callback's closure, so a method
// value or a capturing function literal must be kept in a variable to be
// found again. A key that is not comparable matches nothing.
func WithKey(k any) ConnectOption {
	return func(o *connectOptions) {
		o.key = callbackKey(k)
		o.hasKey = true
	}
}

func applyConnectOptions(fn any, opts []ConnectOption) connectOptions {
	var o connectOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if !o.hasKey {
		o.key = callbackKey(fn)
	}
	return o
}
