package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single invalid field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted log.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the accepted log.format values.
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// ValidSnapshotFormats returns the accepted snapshot.format values.
func ValidSnapshotFormats() []string {
	return []string{"json", "yaml", "yml"}
}

// Validate checks the Config and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		errs = append(errs, ValidationError{"log.level", c.Log.Level, "must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}
	if !slices.Contains(ValidLogFormats(), strings.ToLower(c.Log.Format)) {
		errs = append(errs, ValidationError{"log.format", c.Log.Format, "must be one of " + strings.Join(ValidLogFormats(), ", ")})
	}

	if c.Loop.QueueSize <= 0 {
		errs = append(errs, ValidationError{"loop.queue_size", c.Loop.QueueSize, "must be positive"})
	}

	if _, _, err := net.SplitHostPort(c.Inspect.Addr); err != nil {
		errs = append(errs, ValidationError{"inspect.addr", c.Inspect.Addr, "must be host:port"})
	}
	if c.Inspect.WriteTimeout <= 0 {
		errs = append(errs, ValidationError{"inspect.write_timeout", c.Inspect.WriteTimeout, "must be positive"})
	}
	if c.Inspect.PingInterval <= 0 {
		errs = append(errs, ValidationError{"inspect.ping_interval", c.Inspect.PingInterval, "must be positive"})
	}
	if c.Inspect.SendBuffer <= 0 {
		errs = append(errs, ValidationError{"inspect.send_buffer", c.Inspect.SendBuffer, "must be positive"})
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, ValidationError{"metrics.path", c.Metrics.Path, "must start with /"})
	}

	if !slices.Contains(ValidSnapshotFormats(), strings.ToLower(c.Snapshot.Format)) {
		errs = append(errs, ValidationError{"snapshot.format", c.Snapshot.Format, "must be one of " + strings.Join(ValidSnapshotFormats(), ", ")})
	}
	if c.Snapshot.Target != "" && c.Snapshot.Key == "" {
		errs = append(errs, ValidationError{"snapshot.key", c.Snapshot.Key, "is required when snapshot.target is set"})
	}
	if c.Snapshot.Interval < 0 {
		errs = append(errs, ValidationError{"snapshot.interval", c.Snapshot.Interval, "must not be negative"})
	}
	if strings.HasPrefix(c.Snapshot.Target, "s3://") && c.S3.Region == "" {
		errs = append(errs, ValidationError{"s3.region", c.S3.Region, "is required for s3:// targets"})
	}

	if c.Bench.Depth < 1 {
		errs = append(errs, ValidationError{"bench.depth", c.Bench.Depth, "must be at least 1"})
	}
	if c.Bench.Fanout < 1 {
		errs = append(errs, ValidationError{"bench.fanout", c.Bench.Fanout, "must be at least 1"})
	}
	if c.Bench.Iterations < 1 {
		errs = append(errs, ValidationError{"bench.iterations", c.Bench.Iterations, "must be at least 1"})
	}

	return errs
}
