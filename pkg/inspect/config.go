package inspect

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Config configures the inspector server.
type Config struct {
	// CheckOrigin validates websocket upgrade requests.
	// Default: SameOriginCheck
	CheckOrigin func(r *http.Request) bool

	// WriteTimeout bounds each websocket write.
	// Default: 10s
	WriteTimeout time.Duration

	// PingInterval is how often idle websocket clients are pinged.
	// Default: 30s
	PingInterval time.Duration

	// SendBuffer is the number of messages queued per websocket client
	// before it is considered too slow and disconnected.
	// Default: 64
	SendBuffer int

	// MaxBodyBytes limits PUT request bodies.
	// Default: 1 MiB
	MaxBodyBytes int64

	// Logger receives request and connection logs.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CheckOrigin:  SameOriginCheck,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		SendBuffer:   64,
		MaxBodyBytes: 1 << 20,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.CheckOrigin == nil {
		out.CheckOrigin = d.CheckOrigin
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.PingInterval <= 0 {
		out.PingInterval = d.PingInterval
	}
	if out.SendBuffer <= 0 {
		out.SendBuffer = d.SendBuffer
	}
	if out.MaxBodyBytes <= 0 {
		out.MaxBodyBytes = d.MaxBodyBytes
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}

// SameOriginCheck validates that the websocket request origin matches the
// host. Requests without an Origin header (curl, native clients) pass.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}

	// Compare the host portion (includes port if present)
	return originURL.Host == host
}

// AllowAllOrigins accepts every websocket origin. Only use it on loopback.
func AllowAllOrigins(*http.Request) bool {
	return true
}
