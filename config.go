package busybus

import (
	"os"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSockPathEnv is the environment variable that overrides the
// compiled-in default socket path.
const DefaultSockPathEnv = "BBUS_SOCKPATH"

// defaultSockPath is the fallback when neither a setter nor the
// environment names a path.
const defaultSockPath = "/tmp/bbus.sock"

// MaxSockPathLen is the longest socket path the daemon and client library
// will accept.
const MaxSockPathLen = 256

// DefaultSockPath returns BBUS_SOCKPATH if it is set, and the compiled-in
// default otherwise. A non-empty Config.SockPath takes precedence over
// both.
func DefaultSockPath() string {
	if p := os.Getenv(DefaultSockPathEnv); p != "" {
		return p
	}
	return defaultSockPath
}

// Logger is the minimal logging surface the router needs. *log.Logger
// satisfies it directly; tests may supply a *testing.T-backed adapter or a
// discarding implementation.
type Logger interface {
	Printf(format string, args ...any)
}

// nopLogger discards everything, used when Config.Logger is nil.
type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Authenticator is consulted, if set, during the session-open handshake.
// It receives the peer credentials captured on accept and may reject the
// connection before SOOK is sent.
type Authenticator interface {
	Authenticate(creds Credentials) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(Credentials) error

func (f AuthenticatorFunc) Authenticate(c Credentials) error { return f(c) }

// Config holds the tunables for a Router. The zero value is not directly
// usable; construct one with NewConfig to get sensible defaults.
type Config struct {
	// SockPath is the local stream socket to listen on (server) or connect
	// to (client). Empty means DefaultSockPath().
	SockPath string

	// Backlog is the listen backlog passed to the socket.
	Backlog int

	// PollTimeout bounds each iteration of the router's readiness loop.
	PollTimeout time.Duration

	// MaxPayload caps accepted payload sizes; 0 means MaxPayload.
	MaxPayload int

	// Authenticator, if set, is consulted for every accepted connection
	// during the SO handshake.
	Authenticator Authenticator

	// RateLimit, if set, bounds the CLICALL rate of each caller session
	// independently. Nil disables rate limiting, the default.
	RateLimit *RateLimitConfig

	// Logger receives diagnostic output. Nil discards it.
	Logger Logger
}

// RateLimitConfig parametrizes the per-caller token-bucket limiter.
type RateLimitConfig struct {
	// Rate is the steady-state number of calls allowed per second.
	Rate rate.Limit
	// Burst is the maximum burst size above the steady-state rate.
	Burst int
}

// NewConfig returns a Config populated with the package defaults: the
// resolved socket path, a 128-connection backlog, a 500ms poll period
// (matching the daemon's readiness loop cadence), the maximum payload, no
// authenticator, no rate limit, and a discarding logger.
func NewConfig() *Config {
	return &Config{
		SockPath:    DefaultSockPath(),
		Backlog:     128,
		PollTimeout: 500 * time.Millisecond,
		MaxPayload:  MaxPayload,
		Logger:      nopLogger{},
	}
}

// logger returns c.Logger, or a discarding logger if it is nil.
func (c *Config) logger() Logger {
	if c.Logger == nil {
		return nopLogger{}
	}
	return c.Logger
}

// sockPath returns c.SockPath, or DefaultSockPath() if it is empty.
func (c *Config) sockPath() string {
	if c.SockPath == "" {
		return DefaultSockPath()
	}
	return c.SockPath
}

// maxPayload returns c.MaxPayload, or the package default if it is zero.
func (c *Config) maxPayload() int {
	if c.MaxPayload <= 0 {
		return MaxPayload
	}
	return c.MaxPayload
}

// pollTimeout returns c.PollTimeout, or the package default if it is zero.
func (c *Config) pollTimeout() time.Duration {
	if c.PollTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return c.PollTimeout
}

// backlog returns c.Backlog, or a sane default if it is zero.
func (c *Config) backlog() int {
	if c.Backlog <= 0 {
		return 128
	}
	return c.Backlog
}
