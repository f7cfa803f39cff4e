package engine

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/weld-ui/weld/pkg/diag"
	"github.com/weld-ui/weld/pkg/sandbox"
)

// Default timeouts.
const (
	// DefaultLoadTimeout bounds bundle execution; the watchdog fires
	// past it and force-destroys the engine.
	DefaultLoadTimeout = 30 * time.Second
)

// ObjectFetcher loads a bundle from an object store bucket/key. The
// aws-sdk-v2 S3 client satisfies this through the S3Fetcher adapter in
// this package.
type ObjectFetcher interface {
	Fetch(bucket, key string) ([]byte, error)
}

// Config tunes one Engine.
type Config struct {
	// ID identifies the engine in logs and diagnostics. Empty gets a
	// generated id.
	ID string

	// Provider selects the sandbox ("goja", "vm", "worker",
	// "hostrealm"). Empty auto-selects.
	Provider string

	// LoadTimeout bounds bundle execution. Zero takes
	// DefaultLoadTimeout; negative disables the watchdog.
	LoadTimeout time.Duration

	// ScriptTimeout is the per-eval hard deadline for the vm
	// provider.
	ScriptTimeout time.Duration

	// Debug forwards guest console.log/debug/info and enables
	// descriptive component resolution errors.
	Debug bool

	// MaxListeners is the per-event warning threshold.
	MaxListeners int

	// MaxBatchSize caps operations applied per batch by the receiver.
	MaxBatchSize int

	// GuestConfig is the initial config snapshot __getConfig returns.
	GuestConfig map[string]any

	// Modules is the require() whitelist: module name to source.
	Modules map[string]string

	// HTTPClient fetches http(s) bundle sources. Nil uses
	// http.DefaultClient.
	HTTPClient *http.Client

	// Objects fetches s3:// bundle sources. Nil rejects them.
	Objects ObjectFetcher

	// Diag tunes the diagnostics tracker.
	Diag diag.Config

	// Logger receives engine logs. Nil falls back to slog.Default().
	Logger *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Config) loadTimeout() time.Duration {
	if c.LoadTimeout == 0 {
		return DefaultLoadTimeout
	}
	if c.LoadTimeout < 0 {
		return 0
	}
	return c.LoadTimeout
}

func (c *Config) sandboxOptions(logger *slog.Logger) sandbox.Options {
	return sandbox.Options{ScriptTimeout: c.ScriptTimeout, Logger: logger}
}
