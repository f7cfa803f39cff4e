package sandbox

import (
	"log/slog"
	"time"
)

// Provider names.
const (
	ProviderGoja      = "goja"
	ProviderVM        = "vm"
	ProviderWorker    = "worker"
	ProviderHostRealm = "hostrealm"
	// ProviderAuto asks Select to pick.
	ProviderAuto = ""
)

// Selection records which provider was requested and which one is
// actually in effect.
type Selection struct {
	Provider  Provider
	Requested string
	Effective string
	Fallback  bool // true when the request could not be honored
}

// Options tune provider construction.
type Options struct {
	// ScriptTimeout is the per-eval hard deadline for the vm provider.
	ScriptTimeout time.Duration

	// Logger receives selection warnings. Nil falls back to
	// slog.Default().
	Logger *slog.Logger
}

// Select resolves a provider by name. The empty name auto-selects in
// preference order: embedded engine, vm, worker. An unknown explicit
// name falls back to auto-selection with a warning; the effective
// choice is recorded on the Selection. The hostrealm provider is only
// ever returned when named explicitly.
func Select(name string, opts Options) *Selection {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sel := &Selection{Requested: name}
	switch name {
	case ProviderGoja:
		sel.Provider = NewGojaProvider()
	case ProviderVM:
		sel.Provider = NewVMProvider(opts.ScriptTimeout)
	case ProviderWorker:
		sel.Provider = NewWorkerProvider()
	case ProviderHostRealm:
		sel.Provider = NewHostRealmProvider(logger)
	case ProviderAuto:
		sel.Provider = autoSelect(opts)
	default:
		logger.Warn("sandbox: requested provider unavailable, falling back",
			"requested", name)
		sel.Provider = autoSelect(opts)
		sel.Fallback = true
	}
	sel.Effective = sel.Provider.Name()
	return sel
}

// autoSelect picks the best available provider. The embedded engine is
// compiled into every build, so the tail of the preference chain
// (vm, worker) only matters on builds that exclude it.
func autoSelect(opts Options) Provider {
	for _, construct := range []func() Provider{
		NewGojaProvider,
		func() Provider { return NewVMProvider(opts.ScriptTimeout) },
		NewWorkerProvider,
	} {
		if p := construct(); p != nil {
			return p
		}
	}
	// Unreachable with the embedded engine present.
	return NewGojaProvider()
}
