package clr

import (
	"log/slog"
	"runtime"
)

// Option configures Initialize, NewPowerShell and the Runner.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	newHost  func() (Host, error)
	registry *registry
	memory   codeMemory
	// arch is the GOARCH images are checked against before loading.
	arch      string
	hostStore bool
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger:   slog.Default(),
		newHost:  newPlatformHost,
		registry: processRegistry,
		memory:   nativeMemory{},
		arch:     runtime.GOARCH,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHost replaces the platform backend. Every distinct host keeps its own
// pinned runtime, separate from the process-wide one.
func WithHost(h Host) Option {
	return func(o *options) {
		if h == nil {
			return
		}
		o.newHost = func() (Host, error) { return h, nil }
		o.registry = registryFor(h)
	}
}

// withMemory replaces the code patching primitive used by the exit patcher.
func withMemory(m codeMemory) Option {
	return func(o *options) {
		o.memory = m
	}
}

// WithHostStore installs the host assembly store when the runtime is started
// and makes Load resolve images by binding identity through it. A runtime
// started without the store keeps loading images with Load_3.
func WithHostStore() Option {
	return func(o *options) {
		o.hostStore = true
	}
}

// withArch replaces the architecture images are checked against.
func withArch(arch string) Option {
	return func(o *options) {
		o.arch = arch
	}
}
