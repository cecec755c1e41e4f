package clr

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/lesnuages/clrhost/assembly"
)

// Runner loads an in-memory assembly into a fresh environment and runs its
// entry point. It is configured with the builder methods and consumed by
// Run; a second Run fails with AlreadyExecuted until Reset is called.
//
//	out, err := runner.Runtime(clr.V4).Output().Exit().Run()
type Runner struct {
	image   []byte
	version RuntimeVersion
	domain  string
	args    []string
	output  bool
	exit    bool
	// bestEffort lets the run continue when the exit patch fails.
	bestEffort bool
	opts       []Option
	patcher    ExitPatcher

	mu       sync.Mutex
	executed bool
}

// NewRunner validates image and returns a runner with the default
// configuration: latest runtime, fresh domain, no arguments, no output
// capture, Environment.Exit left alone.
func NewRunner(image []byte) (*Runner, error) {
	img, err := assembly.Parse(image)
	if err != nil {
		return nil, wrapError(InvalidAssemblyImage, StageLoad, "NewRunner", err)
	}
	if !img.HasEntryPoint() {
		return nil, newError(NoEntryPoint, StageLoad, "NewRunner", "image has no entry point token")
	}
	return &Runner{image: slices.Clone(image)}, nil
}

// Runtime selects the runtime version.
func (r *Runner) Runtime(v RuntimeVersion) *Runner {
	r.version = v
	return r
}

// Domain runs the assembly in a new domain with the given name. Without it a
// domain named by a random UUID is used.
func (r *Runner) Domain(name string) *Runner {
	r.domain = name
	return r
}

// Args appends entry point arguments.
func (r *Runner) Args(args ...string) *Runner {
	r.args = append(r.args, args...)
	return r
}

// Output enables console capture; Run returns the captured text.
func (r *Runner) Output() *Runner {
	r.output = true
	return r
}

// Exit patches System.Environment.Exit for the duration of the run.
func (r *Runner) Exit() *Runner {
	r.exit = true
	return r
}

// BestEffortExit enables the exit patch but only logs a warning when it
// cannot be applied.
func (r *Runner) BestEffortExit() *Runner {
	r.exit = true
	r.bestEffort = true
	return r
}

// HostStore loads the image through the host assembly store, by binding
// identity, when this run is the one that starts the runtime.
func (r *Runner) HostStore() *Runner {
	r.opts = append(r.opts, WithHostStore())
	return r
}

// Logger sets the logger.
func (r *Runner) Logger(l *slog.Logger) *Runner {
	r.opts = append(r.opts, WithLogger(l))
	return r
}

// With adds environment options.
func (r *Runner) With(opts ...Option) *Runner {
	r.opts = append(r.opts, opts...)
	return r
}

// Patcher replaces the exit patcher.
func (r *Runner) Patcher(p ExitPatcher) *Runner {
	r.patcher = p
	return r
}

// Reset allows the runner to be run again.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = false
}

// Run executes the pipeline: initialize, load, redirect, patch exit, run
// the entry point and capture, then undo the setup steps in reverse order.
// When the entry point fails after output was redirected, the captured text
// is returned along with the error.
func (r *Runner) Run() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.executed {
		return "", newError(AlreadyExecuted, StageInitialize, "Run", "call Reset to run again")
	}
	r.executed = true

	o := buildOptions(r.opts)
	log := o.logger

	domain := r.domain
	if domain == "" {
		domain = uuid.NewString()
	}

	env, err := Initialize(r.version, domain, r.opts...)
	if err != nil {
		return "", err
	}
	log = log.With("runtime", env.Version(), "domain", domain)

	var cleanup []func() error
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](); err != nil {
				log.Warn("cleanup failed", "err", err)
			}
		}
	}()
	cleanup = append(cleanup, env.Close)

	asm, err := env.Load(r.image)
	if err != nil {
		return "", err
	}
	cleanup = append(cleanup, func() error { asm.Release(); return nil })
	log.Info("assembly loaded", "assembly", asm.FullName())

	var out *Output
	if r.output {
		mscorlib, err := env.Mscorlib()
		if err != nil {
			return "", withStage(err, StageRedirect, TypeNotFound, "mscorlib")
		}
		out = NewOutput(mscorlib)
		if err := out.Redirect(); err != nil {
			return "", withStage(err, StageRedirect, ManagedInvocationFailed, "Redirect")
		}
		cleanup = append(cleanup, out.Restore)
	}

	if r.exit {
		p := r.patcher
		if p == nil {
			p = NewExitPatcher()
		}
		if err := p.Patch(env); err != nil {
			if !r.bestEffort {
				return "", err
			}
			log.Warn("continuing without exit patch, the assembly may terminate the process", "err", err)
		} else {
			cleanup = append(cleanup, p.Unpatch)
		}
	}

	ret, runErr := asm.RunEntryPoint(r.args)
	ret.Clear()
	if runErr != nil {
		log.Debug("entry point failed", "err", runErr)
	}

	if out == nil {
		return "", runErr
	}
	captured, err := out.Capture()
	if err != nil {
		return captured, errors.Join(runErr, err)
	}
	return captured, runErr
}
