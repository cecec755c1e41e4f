// Package cmd implements the clrhost command line.
package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/lesnuages/clrhost/clr"
	"github.com/lesnuages/clrhost/internal/config"
	"github.com/lesnuages/clrhost/internal/logging"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type app struct {
	cfgFile  string
	verbose  bool
	jsonLogs bool
	cfg      *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "clrhost",
		Short: "Run .NET assemblies from memory in a hosted CLR",
		Long: `clrhost starts the Common Language Runtime inside its own process and
runs .NET assemblies read from disk without handing the file to the loader.
Console output is captured and Environment.Exit can be neutralized.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.jsonLogs, "json-logs", false, "write logs as JSON")
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		a.newRunCommand(),
		a.newPowerShellCommand(),
		a.newRuntimesCommand(),
		a.newInspectCommand(),
	)
	return root
}

// setup resolves the configuration and installs the logger before any
// subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return usageError{err}
	}
	a.cfg = cfg
	logging.Setup(cfg.Verbose, cfg.JSONLogs, cmd.ErrOrStderr())
	logging.Debug("configuration loaded", "file", a.cfgFile, "runtime", cfg.Runtime, "output", cfg.Output)
	return nil
}

// Execute runs the command line and exits with its status.
func Execute() {
	os.Exit(Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// Main runs the command line with args and returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := fang.Execute(ctx, root,
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	)
	return exitCode(err)
}

// usageError marks bad invocations: unknown flags, wrong arity, invalid
// configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func exitCode(err error) int {
	if err == nil {
		return clr.ExitSuccess
	}
	var ue usageError
	if errors.As(err, &ue) {
		return clr.ExitUsage
	}
	return clr.ExitCodeOf(err)
}
