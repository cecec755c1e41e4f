package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lesnuages/clrhost/clr"
	"github.com/lesnuages/clrhost/internal/config"
	"github.com/lesnuages/clrhost/internal/logging"
)

func (a *app) newRunCommand() *cobra.Command {
	var extra []string
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run <assembly> [-- args...]",
		Short: "Load an assembly from memory and run its entry point",
		Example: `  clrhost run Seatbelt.exe -- -group=system
  clrhost run --runtime v2 --exit tool.exe --arg one --arg two`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], append(extra, args[1:]...))
		},
	}

	f := cmd.Flags()
	f.String("runtime", defaults.Runtime, "runtime version: v2, v3, v4 or default")
	f.String("domain", defaults.Domain, "application domain to create (random name when empty)")
	f.StringArrayVar(&extra, "arg", nil, "argument for the entry point, repeatable")
	f.Bool("output", defaults.Output, "capture the console output of the assembly")
	f.Bool("exit", defaults.Exit, "patch System.Environment.Exit during the run")
	f.Bool("best-effort-exit", defaults.BestEffortExit, "like --exit, but run anyway when the patch fails")
	f.Bool("host-store", defaults.HostStore, "load through the host assembly store instead of Load_3")
	return cmd
}

func (a *app) run(cmd *cobra.Command, path string, args []string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	logging.Debug("assembly read", "path", path, "bytes", len(image))

	r, err := clr.NewRunner(image)
	if err != nil {
		return err
	}

	cfg := a.cfg
	r.Runtime(cfg.RuntimeVersion()).
		Args(args...).
		Logger(logging.With("assembly", filepath.Base(path)))
	if cfg.Domain != "" {
		r.Domain(cfg.Domain)
	}
	if cfg.Output {
		r.Output()
	}
	if cfg.HostStore {
		r.HostStore()
	}
	switch {
	case cfg.BestEffortExit:
		if cfg.Exit {
			logging.Warn("exit and best-effort-exit both set, the run continues if the patch fails")
		}
		r.BestEffortExit()
	case cfg.Exit:
		r.Exit()
	}

	out, err := r.Run()
	if out != "" {
		fmt.Fprint(cmd.OutOrStdout(), out)
	}
	if hr, ok := clr.HResultOf(err); ok {
		logging.Debug("run failed", "kind", clr.KindOf(err).String(), "hresult", fmt.Sprintf("0x%08X", hr))
	}
	return err
}
