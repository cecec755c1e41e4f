package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lesnuages/clrhost/clr"
	"github.com/lesnuages/clrhost/internal/logging"
)

func (a *app) newRuntimesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runtimes",
		Short: "List the CLR versions installed on this machine",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			versions, err := clr.InstalledRuntimes(clr.WithLogger(logging.Logger))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(versions) == 0 {
				fmt.Fprintln(out, hintStyle.Render("no runtime installed"))
				return nil
			}
			for _, v := range versions {
				fmt.Fprintln(out, valueStyle.Render(v))
			}
			return nil
		},
	}
}
