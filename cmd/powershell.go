package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lesnuages/clrhost/clr"
	"github.com/lesnuages/clrhost/internal/logging"
)

func (a *app) newPowerShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "powershell <command...>",
		Aliases: []string{"ps"},
		Short:   "Run PowerShell script text in a hosted runspace",
		Example: `  clrhost powershell '$PSVersionTable'`,
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := clr.NewPowerShell(clr.WithLogger(logging.Logger))
			if err != nil {
				return err
			}
			defer func() {
				if err := ps.Close(); err != nil {
					logging.Warn("closing runspace", "err", err)
				}
			}()

			out, err := ps.Execute(strings.Join(args, " "))
			if out != "" {
				fmt.Fprint(cmd.OutOrStdout(), out)
			}
			return err
		},
	}
}
