package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lesnuages/clrhost/assembly"
	"github.com/lesnuages/clrhost/clr"
)

func (a *app) newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <assembly>",
		Short: "Print the managed headers of an assembly without loading it",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			img, err := assembly.Parse(b)
			if err != nil {
				return &clr.Error{Kind: clr.InvalidAssemblyImage, Stage: clr.StageLoad, Op: "inspect", Err: err}
			}
			fmt.Fprint(cmd.OutOrStdout(), describeImage(args[0], img))
			if !img.HasEntryPoint() {
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning: ")+"no entry point, the image cannot be run")
			}
			return nil
		},
	}
}

func describeImage(path string, img *assembly.Image) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(path) + "\n")

	kind := "exe"
	if img.IsDLL() {
		kind = "dll"
	}
	format := "PE32"
	if img.PE32Plus {
		format = "PE32+"
	}
	entry := "none"
	if img.HasEntryPoint() {
		entry = fmt.Sprintf("0x%08x", uint32(img.CLR.EntryPointToken))
	}

	b.WriteString(field("Kind", kind))
	b.WriteString(field("Format", format))
	b.WriteString(field("Machine", img.MachineName()))
	b.WriteString(field("Subsystem", img.SubsystemName()))
	b.WriteString(field("Runtime", img.RuntimeVersion))
	b.WriteString(field("IL only", strconv.FormatBool(img.ILOnly())))
	b.WriteString(field("Strong name", strconv.FormatBool(img.StrongNamed())))
	b.WriteString(field("Entry point", entry))
	b.WriteString(field("Sections", strings.Join(img.SectionNames(), " ")))
	return b.String()
}
