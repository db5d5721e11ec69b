package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	label   = color.New(color.FgCyan)
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
)

// Execute runs the noffer CLI.
func Execute() error {
	root := newRoot()
	if err := root.Execute(); err != nil {
		failure.Fprintf(root.ErrOrStderr(), "error: %v\n", err)
		return err
	}
	return nil
}

func newRoot() *cobra.Command {
	var noColor bool
	root := &cobra.Command{
		Use:           "noffer",
		Short:         "Inspect noffer pointers and request invoices over NIP-69",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(decodeCmd(), encodeCmd(), requestCmd(), respondCmd(), payCmd())
	return root
}

func field(w io.Writer, name string, value any) {
	label.Fprintf(w, "%-11s", name+":")
	fmt.Fprintf(w, " %v\n", value)
}
