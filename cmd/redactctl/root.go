package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// errReported fails a command whose error has already been printed
var errReported = errors.New("failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redactctl",
		Short: "Validate, test and distribute log redaction rules",
		Long: `redactctl works with the rules files read by redactord.

Rules files are JSON (or YAML when the name ends in .yaml or .yml) with a
top-level "rules" array. Each rule has a "search" regular expression and a
"replace" template, plus optional "description", "trigger" and
"caseSensitive" keys.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newCheckCmd(),
		newRedactCmd(),
		newBatchCmd(),
		newInitCmd(),
		newPublishCmd(),
	)
	return root
}
