package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/raaihank/log-redactor/internal/redact"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check <rules>",
		Short: "Validate a rules file",
		Long: `Load and compile a rules file exactly as redactord would.

On success a summary of the rules is printed. On failure the error kind,
the offending rule and field, and the position in the file (for malformed
JSON) are printed and the command exits with status 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			rs, err := redact.LoadFile(args[0])
			if err != nil {
				printConfigError(cmd.ErrOrStderr(), err)
				return errReported
			}

			fmt.Fprintf(out, "✓ %s: %d rule(s), checksum %s\n", rs.Source(), rs.Len(), rs.Checksum())
			if !verbose {
				return nil
			}
			for i, rule := range rs.Rules() {
				printRule(out, i, rule)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every rule")
	return cmd
}

func printRule(w io.Writer, i int, rule *redact.Rule) {
	fmt.Fprintf(w, "  [%d] %s\n", i, rule.Search())
	if rule.Description() != "" {
		fmt.Fprintf(w, "      description: %s\n", rule.Description())
	}
	if rule.Trigger() != "" {
		fmt.Fprintf(w, "      trigger:     %q\n", rule.Trigger())
	}
	if !rule.CaseSensitive() {
		fmt.Fprintln(w, "      case-insensitive")
	}
}

// printConfigError writes err field by field when it is a *redact.ConfigError
func printConfigError(w io.Writer, err error) {
	fmt.Fprintf(w, "✗ %v\n", err)

	var cfgErr *redact.ConfigError
	if !errors.As(err, &cfgErr) {
		return
	}
	fmt.Fprintf(w, "  kind:   %s\n", cfgErr.Kind)
	if cfgErr.Index >= 0 {
		fmt.Fprintf(w, "  rule:   %d\n", cfgErr.Index)
	}
	if cfgErr.Field != "" {
		fmt.Fprintf(w, "  field:  %s\n", cfgErr.Field)
	}
	if cfgErr.Line > 0 {
		fmt.Fprintf(w, "  line:   %d\n", cfgErr.Line)
		fmt.Fprintf(w, "  column: %d\n", cfgErr.Column)
	}
}
