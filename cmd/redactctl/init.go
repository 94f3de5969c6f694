package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/raaihank/log-redactor/internal/redact"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a starter rules file",
		Long: `Write a rules file with the default rules for cloud and API tokens,
passwords, private keys, social security and card numbers and email
addresses.

The file is written as YAML when the path ends in .yaml or .yml and as JSON
otherwise. Existing files are kept unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}

			data, err := encodeDocument(redact.DefaultDocument(), redact.IsYAML(path))
			if err != nil {
				return err
			}

			// the rules are compiled once more so a broken default never ships
			if redact.IsYAML(path) {
				_, err = redact.ParseYAML(data, path)
			} else {
				_, err = redact.ParseJSON(data, path)
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write rules file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d rule(s) to %s\n", len(redact.DefaultRules()), path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func encodeDocument(doc redact.Document, asYAML bool) ([]byte, error) {
	if asYAML {
		return yaml.Marshal(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
