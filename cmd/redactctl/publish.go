package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/raaihank/log-redactor/internal/config"
	"github.com/raaihank/log-redactor/internal/redact"
	"github.com/raaihank/log-redactor/internal/rulestore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPublishCmd() *cobra.Command {
	defaults := config.GetDefaults().Redis
	storeConfig := rulestore.Config{
		URL:     defaults.URL,
		Key:     defaults.Key,
		Channel: defaults.Channel,
	}
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "publish <rules>",
		Short: "Publish a rules file to Redis",
		Long: `Validate a rules file and publish it to Redis.

Every redactord started with redis.use_as_source reloads the published
rules. An invalid file is rejected before anything is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := publishable(args[0])
			if err != nil {
				printConfigError(cmd.ErrOrStderr(), err)
				return errReported
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			store, err := rulestore.New(&storeConfig, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()

			rs, err := store.Publish(ctx, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Published %d rule(s) to %s, checksum %s\n", rs.Len(), store.Name(), rs.Checksum())
			return nil
		},
	}

	cmd.Flags().StringVar(&storeConfig.URL, "redis", storeConfig.URL, "Redis URL")
	cmd.Flags().StringVar(&storeConfig.Key, "key", storeConfig.Key, "Key holding the rules document")
	cmd.Flags().StringVar(&storeConfig.Channel, "channel", storeConfig.Channel, "Channel announcing new rules")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Time limit for the publish")
	return cmd
}

// publishable returns the JSON document to store for path. YAML files are
// converted to JSON.
func publishable(path string) ([]byte, error) {
	rs, err := redact.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if redact.IsYAML(path) {
		return encodeDocument(rs.Document(), false)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return data, nil
}
