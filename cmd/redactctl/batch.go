package main

import (
	"fmt"

	"github.com/raaihank/log-redactor/internal/batch"
	"github.com/raaihank/log-redactor/internal/logger"
	"github.com/raaihank/log-redactor/internal/redact"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	config := batch.DefaultConfig()
	var (
		format  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "batch <rules> <in> <out>",
		Short: "Redact an archived log file",
		Long: `Redact a log archive into a new file.

The format is taken from the input file extension unless --format is given:
.parquet files hold rows of {timestamp, level, logger, message}, .jsonl and
.ndjson files hold one JSON object per line, anything else is plain text.
Only the message is redacted; lines that need no change are copied as is.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := batch.ParseFormat(format)
			if !ok {
				return fmt.Errorf("unknown format %q", format)
			}
			config.Format = f

			engine, err := redact.NewEngineFromFile(args[0])
			if err != nil {
				printConfigError(cmd.ErrOrStderr(), err)
				return errReported
			}

			log := logger.NewNop()
			if verbose {
				if log, err = logger.New(logger.Config{Level: "info", Format: "console"}); err != nil {
					return err
				}
				defer log.Sync()
			}

			result, err := batch.NewPipeline(engine, config, log.Logger).ProcessFile(cmd.Context(), args[1], args[2])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d record(s), %d changed, %d failed in %s\n",
				result.Format, result.Records, result.Changed, result.Failed, result.Duration)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "auto", "Input format: auto, text, jsonl or parquet")
	cmd.Flags().IntVar(&config.Workers, "workers", config.Workers, "Number of redaction workers")
	cmd.Flags().IntVar(&config.BatchSize, "batch-size", config.BatchSize, "Records per batch")
	cmd.Flags().StringVar(&config.Field, "field", config.Field, "Message field of jsonl records")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log progress")
	return cmd
}
