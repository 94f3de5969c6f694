package main

import (
	"encoding/json"
	"fmt"

	"github.com/raaihank/log-redactor/internal/batch"
	"github.com/raaihank/log-redactor/internal/redact"
	"github.com/spf13/cobra"
)

func newRedactCmd() *cobra.Command {
	var (
		detailed bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "redact <rules> [text...]",
		Short: "Redact text with a rules file",
		Long: `Redact each text argument and print the result on its own line.

Without text arguments, standard input is redacted line by line and written
to standard output. Use --format jsonl to redact only the "message" field of
JSON lines.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := redact.NewEngineFromFile(args[0])
			if err != nil {
				printConfigError(cmd.ErrOrStderr(), err)
				return errReported
			}
			out := cmd.OutOrStdout()

			if texts := args[1:]; len(texts) > 0 {
				enc := json.NewEncoder(out)
				enc.SetEscapeHTML(false)
				for _, text := range texts {
					if !detailed {
						fmt.Fprintln(out, engine.Redact(text))
						continue
					}
					if err := enc.Encode(engine.RedactDetailed(text)); err != nil {
						return err
					}
				}
				return nil
			}

			f, ok := batch.ParseFormat(format)
			if !ok || f == batch.FormatParquet {
				return fmt.Errorf("unsupported stdin format %q", format)
			}
			if f == "" {
				f = batch.FormatText
			}
			p := batch.NewPipeline(engine, batch.Config{}, nil)
			_, err = p.ProcessStream(cmd.Context(), cmd.InOrStdin(), out, f)
			return err
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Print a JSON result per text with the rules that matched")
	cmd.Flags().StringVar(&format, "format", "text", "Format of standard input: text or jsonl")
	return cmd
}
