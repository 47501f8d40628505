package main

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func newBulkCommand(cfg *cliConfig) *cobra.Command {
	var filePath string
	var failOnError bool
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Submit an NDJSON _bulk payload",
		Example: `  oswrap bulk --file orders.ndjson
  generate-actions | oswrap bulk --file - --fail-on-error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, filePath)
			if err != nil {
				return err
			}
			payload, err = normalizeBulkPayload(payload)
			if err != nil {
				return err
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := cli.BulkRaw(ctx, payload)
			if err != nil {
				return err
			}
			failed := res.Failed()
			fmt.Fprintf(cmd.ErrOrStderr(), "bulk: %s items, %s failed, took %dms\n",
				humanize.Comma(int64(len(res.Items))), humanize.Comma(int64(len(failed))), res.Took)
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if failOnError && len(failed) > 0 {
				return fmt.Errorf("bulk: %d of %d items failed", len(failed), len(res.Items))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "-", "NDJSON file (- for stdin)")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when any item fails")
	return cmd
}

// normalizeBulkPayload drops blank lines, validates every remaining line and
// guarantees the trailing newline the _bulk endpoint requires.
func normalizeBulkPayload(payload []byte) ([]byte, error) {
	var out bytes.Buffer
	lineNo := 0
	for line := range bytes.Lines(payload) {
		lineNo++
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, fmt.Errorf("bulk: line %d: invalid JSON", lineNo)
		}
		out.Write(line)
		out.WriteByte('\n')
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("bulk: empty payload")
	}
	return out.Bytes(), nil
}
