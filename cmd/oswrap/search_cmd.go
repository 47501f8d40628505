package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/oswrap/api"
	"pkt.systems/oswrap/scan"
)

const defaultQuery = "*"

func queryArg(args []string) string {
	if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
		return args[1]
	}
	return defaultQuery
}

func newScanCommand(cfg *cliConfig) *cobra.Command {
	var sourceOnly bool
	var requireComplete bool
	var startAfter string
	var fetched int
	cmd := &cobra.Command{
		Use:   "scan INDEX [QUERY]",
		Short: "Stream every document matching a query-string expression as NDJSON",
		Long: `Scan walks the whole result set with search_after cursors, one page of
10000 documents at a time, sorted by _id. Hits are written to stdout as
newline-delimited JSON; a summary with the stop reason and the resume cursor
is written to stderr.`,
		Example: `  # Every active order
  oswrap scan orders 'status:active' > active.ndjson

  # Resume a scan from the cursor printed by a previous run
  oswrap scan orders 'status:active' --start-after '["doc-020000"]' --fetched 20000`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []scan.IterOption
			if strings.TrimSpace(startAfter) != "" {
				var cursor []any
				dec := json.NewDecoder(strings.NewReader(startAfter))
				dec.UseNumber()
				if err := dec.Decode(&cursor); err != nil {
					return fmt.Errorf("--start-after: %w", err)
				}
				opts = append(opts, scan.StartAfter(cursor))
			}
			if fetched > 0 {
				opts = append(opts, scan.Fetched(fetched))
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()

			out := bufio.NewWriter(cmd.OutOrStdout())
			enc := json.NewEncoder(out)
			begin := time.Now()
			it := cli.ScanPages(args[0], queryArg(args), opts...)
			for it.Next(ctx) {
				for _, hit := range it.Page() {
					var v any = hit
					if sourceOnly {
						v = hit.Source
					}
					if err := enc.Encode(v); err != nil {
						return fmt.Errorf("write hit: %w", err)
					}
				}
				if err := out.Flush(); err != nil {
					return fmt.Errorf("write hits: %w", err)
				}
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("write hits: %w", err)
			}
			writeScanSummary(cmd.ErrOrStderr(), args[0], it, time.Since(begin))
			if err := it.Err(); err != nil {
				return err
			}
			if requireComplete && it.Reason() != scan.ReasonComplete {
				return fmt.Errorf("scan of %s stopped early: %s", args[0], it.Reason())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sourceOnly, "source-only", false, "write only each hit's _source")
	cmd.Flags().BoolVar(&requireComplete, "require-complete", false, "exit non-zero unless every document up to the reported total was fetched")
	cmd.Flags().StringVar(&startAfter, "start-after", "", "JSON sort tuple to resume after (printed as cursor by a previous scan)")
	cmd.Flags().IntVar(&fetched, "fetched", 0, "documents already fetched by the scan being resumed")
	return cmd
}

func writeScanSummary(w io.Writer, index string, it *scan.Iterator, elapsed time.Duration) {
	total := "unknown"
	if it.Total() >= 0 {
		total = humanize.Comma(it.Total())
	}
	cursor := "none"
	if c := it.Cursor(); len(c) > 0 {
		if data, err := json.Marshal(c); err == nil {
			cursor = string(data)
		}
	}
	fmt.Fprintf(w, "scan %s: %s of %s documents in %d pages (%s) in %s, cursor %s\n",
		index,
		humanize.Comma(int64(it.Fetched())),
		total,
		it.Pages(),
		it.Reason(),
		elapsed.Round(time.Millisecond),
		cursor,
	)
}

func newQueryCommand(cfg *cliConfig) *cobra.Command {
	var size, from int
	var sortSpec string
	var raw bool
	cmd := &cobra.Command{
		Use:   "query INDEX [QUERY]",
		Short: "Run a single query-string search and print the matched sources",
		Example: `  # Ten newest orders
  oswrap query orders 'status:active' --size 10 --sort created:desc`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			opts := api.QueryOptions{Size: size, From: from, Sort: api.ParseSort(sortSpec)}
			if raw {
				resp, err := cli.Raw(ctx, args[0], queryArg(args), opts)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			sources, err := cli.Query(ctx, args[0], queryArg(args), opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sources)
		},
	}
	cmd.Flags().IntVar(&size, "size", 1, "number of hits to return")
	cmd.Flags().IntVar(&from, "from", 0, "offset into the result window")
	cmd.Flags().StringVar(&sortSpec, "sort", "", "comma separated field:order list")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the full search response instead of sources")
	return cmd
}

func newCountCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "count INDEX [QUERY]",
		Short: "Count documents matching a query-string expression",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			n, err := cli.Count(ctx, args[0], queryArg(args))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func newAggregateCommand(cfg *cliConfig) *cobra.Command {
	var sums []string
	cmd := &cobra.Command{
		Use:   "aggregate INDEX [QUERY]",
		Short: "Sum numeric fields over the documents matching a query",
		Example: `  # Revenue and item count of active orders
  oswrap aggregate orders 'status:active' --sum revenue=total --sum items=quantity`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parseSums(sums)
			if err != nil {
				return err
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			aggs, err := cli.Aggregate(ctx, args[0], queryArg(args), pairs)
			if err != nil {
				return err
			}
			out := make(map[string]any, len(pairs))
			for name := range pairs {
				if v, ok := aggs.Sum(name); ok {
					out[name] = v
				} else {
					out[name] = nil
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringArrayVar(&sums, "sum", nil, "name=field sum aggregation (repeatable)")
	return cmd
}

func parseSums(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one --sum name=field is required")
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, field, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		field = strings.TrimSpace(field)
		if !ok || name == "" || field == "" {
			return nil, fmt.Errorf("invalid --sum %q (expected name=field)", pair)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate --sum name %q", name)
		}
		out[name] = field
	}
	return out, nil
}

func newSearchCommand(cfg *cliConfig) *cobra.Command {
	var bodyPath string
	cmd := &cobra.Command{
		Use:     "search INDEX",
		Short:   "Send a raw search body and print the response",
		Example: `  echo '{"query":{"match_all":{}},"size":3}' | oswrap search orders --body -`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readJSONBody(cmd, bodyPath)
			if err != nil {
				return err
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			resp, err := cli.Search(ctx, args[0], optionalBody(body))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&bodyPath, "body", "b", "-", "file holding the search body (- for stdin)")
	return cmd
}

// optionalBody turns an absent body into an untyped nil so no request body is sent.
func optionalBody(body json.RawMessage) any {
	if len(body) == 0 {
		return nil
	}
	return body
}
