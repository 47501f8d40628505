package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"pkt.systems/oswrap/api"
	"pkt.systems/oswrap/client"
)

func newIndexCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage indices, settings, mappings and aliases",
	}
	cmd.AddCommand(
		newIndexCreateCommand(cfg),
		newIndexDeleteCommand(cfg),
		newIndexExistsCommand(cfg),
		newIndexListCommand(cfg),
		newIndexSettingsCommand(cfg),
		newIndexPutSettingsCommand(cfg),
		newIndexMappingCommand(cfg),
		newIndexPutMappingCommand(cfg),
		newIndexAliasesCommand(cfg),
		newIndexUpdateAliasesCommand(cfg),
	)
	return cmd
}

func newIndexCreateCommand(cfg *cliConfig) *cobra.Command {
	var bodyPath string
	cmd := &cobra.Command{
		Use:   "create INDEX",
		Short: "Create an index, optionally with settings and mappings",
		Args:  cobra.ExactArgs(1),
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
			res, err := cli.CreateIndex(ctx, args[0], optionalBody(body))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "file holding the index body (- for stdin)")
	return cmd
}

func newIndexDeleteCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "delete INDEX",
		Short: "Delete an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := cli.DeleteIndex(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newIndexExistsCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "exists INDEX",
		Short: "Print whether an index exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			ok, err := cli.IndexExists(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
}

func newIndexListCommand(cfg *cliConfig) *cobra.Command {
	var namesOnly bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible indices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			indices, err := cli.Indices(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case namesOnly:
				for _, name := range lo.Map(indices, func(info api.IndexInfo, _ int) string { return info.Index }) {
					if _, err := fmt.Fprintln(out, name); err != nil {
						return err
					}
				}
				return nil
			case asJSON:
				return writeJSON(out, indices)
			}
			for _, info := range indices {
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s docs\t%s\n",
					info.Index, info.Health, humanizeCount(info.DocsCount), info.StoreSize); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&namesOnly, "names", false, "print index names only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cat rows as JSON")
	return cmd
}

// humanizeCount renders a cat API count column with thousands separators.
func humanizeCount(s string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return s
	}
	return humanize.Comma(n)
}

func newIndexSettingsCommand(cfg *cliConfig) *cobra.Command {
	return newIndexReadCommand(cfg, "settings [INDEX...]", "Print index settings",
		func(c *client.Client) indexGetFunc { return c.GetIndexSettings })
}

func newIndexMappingCommand(cfg *cliConfig) *cobra.Command {
	return newIndexReadCommand(cfg, "mapping [INDEX...]", "Print index mappings",
		func(c *client.Client) indexGetFunc { return c.GetIndexMapping })
}

func newIndexAliasesCommand(cfg *cliConfig) *cobra.Command {
	return newIndexReadCommand(cfg, "aliases [INDEX...]", "Print index aliases",
		func(c *client.Client) indexGetFunc { return c.GetIndexAliases })
}

func newIndexPutSettingsCommand(cfg *cliConfig) *cobra.Command {
	return newIndexWriteCommand(cfg, "put-settings [INDEX...]", "Update dynamic index settings", 0,
		func(c *client.Client) indexPutFunc { return c.PutIndexSettings })
}

func newIndexPutMappingCommand(cfg *cliConfig) *cobra.Command {
	return newIndexWriteCommand(cfg, "put-mapping INDEX...", "Add fields to index mappings", 1,
		func(c *client.Client) indexPutFunc { return c.PutIndexMapping })
}

type (
	indexGetFunc func(ctx context.Context, indices ...string) (json.RawMessage, error)
	indexPutFunc func(ctx context.Context, body any, indices ...string) (json.RawMessage, error)
)

func newIndexReadCommand(cfg *cliConfig, use, short string, bind func(*client.Client) indexGetFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := bind(cli)(ctx, args...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newIndexWriteCommand(cfg *cliConfig, use, short string, minArgs int, bind func(*client.Client) indexPutFunc) *cobra.Command {
	var bodyPath string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(minArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := requireJSONBody(cmd, bodyPath)
			if err != nil {
				return err
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := bind(cli)(ctx, body, args...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&bodyPath, "body", "b", "-", "file holding the request body (- for stdin)")
	return cmd
}

func newIndexUpdateAliasesCommand(cfg *cliConfig) *cobra.Command {
	var bodyPath string
	cmd := &cobra.Command{
		Use:     "update-aliases",
		Short:   "Apply an _aliases actions body",
		Example: `  echo '{"actions":[{"add":{"index":"orders-2026","alias":"orders"}}]}' | oswrap index update-aliases --body -`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := requireJSONBody(cmd, bodyPath)
			if err != nil {
				return err
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := cli.UpdateIndexAliases(ctx, body)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&bodyPath, "body", "b", "-", "file holding the actions body (- for stdin)")
	return cmd
}

func newReindexCommand(cfg *cliConfig) *cobra.Command {
	var bodyPath string
	var source, dest, query string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Copy documents from one index to another",
		Example: `  # Copy active orders into a new index
  oswrap reindex --source orders --dest orders-active --query 'status:active'

  # Full reindex body
  oswrap reindex --body reindex.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readJSONBody(cmd, bodyPath)
			if err != nil {
				return err
			}
			var payload any = optionalBody(body)
			if payload == nil {
				if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
					return fmt.Errorf("reindex requires --body or both --source and --dest")
				}
				src := map[string]any{"index": source}
				if strings.TrimSpace(query) != "" {
					src["query"] = api.QueryString(query)
				}
				payload = map[string]any{
					"source": src,
					"dest":   map[string]any{"index": dest},
				}
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := cli.Reindex(ctx, payload)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&bodyPath, "body", "b", "", "file holding a full reindex body (- for stdin)")
	cmd.Flags().StringVar(&source, "source", "", "source index")
	cmd.Flags().StringVar(&dest, "dest", "", "destination index")
	cmd.Flags().StringVar(&query, "query", "", "optional query-string filter on the source")
	return cmd
}
