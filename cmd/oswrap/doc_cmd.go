package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func newDocCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Create and delete single documents",
	}
	cmd.AddCommand(newDocCreateCommand(cfg), newDocDeleteCommand(cfg))
	return cmd
}

func newDocCreateCommand(cfg *cliConfig) *cobra.Command {
	var id string
	var filePath string
	var fields []string
	cmd := &cobra.Command{
		Use:   "create INDEX",
		Short: "Store a new document (fails if --id already exists)",
		Example: `  # Build a document from fields; values that parse as JSON keep their type
  oswrap doc create orders --id o-1 --field status=active --field total=42 --field customer.name=Ada

  # From a file, overriding one field
  oswrap doc create orders --file order.json --field status=pending`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := buildDocument(cmd, filePath, fields)
			if err != nil {
				return err
			}
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := cli.CreateDocument(ctx, args[0], doc, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "document id (generated by the cluster when empty)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "file holding the JSON document (- for stdin)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "path=value to set on the document (repeatable, dotted paths allowed)")
	return cmd
}

// buildDocument starts from the document in filePath (or an empty object) and
// applies each path=value field with sjson. Values that are valid JSON are
// set raw; anything else is stored as a string.
func buildDocument(cmd *cobra.Command, filePath string, fields []string) (json.RawMessage, error) {
	doc, err := readJSONBody(cmd, filePath)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		if len(fields) == 0 {
			return nil, fmt.Errorf("a document is required (--file or --field)")
		}
		doc = json.RawMessage(`{}`)
	}
	if len(fields) > 0 && !gjson.ParseBytes(doc).IsObject() {
		return nil, fmt.Errorf("--field requires the document to be a JSON object")
	}
	for _, field := range fields {
		path, value, ok := strings.Cut(field, "=")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --field %q (expected path=value)", field)
		}
		if gjson.Valid(value) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(value))
		} else {
			doc, err = sjson.SetBytes(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("set field %q: %w", path, err)
		}
	}
	return doc, nil
}

func newDocDeleteCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "delete INDEX ID",
		Short: "Delete a document by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cli, err := cfg.open(cmd)
			if err != nil {
				return err
			}
			defer cfg.cleanup()
			res, err := cli.DeleteDocument(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}
