package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/oswrap/internal/version"
)

func newVersionCommand() *cobra.Command {
	var onlyVersion bool
	var onlySemver bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the oswrap version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if onlyVersion && onlySemver {
				return fmt.Errorf("--version and --semver are mutually exclusive")
			}
			var err error
			switch {
			case onlyVersion:
				_, err = fmt.Fprintln(cmd.OutOrStdout(), version.Current())
			case onlySemver:
				_, err = fmt.Fprintln(cmd.OutOrStdout(), version.CurrentSemver())
			default:
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Module(), version.Current())
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&onlyVersion, "version", false, "print only the version")
	cmd.Flags().BoolVar(&onlySemver, "semver", false, "print only the semantic version")
	return cmd
}
