package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/oswrap"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage oswrap configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.oswrap/" + oswrap.DefaultConfigFileName
	if dir, err := oswrap.DefaultConfigDir(); err == nil {
		defaultOutput = filepath.Join(dir, oswrap.DefaultConfigFileName)
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default oswrap configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			if outPath == "" {
				dir, err := oswrap.DefaultConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = filepath.Join(dir, oswrap.DefaultConfigFileName)
			}

			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}

			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

// configDefaults mirrors the persistent flags; keys match flag names so the
// generated file is read back through viper unchanged.
type configDefaults struct {
	Endpoint          []string `yaml:"endpoint"`
	Region            string   `yaml:"region"`
	Credentials       string   `yaml:"credentials"`
	Profile           string   `yaml:"profile"`
	SigningService    string   `yaml:"signing-service"`
	Timeout           string   `yaml:"timeout"`
	CredentialTimeout string   `yaml:"credential-timeout"`
	Insecure          bool     `yaml:"insecure"`
	CACert            string   `yaml:"ca-cert"`
	ClientCert        string   `yaml:"client-cert"`
	Username          string   `yaml:"username"`
	PageRate          float64  `yaml:"page-rate"`
	LogLevel          string   `yaml:"log-level"`
	OTLPEndpoint      string   `yaml:"otlp-endpoint"`
	MetricsListen     string   `yaml:"metrics-listen"`
	RuntimeMetrics    bool     `yaml:"runtime-metrics"`
}

func defaultConfigYAML(overrides ...func(*configDefaults)) ([]byte, error) {
	defaults := configDefaults{
		Endpoint:          []string{oswrap.DefaultEndpoint},
		Credentials:       string(oswrap.DefaultCredentialMode),
		SigningService:    oswrap.DefaultSigningService,
		Timeout:           oswrap.DefaultTimeout.String(),
		CredentialTimeout: oswrap.DefaultCredentialTimeout.String(),
		LogLevel:          "info",
	}
	for _, override := range overrides {
		if override != nil {
			override(&defaults)
		}
	}
	data, err := yaml.Marshal(&defaults)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
