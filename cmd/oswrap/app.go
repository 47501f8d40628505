package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"pkt.systems/oswrap"
	"pkt.systems/oswrap/internal/loggingutil"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("OSWRAP_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "oswrap")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()
	cfg := &cliConfig{v: v, baseLogger: loggingutil.EnsureLogger(baseLogger)}

	cmd := &cobra.Command{
		Use:           "oswrap",
		Short:         "oswrap queries and manages OpenSearch clusters, including deep scans past the result window",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Every active document of an Amazon OpenSearch domain (ambient AWS credentials)
  oswrap --endpoint https://search-logs.eu-north-1.es.amazonaws.com --region eu-north-1 scan orders 'status:active'

  # Local unsigned cluster
  oswrap --endpoint http://localhost:9200 --credentials none count orders '*'

  # SSO profile
  oswrap --credentials profile --profile prod --region us-east-1 index list
`,
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.oswrap/"+oswrap.DefaultConfigFileName+")")
	persistentFlags.StringSliceP("endpoint", "e", nil, "cluster endpoint URL (repeatable or comma separated; default "+oswrap.DefaultEndpoint+")")
	persistentFlags.String("region", "", "AWS region used for request signing (falls back to AWS_REGION/AWS_DEFAULT_REGION)")
	persistentFlags.String("credentials", string(oswrap.DefaultCredentialMode), fmt.Sprintf("credential source (%s)", joinModes(oswrap.ValidCredentialModes())))
	persistentFlags.String("profile", "", "shared config profile for --credentials profile")
	persistentFlags.String("access-key-id", "", "access key id for --credentials static")
	persistentFlags.String("secret-access-key", "", "secret access key for --credentials static")
	persistentFlags.String("session-token", "", "optional session token for --credentials static")
	persistentFlags.String("signing-service", oswrap.DefaultSigningService, "SigV4 service name (es, or aoss for serverless collections)")
	persistentFlags.Duration("timeout", oswrap.DefaultTimeout, "per-request timeout")
	persistentFlags.Duration("credential-timeout", oswrap.DefaultCredentialTimeout, "timeout for a single credential retrieval")
	persistentFlags.Bool("insecure", false, "skip TLS certificate verification")
	persistentFlags.String("ca-cert", "", "PEM file of extra CA certificates trusted for the cluster")
	persistentFlags.String("client-cert", "", "PEM bundle with a client certificate and private key for mutual TLS")
	persistentFlags.String("username", "", "HTTP basic auth username")
	persistentFlags.String("password", "", "HTTP basic auth password")
	persistentFlags.String("correlation-id", "", "correlation id sent as X-Opaque-Id (generated when empty)")
	persistentFlags.Float64("page-rate", 0, "maximum scan pages per second (0 disables throttling)")
	persistentFlags.String("log-level", "", "log level (trace|debug|info|warn|error|none); overrides OSWRAP_LOG_LEVEL")
	persistentFlags.String("otlp-endpoint", "", "OTLP trace collector endpoint (empty disables)")
	persistentFlags.String("metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	persistentFlags.Bool("runtime-metrics", false, "include Go runtime metrics on the Prometheus endpoint")

	v.SetEnvPrefix("OSWRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{
		"config", "endpoint", "region", "credentials", "profile",
		"access-key-id", "secret-access-key", "session-token",
		"signing-service", "timeout", "credential-timeout", "insecure",
		"ca-cert", "client-cert",
		"username", "password", "correlation-id", "page-rate",
		"log-level", "otlp-endpoint", "metrics-listen", "runtime-metrics",
	} {
		flag := persistentFlags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(
		newScanCommand(cfg),
		newQueryCommand(cfg),
		newCountCommand(cfg),
		newAggregateCommand(cfg),
		newSearchCommand(cfg),
		newDocCommand(cfg),
		newIndexCommand(cfg),
		newReindexCommand(cfg),
		newBulkCommand(cfg),
		newConfigCommand(),
		newVersionCommand(),
	)
	return cmd
}

func joinModes(modes []oswrap.CredentialMode) string {
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return strings.Join(out, ", ")
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := oswrap.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, oswrap.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}

	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
