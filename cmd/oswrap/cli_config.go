package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
	"pkt.systems/pslog"

	"pkt.systems/oswrap"
	"pkt.systems/oswrap/client"
	"pkt.systems/oswrap/internal/correlation"
	"pkt.systems/oswrap/internal/loggingutil"
	"pkt.systems/oswrap/internal/telemetry"
	"pkt.systems/oswrap/internal/version"
	"pkt.systems/oswrap/scan"
)

const telemetryShutdownTimeout = 5 * time.Second

// cliConfig resolves flags, environment and the config file into an
// oswrap.Config once per command invocation.
type cliConfig struct {
	v          *viper.Viper
	baseLogger pslog.Logger

	loaded     bool
	logger     pslog.Logger
	cfg        oswrap.Config
	pageRate   float64
	configFile string
	telemetry  *telemetry.Bundle
}

func (c *cliConfig) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	configFile, err := loadConfigFile(c.v)
	if err != nil {
		return err
	}
	c.configFile = configFile

	logger := c.baseLogger
	if levelStr := strings.TrimSpace(c.v.GetString("log-level")); levelStr != "" {
		switch strings.ToLower(levelStr) {
		case "none", "off", "disabled":
			logger = loggingutil.NoopLogger()
		default:
			level, ok := pslog.ParseLevel(levelStr)
			if !ok {
				return fmt.Errorf("invalid log level %q", levelStr)
			}
			logger = logger.LogLevel(level)
		}
	}
	c.logger = logger
	cliLogger := loggingutil.WithSubsystem(logger, "cli.config")
	if configFile != "" {
		cliLogger.Debug("cli.config.loaded", "path", configFile)
	}

	mode, err := oswrap.ParseCredentialMode(c.v.GetString("credentials"))
	if err != nil {
		return err
	}
	region := strings.TrimSpace(c.v.GetString("region"))
	if region == "" {
		if v := strings.TrimSpace(os.Getenv("AWS_REGION")); v != "" {
			region = v
		} else if v := strings.TrimSpace(os.Getenv("AWS_DEFAULT_REGION")); v != "" {
			region = v
		}
	}
	caFile, err := expandPath(strings.TrimSpace(c.v.GetString("ca-cert")))
	if err != nil {
		return fmt.Errorf("--ca-cert: %w", err)
	}
	clientCert, err := expandPath(strings.TrimSpace(c.v.GetString("client-cert")))
	if err != nil {
		return fmt.Errorf("--client-cert: %w", err)
	}
	c.cfg = oswrap.Config{
		Endpoints:         c.v.GetStringSlice("endpoint"),
		Region:            region,
		CredentialMode:    mode,
		Profile:           c.v.GetString("profile"),
		AccessKeyID:       c.v.GetString("access-key-id"),
		SecretAccessKey:   c.v.GetString("secret-access-key"),
		SessionToken:      c.v.GetString("session-token"),
		SigningService:    c.v.GetString("signing-service"),
		Timeout:           c.v.GetDuration("timeout"),
		CredentialTimeout: c.v.GetDuration("credential-timeout"),
		Insecure:          c.v.GetBool("insecure"),
		CAFile:            caFile,
		ClientCertFile:    clientCert,
		Username:          c.v.GetString("username"),
		Password:          c.v.GetString("password"),
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	c.pageRate = c.v.GetFloat64("page-rate")
	if c.pageRate < 0 {
		return fmt.Errorf("--page-rate must not be negative")
	}

	bundle, err := telemetry.Setup(ctx, telemetry.Options{
		OTLPEndpoint:   c.v.GetString("otlp-endpoint"),
		MetricsListen:  c.v.GetString("metrics-listen"),
		RuntimeMetrics: c.v.GetBool("runtime-metrics"),
		ServiceName:    "oswrap",
		ServiceVersion: version.Current(),
	}, logger)
	if err != nil {
		return err
	}
	c.telemetry = bundle
	c.loaded = true
	return nil
}

func (c *cliConfig) cleanup() {
	if c.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		if err := c.telemetry.Shutdown(ctx); err != nil {
			loggingutil.WithSubsystem(c.logger, "cli.telemetry").Warn("telemetry.shutdown.error", "error", err)
		}
		cancel()
		c.telemetry = nil
	}
	c.loaded = false
}

func (c *cliConfig) client() (*client.Client, error) {
	if !c.loaded {
		return nil, fmt.Errorf("cli config not loaded")
	}
	opts := []client.Option{client.WithLogger(c.logger)}
	if c.pageRate > 0 {
		limiter := rate.NewLimiter(rate.Limit(c.pageRate), 1)
		opts = append(opts, client.WithScanOptions(scan.WithRateLimiter(limiter)))
	}
	return client.New(c.cfg, opts...)
}

// open loads configuration and builds a client. The returned context carries
// the invocation's correlation id. Callers must defer cleanup.
func (c *cliConfig) open(cmd *cobra.Command) (context.Context, *client.Client, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.load(ctx); err != nil {
		return nil, nil, err
	}
	cli, err := c.client()
	if err != nil {
		return nil, nil, err
	}
	return c.commandContext(ctx), cli, nil
}

func (c *cliConfig) commandContext(ctx context.Context) context.Context {
	if id := c.v.GetString("correlation-id"); id != "" {
		if normalized, ok := correlation.Normalize(id); ok {
			return correlation.Set(ctx, normalized)
		}
	}
	return correlation.Ensure(ctx)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput returns the contents of path, or of stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", expanded, err)
	}
	return data, nil
}

// readJSONBody reads a JSON document from path and checks it is well formed.
func readJSONBody(cmd *cobra.Command, path string) (json.RawMessage, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: invalid JSON", describeInput(path))
	}
	return json.RawMessage(data), nil
}

func requireJSONBody(cmd *cobra.Command, path string) (json.RawMessage, error) {
	body, err := readJSONBody(cmd, path)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("a request body is required (--body)")
	}
	return body, nil
}

func describeInput(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}
