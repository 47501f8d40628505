package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/signer"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"pkt.systems/oswrap"
	"pkt.systems/oswrap/api"
	"pkt.systems/oswrap/internal/awsauth"
	"pkt.systems/oswrap/internal/correlation"
	"pkt.systems/oswrap/internal/loggingutil"
	"pkt.systems/oswrap/internal/searchlog"
	"pkt.systems/oswrap/internal/tlsutil"
	"pkt.systems/oswrap/scan"
)

// Client forwards calls to an OpenSearch cluster. It is immutable after
// construction and safe for concurrent use.
type Client struct {
	os        *opensearch.Client
	cfg       oswrap.Config
	logger    pslog.Logger
	timeout   time.Duration
	transport http.RoundTripper
	signer    signer.Signer
	signerSet bool
	scanOpts  []scan.Option
	scanner   *scan.Scanner
}

// Option customises a Client.
type Option func(*Client)

// WithLogger supplies a logger for client diagnostics. Passing nil disables logging.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		c.logger = loggingutil.WithSubsystem(logger, "client")
	}
}

// WithTransport replaces the base HTTP transport. Correlation and tracing
// round-trippers are still layered on top.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithSigner overrides the signer derived from the credential mode. A nil
// signer sends unsigned requests.
func WithSigner(s signer.Signer) Option {
	return func(c *Client) {
		c.signer = s
		c.signerSet = true
	}
}

// WithScanOptions appends options applied to the client's scanner.
func WithScanOptions(opts ...scan.Option) Option {
	return func(c *Client) {
		c.scanOpts = append(c.scanOpts, opts...)
	}
}

// New validates cfg and constructs a Client. Credentials are resolved
// lazily on the first signed request.
func New(cfg oswrap.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		logger:  loggingutil.NoopLogger(),
		timeout: cfg.Timeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	base := c.transport
	if base == nil {
		tlsCfg, err := tlsutil.ClientConfig(tlsutil.Options{
			CAFile:         cfg.CAFile,
			ClientCertFile: cfg.ClientCertFile,
			Insecure:       cfg.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("oswrap: tls: %w", err)
		}
		base = defaultTransport(tlsCfg)
	}
	rt := otelhttp.NewTransport(&correlation.Transport{Base: base})

	if !c.signerSet && cfg.CredentialMode.Signed() {
		authCfg := awsauth.FromClientConfig(cfg)
		authCfg.HTTPClient = &http.Client{Transport: base}
		s, err := awsauth.Signer(context.Background(), authCfg, cfg.SigningService)
		if err != nil {
			return nil, fmt.Errorf("oswrap: signer: %w", err)
		}
		c.signer = s
	}

	osCfg := opensearch.Config{
		Addresses:    cfg.Endpoints,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    rt,
		DisableRetry: true,
	}
	if c.signer != nil {
		osCfg.Signer = c.signer
	}
	osClient, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("oswrap: opensearch client: %w", err)
	}
	c.os = osClient

	scanOpts := append([]scan.Option{scan.WithLogger(c.logger)}, c.scanOpts...)
	c.scanner = scan.New(searchlog.Wrap(c, c.logger, "client.scan"), scanOpts...)

	c.logger.Debug("client.init",
		"endpoints", strings.Join(cfg.Endpoints, ","),
		"credentials", string(cfg.CredentialMode),
		"signed", c.signer != nil,
		"timeout", c.timeout,
	)
	return c, nil
}

// Timeout returns the per-request timeout fixed at construction.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Config returns a copy of the validated configuration.
func (c *Client) Config() oswrap.Config {
	return c.cfg
}

// Scanner exposes the client's deep-scan paginator.
func (c *Client) Scanner() *scan.Scanner {
	return c.scanner
}

func defaultTransport(tlsCfg *tls.Config) http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	if clone.MaxIdleConns == 0 {
		clone.MaxIdleConns = 64
	}
	if clone.MaxIdleConnsPerHost == 0 {
		clone.MaxIdleConnsPerHost = 16
	}
	if clone.IdleConnTimeout == 0 {
		clone.IdleConnTimeout = 90 * time.Second
	}
	if clone.TLSHandshakeTimeout == 0 {
		clone.TLSHandshakeTimeout = 10 * time.Second
	}
	if tlsCfg != nil {
		clone.TLSClientConfig = tlsCfg
	}
	return clone
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// perform executes req under the per-request timeout and returns the body of
// a 2xx response. Non-2xx responses become *api.Error.
func (c *Client) perform(ctx context.Context, op string, req opensearchapi.Request) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	begin := time.Now()
	resp, err := req.Do(ctx, c.os)
	if err != nil {
		c.logger.Warn("client.request.error", "op", op, "error", err, "elapsed", time.Since(begin))
		return nil, fmt.Errorf("oswrap: %s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oswrap: %s: read response: %w", op, err)
	}
	if resp.IsError() {
		apiErr := api.ParseError(resp.StatusCode, body)
		c.logger.Debug("client.request.failed",
			"op", op,
			"status", resp.StatusCode,
			"type", apiErr.Type,
			"reason", apiErr.Reason,
			"elapsed", time.Since(begin),
		)
		return nil, fmt.Errorf("oswrap: %s: %w", op, apiErr)
	}
	c.logger.Trace("client.request.success", "op", op, "status", resp.StatusCode, "elapsed", time.Since(begin))
	return body, nil
}

// encodeBody renders v as a request body. Byte slices, strings, raw JSON and
// readers pass through unchanged; nil yields no body.
func encodeBody(v any) (io.Reader, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func requireIndex(op, index string) error {
	if strings.TrimSpace(index) == "" {
		return fmt.Errorf("oswrap: %s: index is required", op)
	}
	return nil
}
