// Package awsauth resolves AWS credentials and builds the SigV4 signer used
// for OpenSearch requests.
package awsauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	smithy "github.com/aws/smithy-go"
	"github.com/opensearch-project/opensearch-go/v2/signer"
	"github.com/opensearch-project/opensearch-go/v2/signer/awsv2"

	"pkt.systems/oswrap"
)

// Config selects the credential source.
type Config struct {
	Region          string
	Mode            oswrap.CredentialMode
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// CredentialTimeout bounds each credential retrieval. Zero uses
	// oswrap.DefaultCredentialTimeout.
	CredentialTimeout time.Duration
	// HTTPClient is used by the SDK for credential endpoints (STS, SSO, IMDS).
	HTTPClient *http.Client
}

// FromClientConfig extracts the credential settings from a client config.
func FromClientConfig(cfg oswrap.Config) Config {
	return Config{
		Region:            cfg.Region,
		Mode:              cfg.CredentialMode,
		Profile:           cfg.Profile,
		AccessKeyID:       cfg.AccessKeyID,
		SecretAccessKey:   cfg.SecretAccessKey,
		SessionToken:      cfg.SessionToken,
		CredentialTimeout: cfg.CredentialTimeout,
	}
}

// ErrUnsigned is returned by LoadAWSConfig for CredentialNone.
var ErrUnsigned = errors.New("awsauth: credential mode none does not sign requests")

// LoadAWSConfig resolves an aws.Config for the configured mode. Credentials
// are fetched lazily on first use and every retrieval is bounded by
// CredentialTimeout.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	mode, err := oswrap.ParseCredentialMode(string(cfg.Mode))
	if err != nil {
		return aws.Config{}, fmt.Errorf("awsauth: %w", err)
	}
	if !mode.Signed() {
		return aws.Config{}, ErrUnsigned
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return aws.Config{}, fmt.Errorf("awsauth: region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}
	switch mode {
	case oswrap.CredentialProfile:
		if cfg.Profile == "" {
			return aws.Config{}, fmt.Errorf("awsauth: profile mode requires a profile name")
		}
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	case oswrap.CredentialStatic:
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return aws.Config{}, fmt.Errorf("awsauth: static mode requires access key id and secret access key")
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("awsauth: load config (%s): %w", mode, annotate(err))
	}
	timeout := cfg.CredentialTimeout
	if timeout <= 0 {
		timeout = oswrap.DefaultCredentialTimeout
	}
	if awsCfg.Credentials != nil {
		awsCfg.Credentials = &timeoutProvider{inner: awsCfg.Credentials, timeout: timeout}
	}
	return awsCfg, nil
}

// NewSigner returns a SigV4 signer for service ("es" or "aoss"). An empty
// service defaults to oswrap.DefaultSigningService.
func NewSigner(awsCfg aws.Config, service string) (signer.Signer, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		service = oswrap.DefaultSigningService
	}
	s, err := awsv2.NewSignerWithService(awsCfg, service)
	if err != nil {
		return nil, fmt.Errorf("awsauth: signer: %w", err)
	}
	return s, nil
}

// Signer resolves credentials and builds a signer in one step. It returns a
// nil signer for CredentialNone.
func Signer(ctx context.Context, cfg Config, service string) (signer.Signer, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if errors.Is(err, ErrUnsigned) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewSigner(awsCfg, service)
}

// Verify retrieves credentials once so configuration problems (expired SSO
// session, unknown profile) surface before the first search.
func Verify(ctx context.Context, awsCfg aws.Config) (aws.Credentials, error) {
	if awsCfg.Credentials == nil {
		return aws.Credentials{}, fmt.Errorf("awsauth: no credentials provider configured")
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	return creds, nil
}

type timeoutProvider struct {
	inner   aws.CredentialsProvider
	timeout time.Duration
}

func (p *timeoutProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	creds, err := p.inner.Retrieve(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return aws.Credentials{}, fmt.Errorf("awsauth: retrieve credentials: timed out after %s: %w", p.timeout, err)
		}
		return aws.Credentials{}, fmt.Errorf("awsauth: retrieve credentials: %w", annotate(err))
	}
	return creds, nil
}

// annotate prefixes AWS API errors with their error code.
func annotate(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), err)
	}
	return err
}
