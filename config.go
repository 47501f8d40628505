package oswrap

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// CredentialMode selects how request-signing credentials are sourced.
type CredentialMode string

const (
	// CredentialAmbient resolves credentials through the AWS SDK default chain
	// (environment, shared config, container and instance metadata).
	CredentialAmbient CredentialMode = "ambient"
	// CredentialProfile resolves credentials from a named shared-config profile.
	// SSO profiles are supported and require a prior `aws sso login`.
	CredentialProfile CredentialMode = "profile"
	// CredentialStatic signs with explicitly supplied access keys.
	CredentialStatic CredentialMode = "static"
	// CredentialNone disables request signing (local or proxy-authenticated clusters).
	CredentialNone CredentialMode = "none"
)

const (
	// DefaultEndpoint is used when no endpoint is configured.
	DefaultEndpoint = "http://localhost:9200"
	// DefaultSigningService is the SigV4 service name for Amazon OpenSearch Service.
	DefaultSigningService = "es"
	// DefaultTimeout bounds each request issued to the cluster.
	DefaultTimeout = 10 * time.Second
	// DefaultCredentialTimeout bounds a single credential retrieval.
	DefaultCredentialTimeout = 10 * time.Second
	// DefaultCredentialMode is the credential mode applied when none is configured.
	DefaultCredentialMode = CredentialAmbient
	// DefaultConfigFileName is the config file searched for when --config is omitted.
	DefaultConfigFileName = "config.yaml"
)

var credentialModes = []CredentialMode{
	CredentialAmbient,
	CredentialProfile,
	CredentialStatic,
	CredentialNone,
}

// ValidCredentialModes returns the supported credential modes.
func ValidCredentialModes() []CredentialMode {
	out := make([]CredentialMode, len(credentialModes))
	copy(out, credentialModes)
	return out
}

// ParseCredentialMode normalises s into a CredentialMode.
func ParseCredentialMode(s string) (CredentialMode, error) {
	mode := CredentialMode(strings.ToLower(strings.TrimSpace(s)))
	if mode == "" {
		return DefaultCredentialMode, nil
	}
	if !slices.Contains(credentialModes, mode) {
		return "", fmt.Errorf("unknown credential mode %q", s)
	}
	return mode, nil
}

// Signed reports whether requests are signed in this mode.
func (m CredentialMode) Signed() bool {
	return m != CredentialNone
}

// Config captures everything needed to construct a search client. Nothing in
// the library reads process environment; the CLI maps flags, env and config
// files onto this struct.
type Config struct {
	// Endpoints lists cluster base URLs (scheme://host[:port]).
	Endpoints []string
	// Region is the AWS region used for signing. Required for signed modes.
	Region string
	// CredentialMode selects the credential source.
	CredentialMode CredentialMode
	// Profile names the shared-config profile for CredentialProfile.
	Profile string
	// AccessKeyID, SecretAccessKey and SessionToken are used by CredentialStatic.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// SigningService is the SigV4 service name ("es", or "aoss" for serverless).
	SigningService string
	// Timeout bounds each request. It is fixed for the lifetime of a client.
	Timeout time.Duration
	// CredentialTimeout bounds a single credential retrieval.
	CredentialTimeout time.Duration
	// Insecure skips TLS certificate verification.
	Insecure bool
	// CAFile adds PEM certificate authorities to the trusted set.
	CAFile string
	// ClientCertFile is a PEM bundle with a client certificate and key for
	// clusters that authenticate clients by certificate.
	ClientCertFile string
	// Username and Password enable HTTP basic auth (typically with CredentialNone).
	Username string
	Password string
}

// Validate normalises defaults and reports configuration errors.
func (c *Config) Validate() error {
	endpoints := make([]string, 0, len(c.Endpoints))
	for _, raw := range c.Endpoints {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			endpoint, err := normalizeEndpoint(part)
			if err != nil {
				return fmt.Errorf("oswrap: config: %w", err)
			}
			endpoints = append(endpoints, endpoint)
		}
	}
	if len(endpoints) == 0 {
		endpoints = []string{DefaultEndpoint}
	}
	c.Endpoints = endpoints

	mode, err := ParseCredentialMode(string(c.CredentialMode))
	if err != nil {
		return fmt.Errorf("oswrap: config: %w", err)
	}
	c.CredentialMode = mode
	c.Region = strings.TrimSpace(c.Region)
	c.Profile = strings.TrimSpace(c.Profile)
	c.SigningService = strings.TrimSpace(c.SigningService)
	if c.SigningService == "" {
		c.SigningService = DefaultSigningService
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CredentialTimeout <= 0 {
		c.CredentialTimeout = DefaultCredentialTimeout
	}

	switch c.CredentialMode {
	case CredentialProfile:
		if c.Profile == "" {
			return fmt.Errorf("oswrap: config: profile credentials require a profile name")
		}
	case CredentialStatic:
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return fmt.Errorf("oswrap: config: static credentials require access key id and secret access key")
		}
	}
	if c.CredentialMode.Signed() && c.Region == "" {
		return fmt.Errorf("oswrap: config: region is required when signing requests (credential mode %s)", c.CredentialMode)
	}
	if c.Password != "" && c.Username == "" {
		return fmt.Errorf("oswrap: config: password set without username")
	}
	return nil
}

func normalizeEndpoint(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q: missing host", raw)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// DefaultConfigDir returns the default configuration directory ($HOME/.oswrap).
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("OSWRAP_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".oswrap"), nil
}
