// Package tlsutil builds the client TLS configuration used to reach clusters
// behind private certificate authorities or client-certificate authentication.
package tlsutil

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Options selects the TLS material for cluster connections.
type Options struct {
	// CAFile is a PEM file of additional trusted certificate authorities. The
	// system pool is still trusted.
	CAFile string
	// ClientCertFile is a PEM file holding a client certificate (plus any
	// intermediates) and its private key.
	ClientCertFile string
	// Insecure skips server certificate verification.
	Insecure bool
}

// Enabled reports whether opts changes the default TLS behaviour.
func (o Options) Enabled() bool {
	return o.Insecure || strings.TrimSpace(o.CAFile) != "" || strings.TrimSpace(o.ClientCertFile) != ""
}

// ClientConfig returns the tls.Config for opts, or nil when opts is empty.
func ClientConfig(opts Options) (*tls.Config, error) {
	if !opts.Enabled() {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.Insecure {
		cfg.InsecureSkipVerify = true
	}
	if path := strings.TrimSpace(opts.CAFile); path != "" {
		pool, err := LoadCAPool(path)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if path := strings.TrimSpace(opts.ClientCertFile); path != "" {
		cert, err := LoadClientCertificate(path)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// LoadCAPool returns the system pool extended with every certificate in path.
func LoadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsutil: read ca file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("tlsutil: %s: no certificates found", path)
	}
	return pool, nil
}

// LoadClientCertificate parses a PEM bundle holding a leaf certificate, any
// intermediates and the leaf's private key, in any order.
func LoadClientCertificate(path string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsutil: read client certificate: %w", err)
	}
	return ParseClientCertificate(data)
}

// ParseClientCertificate is LoadClientCertificate for in-memory PEM.
func ParseClientCertificate(data []byte) (tls.Certificate, error) {
	var (
		leaf  *x509.Certificate
		chain [][]byte
		keys  []crypto.Signer
	)
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("tlsutil: parse certificate: %w", err)
			}
			if cert.IsCA {
				continue
			}
			if leaf == nil {
				leaf = cert
				chain = append([][]byte{block.Bytes}, chain...)
				continue
			}
			chain = append(chain, block.Bytes)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("tlsutil: parse private key: %w", err)
			}
			keys = append(keys, key)
		}
	}
	if leaf == nil {
		return tls.Certificate{}, errors.New("tlsutil: client certificate not found")
	}
	for _, key := range keys {
		pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
		if ok && pub.Equal(key.Public()) {
			return tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf}, nil
		}
	}
	if len(keys) == 0 {
		return tls.Certificate{}, errors.New("tlsutil: private key not found")
	}
	return tls.Certificate{}, errors.New("tlsutil: no private key matches the client certificate")
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer, nil
}
