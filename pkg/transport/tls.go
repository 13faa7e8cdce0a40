package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
)

// TLSConfig holds client TLS settings for wss:// and https:// endpoints.
type TLSConfig struct {
	// CAFile is a PEM bundle of trusted roots. Empty uses the system pool.
	CAFile string `yaml:"ca_file"`

	// ServerName overrides the name verified against the certificate.
	ServerName string `yaml:"server_name"`

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// IsZero reports whether no setting deviates from Go's defaults.
func (c TLSConfig) IsZero() bool {
	return c == TLSConfig{}
}

// NewClientTLSConfig builds a client *tls.Config. A zero cfg returns nil so
// callers keep the library defaults.
func NewClientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if cfg.IsZero() {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("CA file contains no certificates")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// NewHTTPClient returns a client using tlsConfig. A nil tlsConfig returns
// a client on the default transport.
func NewHTTPClient(tlsConfig *tls.Config) *http.Client {
	if tlsConfig == nil {
		return &http.Client{}
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = tlsConfig
	return &http.Client{Transport: t}
}
