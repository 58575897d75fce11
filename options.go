// Package xians assembles the multi-tenant agent runtime: agents own
// workflow registrations and capability facades, the platform owns the
// engine connection, the shared HTTP client, and the worker pools.
package xians

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
)

type (
	// Options configures a Platform. Loading from env or flags is left to
	// the embedding application.
	Options struct {
		// ServerURL is the backend root URL.
		ServerURL string `validate:"required,url"`

		// APIKey authenticates against the backend. Either APIKey or the
		// certificate pair must be set.
		APIKey string

		// CertificateBase64 and PrivateKeyBase64 carry an X.509 credential
		// pair. The tenant may be derived from the certificate subject.
		CertificateBase64 string
		PrivateKeyBase64  string

		// TenantID binds non-system-scoped agents to a tenant. Empty falls
		// back to the certificate subject.
		TenantID string

		// ConsoleLogLevel and ServerLogLevel gate the two log sinks.
		ConsoleLogLevel string
		ServerLogLevel  string

		// LocalMode swaps the HTTP-backed providers for in-memory ones.
		LocalMode bool

		// LocalSeeds feeds the local knowledge provider with YAML seed
		// files. Only read when LocalMode is set.
		LocalSeeds fs.FS

		// Cache tunes the in-process TTL caches.
		Cache CacheSettings
	}

	// CacheSettings groups the per-concern cache knobs.
	CacheSettings struct {
		Knowledge           CacheOptions
		Settings            CacheOptions
		WorkflowDefinitions CacheOptions
	}

	// CacheOptions tunes one cache.
	CacheOptions struct {
		// Disabled turns the cache off.
		Disabled bool
		// TTLMinutes overrides the default TTL when positive.
		TTLMinutes int
	}
)

var validate = validator.New()

// TTL returns the configured TTL, or def when unset. A disabled cache
// yields a negative TTL which the services treat as "no cache".
func (c CacheOptions) TTL(def time.Duration) time.Duration {
	if c.Disabled {
		return -1
	}
	if c.TTLMinutes > 0 {
		return time.Duration(c.TTLMinutes) * time.Minute
	}
	return def
}

// Validate checks the options at platform construction. Configuration
// errors are fatal and never retried.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	if o.APIKey == "" && o.CertificateBase64 == "" {
		return errors.New("options: an api key or certificate credential is required")
	}
	if o.CertificateBase64 != "" && o.PrivateKeyBase64 == "" {
		return errors.New("options: certificate credential requires a private key")
	}
	// No tenant requirement here: system-scoped-only deployments run
	// without one, and tenant-bound agents fail with a scope error on
	// first use instead.
	return nil
}

// ResolveTenant returns the configured tenant, falling back to the
// certificate subject common name when the credential is certificate-based.
func (o *Options) ResolveTenant() (string, error) {
	if o.TenantID != "" {
		return o.TenantID, nil
	}
	if o.CertificateBase64 == "" {
		return "", errors.New("options: no tenant configured and no certificate to derive it from")
	}
	cert, err := decodeCertificate(o.CertificateBase64)
	if err != nil {
		return "", err
	}
	if cn := cert.Subject.CommonName; cn != "" {
		return cn, nil
	}
	if len(cert.Subject.OrganizationalUnit) > 0 {
		return cert.Subject.OrganizationalUnit[0], nil
	}
	return "", errors.New("options: certificate subject carries no tenant")
}

// decodeCertificate accepts a base64-wrapped PEM block or raw DER.
func decodeCertificate(encoded string) (*x509.Certificate, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("options: decode certificate: %w", err)
	}
	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("options: parse certificate: %w", err)
	}
	return cert, nil
}
