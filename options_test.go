package xians

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, commonName string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return base64.StdEncoding.EncodeToString(pemBytes)
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	valid := Options{ServerURL: "https://api.example.com", APIKey: "k", TenantID: "acme"}
	require.NoError(t, valid.Validate())

	missingURL := valid
	missingURL.ServerURL = ""
	require.Error(t, missingURL.Validate())

	badURL := valid
	badURL.ServerURL = "not a url"
	require.Error(t, badURL.Validate())

	noCredential := Options{ServerURL: "https://api.example.com", TenantID: "acme"}
	require.ErrorContains(t, noCredential.Validate(), "api key or certificate")

	certWithoutKey := Options{
		ServerURL:         "https://api.example.com",
		CertificateBase64: selfSignedCert(t, "acme"),
		TenantID:          "acme",
	}
	require.ErrorContains(t, certWithoutKey.Validate(), "private key")

	// System-scoped-only deployments carry no tenant at all.
	noTenant := Options{ServerURL: "https://api.example.com", APIKey: "k"}
	require.NoError(t, noTenant.Validate())
}

func TestResolveTenantFromCertificate(t *testing.T) {
	t.Parallel()

	opts := Options{
		ServerURL:         "https://api.example.com",
		CertificateBase64: selfSignedCert(t, "contoso"),
		PrivateKeyBase64:  "aWdub3JlZA==",
	}
	tenant, err := opts.ResolveTenant()
	require.NoError(t, err)
	assert.Equal(t, "contoso", tenant)

	explicit := opts
	explicit.TenantID = "acme"
	tenant, err = explicit.ResolveTenant()
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant)

	garbage := opts
	garbage.CertificateBase64 = "%%%not-base64%%%"
	_, err = garbage.ResolveTenant()
	require.Error(t, err)
}

func TestCacheOptionsTTL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Minute, CacheOptions{}.TTL(5*time.Minute))
	assert.Equal(t, 2*time.Minute, CacheOptions{TTLMinutes: 2}.TTL(5*time.Minute))
	assert.Negative(t, CacheOptions{Disabled: true}.TTL(5*time.Minute))
}
