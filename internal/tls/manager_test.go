package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"cash-settlement-service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedFallbackIsReused(t *testing.T) {
	dir := t.TempDir()
	m := NewTLSManager(&config.Config{
		Environment: "development",
		Server:      config.ServerConfig{EnableTLS: true, Domain: "cash.local", AutoCertDir: dir},
	})

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "cash.local"})
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Contains(t, cert.Leaf.DNSNames, "cash.local")

	_, err = os.Stat(filepath.Join(dir, devKeyName))
	require.NoError(t, err)

	// a fresh manager picks up the certificate written to disk
	again, err := NewTLSManager(&config.Config{
		Environment: "development",
		Server:      config.ServerConfig{EnableTLS: true, Domain: "cash.local", AutoCertDir: dir},
	}).GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Equal(t, cert.Leaf.SerialNumber.String(), again.Leaf.SerialNumber.String())
}

func TestProductionRefusesSelfSigned(t *testing.T) {
	m := NewTLSManager(&config.Config{
		Environment: "production",
		Server:      config.ServerConfig{EnableTLS: true, AutoCertDir: t.TempDir()},
	})

	_, err := m.GetCertificate(&tls.ClientHelloInfo{})
	assert.ErrorIs(t, err, ErrNoCertificate)
	assert.Nil(t, m.GetAutocertManager())
}

func TestGetTLSConfig(t *testing.T) {
	m := NewTLSManager(&config.Config{Server: config.ServerConfig{AutoCertDir: t.TempDir()}})
	cfg := m.GetTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Contains(t, cfg.NextProtos, "h2")
	assert.NotNil(t, cfg.GetCertificate)
}
