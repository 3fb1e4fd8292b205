package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type certFiles struct {
	ca, cert, key string
}

// writeCerts issues a throwaway CA and a leaf signed by it
func writeCerts(t *testing.T) certFiles {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "storefront-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caTmpl, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	leafKeyDER, err := x509.MarshalECPrivateKey(leafKey)
	require.NoError(t, err)

	files := certFiles{
		ca:   filepath.Join(dir, "ca.crt"),
		cert: filepath.Join(dir, "leaf.crt"),
		key:  filepath.Join(dir, "leaf.key"),
	}
	writePEM(t, files.ca, "CERTIFICATE", caDER)
	writePEM(t, files.cert, "CERTIFICATE", leafDER)
	writePEM(t, files.key, "EC PRIVATE KEY", leafKeyDER)
	return files
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestServerConfig(t *testing.T) {
	files := writeCerts(t)

	t.Run("plain TLS ignores the CA", func(t *testing.T) {
		cfg, err := ServerConfig(files.cert, files.key, "", false)
		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
		assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	})

	t.Run("mTLS verifies client certificates", func(t *testing.T) {
		cfg, err := ServerConfig(files.cert, files.key, files.ca, true)
		require.NoError(t, err)
		assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
		assert.NotNil(t, cfg.ClientCAs)
	})

	t.Run("mTLS without a CA is refused", func(t *testing.T) {
		_, err := ServerConfig(files.cert, files.key, "", true)
		assert.ErrorIs(t, err, ErrCARequired)
	})

	t.Run("missing key pair", func(t *testing.T) {
		_, err := ServerConfig(filepath.Join(t.TempDir(), "nope.crt"), files.key, "", false)
		assert.Error(t, err)
	})

	t.Run("CA file that is not PEM", func(t *testing.T) {
		bogus := filepath.Join(t.TempDir(), "bogus.crt")
		require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o600))

		_, err := ServerConfig(files.cert, files.key, bogus, true)
		assert.ErrorContains(t, err, "failed to parse CA certificate")
	})
}

func TestClientConfig(t *testing.T) {
	files := writeCerts(t)

	t.Run("with client certificate", func(t *testing.T) {
		cfg, err := ClientConfig(files.cert, files.key, files.ca)
		require.NoError(t, err)
		assert.NotNil(t, cfg.RootCAs)
		assert.Len(t, cfg.Certificates, 1)
	})

	t.Run("system roots without a CA", func(t *testing.T) {
		cfg, err := ClientConfig("", "", "")
		require.NoError(t, err)
		assert.Nil(t, cfg.RootCAs)
		assert.Empty(t, cfg.Certificates)
	})
}

func TestHandshake_MutualAuth(t *testing.T) {
	files := writeCerts(t)

	serverCfg, err := ServerConfig(files.cert, files.key, files.ca, true)
	require.NoError(t, err)
	clientCfg, err := ClientConfig(files.cert, files.key, files.ca)
	require.NoError(t, err)
	clientCfg.ServerName = "localhost"

	lis, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer lis.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		accepted <- conn.(*tls.Conn).Handshake()
	}()

	conn, err := tls.Dial("tcp", lis.Addr().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, <-accepted)
	assert.True(t, conn.ConnectionState().HandshakeComplete)
}
