package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/onboard-go/internal/telemetry/logger"
)

// writeKeyPair writes a self-signed localhost certificate and its key.
func writeKeyPair(t *testing.T, certFile, keyFile, commonName string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return certPEM
}

func TestPool_AddCertPEM(t *testing.T) {
	dir := t.TempDir()
	certPEM := writeKeyPair(t, filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key"), "a")

	tests := []struct {
		name    string
		data    []byte
		wantErr error
		anyErr  bool
	}{
		{name: "one cert", data: certPEM},
		{name: "key block skipped", data: append(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1}}), certPEM...)},
		{name: "empty", data: nil, wantErr: ErrNoCertsFound},
		{name: "not pem", data: []byte("nope"), wantErr: ErrNoCertsFound},
		{name: "bad cert", data: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("x")}), anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddCertPEM(tt.data)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Error("expected error")
				}
			case err != nil:
				t.Errorf("error = %v", err)
			}
		})
	}
}

func TestClientConfigWithCA(t *testing.T) {
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.crt")
	writeKeyPair(t, caFile, filepath.Join(dir, "ca.key"), "ca")

	cfg, err := ClientConfigWithCA(caFile)
	if err != nil {
		t.Fatalf("ClientConfigWithCA() error = %v", err)
	}
	if cfg.RootCAs == nil || cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := ClientConfigWithCA(""); err != nil {
		t.Errorf("system roots only: error = %v", err)
	}
	if _, err := ClientConfigWithCA(filepath.Join(dir, "missing.crt")); err == nil {
		t.Error("expected error for missing CA file")
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewWatcher(filepath.Join(dir, "x.crt"), filepath.Join(dir, "x.key")); err == nil {
		t.Error("expected error for missing files")
	}

	certFile := filepath.Join(dir, "bad.crt")
	os.WriteFile(certFile, []byte("bad"), 0o600)
	if _, err := NewWatcher(certFile, certFile); err == nil {
		t.Error("expected error for invalid pair")
	}
}

func TestWatcher_ServesAndReloads(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	writeKeyPair(t, certFile, keyFile, "first")

	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.Discard()), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
	srv.TLS = w.ServerConfig()
	srv.StartTLS()
	defer srv.Close()

	commonName := func() string {
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		client.CloseIdleConnections()
		return resp.TLS.PeerCertificates[0].Subject.CommonName
	}

	if cn := commonName(); cn != "first" {
		t.Fatalf("CommonName = %q, want first", cn)
	}

	writeKeyPair(t, certFile, keyFile, "second")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if commonName() == "second" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("certificate was not reloaded")
}

func TestWatcher_KeepsCertificateOnBadReload(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	writeKeyPair(t, certFile, keyFile, "first")

	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.Discard()), WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	os.WriteFile(certFile, []byte("garbage"), 0o600)
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	cert, _ := w.GetCertificate(nil)
	if cert == nil {
		t.Fatal("certificate dropped after failed reload")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	writeKeyPair(t, certFile, keyFile, "x")

	w, err := NewWatcher(certFile, keyFile, WithLogger(logger.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
