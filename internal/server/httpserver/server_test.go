package httpserver

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/onboard-go/internal/core/service"
	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/internal/storage/snapshot"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
	"github.com/yndnr/onboard-go/internal/telemetry/metric"
)

func startServer(t *testing.T, h http.Handler) *Server {
	t.Helper()
	return startServerWith(t, Config{Addr: "127.0.0.1:0", Logger: logger.Discard()}, h)
}

func startServerWith(t *testing.T, cfg Config, h http.Handler) *Server {
	t.Helper()
	s := New(cfg, h)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve()
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("timeout waiting for Serve to return")
		}
	})
	return s
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := startServer(t, okHandler())

	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServer_TLS(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	writeSelfSigned(t, certFile, keyFile)

	s := startServerWith(t, Config{
		Addr:        "127.0.0.1:0",
		TLSCertFile: certFile,
		TLSKeyFile:  keyFile,
		Logger:      logger.Discard(),
	}, okHandler())

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	resp, err := client.Get("https://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	client.CloseIdleConnections()
	if resp.TLS == nil || resp.StatusCode != http.StatusOK {
		t.Errorf("tls = %v status = %d", resp.TLS != nil, resp.StatusCode)
	}
}

func TestServer_ListenRejectsMissingCertificate(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{
		Addr:        "127.0.0.1:0",
		TLSCertFile: filepath.Join(dir, "missing.crt"),
		TLSKeyFile:  filepath.Join(dir, "missing.key"),
		Logger:      logger.Discard(),
	}, okHandler())
	if err := s.Listen(); err == nil {
		t.Fatal("Listen() expected error")
	}
}

func writeSelfSigned(t *testing.T, certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600)
	os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600)
}

func TestServer_ShutdownEndsEventStreams(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	store := snapshot.New(backend)
	registry := service.NewRegistry(store, &service.RegistryConfig{Logger: logger.Discard()})
	defer registry.Close()

	streamsDone := make(chan struct{})
	router := NewRouter(&RouterConfig{
		Registry:    registry,
		Store:       store,
		Logger:      logger.Discard(),
		StreamsDone: streamsDone,
	})
	s := New(Config{Addr: "127.0.0.1:0", Logger: logger.Discard()}, router)
	s.RegisterOnShutdown(func() { close(streamsDone) })
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	go s.Serve()

	resp, err := http.Get("http://" + s.Addr() + "/sessions/s-1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("shutdown waited on the open stream")
	}
	io.Copy(io.Discard, resp.Body)
}

func TestNewRouter_EndToEnd(t *testing.T) {
	backend := kv.NewMemory()
	defer backend.Close()
	store := snapshot.New(backend)
	metrics := metric.NewRegistry()
	registry := service.NewRegistry(store, &service.RegistryConfig{
		SavedDisplay: time.Minute,
		Logger:       logger.Discard(),
		Metrics:      metrics,
	})
	defer registry.Close()

	router := NewRouter(&RouterConfig{
		Registry:           registry,
		Store:              store,
		Ready:              func(context.Context) error { return nil },
		MetricsHandler:     metrics.Handler(),
		Metrics:            metrics,
		Logger:             logger.Discard(),
		CORSAllowedOrigins: []string{"*"},
		RateLimiter:        NewRateLimiter(1000, 1000),
	})
	s := startServer(t, router)
	base := "http://" + s.Addr()

	req, _ := http.NewRequest(http.MethodPut, base+"/sessions/e2e/snapshot", strings.NewReader(`{"data":{"step":1}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var env struct {
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	}
	json.NewDecoder(resp.Body).Decode(&env)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || env.Code != "OK" {
		t.Fatalf("PUT = %d %q", resp.StatusCode, env.Code)
	}
	if env.RequestID == "" || env.RequestID != resp.Header.Get("X-Request-ID") {
		t.Errorf("request_id = %q, header = %q", env.RequestID, resp.Header.Get("X-Request-ID"))
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`onboard_autosave_saves_total{outcome="saved"} 1`,
		`route="PUT /sessions/{id}/snapshot"`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
