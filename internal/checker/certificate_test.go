package checker

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/argus-mon/argus/internal/storage"
)

// startTLSServer serves a freshly generated self-signed certificate that
// expires at notAfter and returns the listen address.
func startTLSServer(t *testing.T, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				if tc, ok := c.(*tls.Conn); ok {
					tc.Handshake()
				}
				c.Close()
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestCertificateCheckerStatuses(t *testing.T) {
	tests := []struct {
		name       string
		notAfter   time.Time
		wantStatus string
		wantDays   int
	}{
		{"long lived", time.Now().Add(100 * 24 * time.Hour), StatusOK, 99},
		{"inside warning window", time.Now().Add(15 * 24 * time.Hour), StatusWarning, 14},
		{"inside alarm window", time.Now().Add(3 * 24 * time.Hour), StatusAlarm, 2},
		{"expires today", time.Now().Add(12 * time.Hour), StatusAlarm, 0},
	}

	c := &CertificateChecker{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startTLSServer(t, tt.notAfter)
			result, err := c.Check(context.Background(), &storage.Monitor{Target: addr, TimeoutSeconds: 5})
			if err != nil {
				t.Fatal(err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q (message: %s)", result.Status, tt.wantStatus, result.Message)
			}
			if result.Value == nil || *result.Value != float64(tt.wantDays) {
				t.Errorf("value = %v, want %d", result.Value, tt.wantDays)
			}
			if got := result.Metadata["days_until_expiry"]; got != tt.wantDays {
				t.Errorf("days_until_expiry = %v, want %d", got, tt.wantDays)
			}
		})
	}
}

func TestCertificateCheckerExpired(t *testing.T) {
	addr := startTLSServer(t, time.Now().Add(-time.Hour))
	c := &CertificateChecker{}
	result, err := c.Check(context.Background(), &storage.Monitor{Target: addr, TimeoutSeconds: 5})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusAlarm {
		t.Fatalf("expected alarm for expired certificate, got %s", result.Status)
	}
	if !strings.Contains(result.Message, "expired") {
		t.Errorf("message %q should mention expiry", result.Message)
	}
	if got := result.Metadata["chain_expired"]; got != true {
		t.Errorf("chain_expired = %v, want true", got)
	}
}

func TestCertificateCheckerCustomThresholds(t *testing.T) {
	addr := startTLSServer(t, time.Now().Add(40*24*time.Hour))
	c := &CertificateChecker{}

	tests := []struct {
		name       string
		cfg        *storage.CertificateConfig
		wantStatus string
	}{
		{"wide windows", &storage.CertificateConfig{WarningThresholdDays: 60, AlarmThresholdDays: 20}, StatusWarning},
		{"narrow windows", &storage.CertificateConfig{WarningThresholdDays: 10, AlarmThresholdDays: 5}, StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.Check(context.Background(), &storage.Monitor{
				Target:         addr,
				TimeoutSeconds: 5,
				Certificate:    tt.cfg,
			})
			if err != nil {
				t.Fatal(err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", result.Status, tt.wantStatus)
			}
		})
	}
}

func TestCertificateCheckerMetadata(t *testing.T) {
	addr := startTLSServer(t, time.Now().Add(90*24*time.Hour))
	c := &CertificateChecker{}
	result, err := c.Check(context.Background(), &storage.Monitor{Target: addr, TimeoutSeconds: 5})
	if err != nil {
		t.Fatal(err)
	}
	if got := result.Metadata["self_signed"]; got != true {
		t.Errorf("self_signed = %v, want true", got)
	}
	// Dialed by IP, so the DNS names on the certificate do not match.
	if got := result.Metadata["hostname_match"]; got != false {
		t.Errorf("hostname_match = %v, want false", got)
	}
	if got := result.Metadata["subject_cn"]; got != "localhost" {
		t.Errorf("subject_cn = %v, want localhost", got)
	}
}

func TestCertificateCheckerConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := &CertificateChecker{}
	result, err := c.Check(context.Background(), &storage.Monitor{Target: addr, TimeoutSeconds: 1})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusError {
		t.Errorf("status = %q, want %q", result.Status, StatusError)
	}
	if result.Value != nil {
		t.Errorf("value = %v, want nil", result.Value)
	}
}

func TestMatchHostPattern(t *testing.T) {
	tests := []struct {
		host    string
		pattern string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"Example.COM", "example.com", true},
		{"example.com.", "example.com", true},
		{"example.com", "example.org", false},
		{"api.example.com", "*.example.com", true},
		{"a.b.example.com", "*.example.com", false},
		{"example.com", "*.example.com", false},
		{"api.example.com", "*.example.org", false},
		{"example.com", "", false},
	}
	for _, tt := range tests {
		if got := matchHostPattern(tt.host, tt.pattern); got != tt.want {
			t.Errorf("matchHostPattern(%q, %q) = %v, want %v", tt.host, tt.pattern, got, tt.want)
		}
	}
}

func TestHostnameMatches(t *testing.T) {
	cert := &x509.Certificate{
		Subject:  pkix.Name{CommonName: "example.com"},
		DNSNames: []string{"*.example.com", "example.net"},
	}
	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"api.example.com", true},
		{"a.b.example.com", false},
		{"example.net", true},
		{"example.org", false},
	}
	for _, tt := range tests {
		if got := hostnameMatches(tt.host, cert); got != tt.want {
			t.Errorf("hostnameMatches(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestCertificateCheckerValidate(t *testing.T) {
	c := &CertificateChecker{}
	tests := []struct {
		name    string
		monitor *storage.Monitor
		wantErr bool
	}{
		{"no target", &storage.Monitor{}, true},
		{"plain hostname", &storage.Monitor{Target: "example.com"}, false},
		{"port out of range", &storage.Monitor{Target: "example.com", Certificate: &storage.CertificateConfig{Port: 70000}}, true},
		{"negative threshold", &storage.Monitor{Target: "example.com", Certificate: &storage.CertificateConfig{WarningThresholdDays: -1}}, true},
		{"alarm above warning", &storage.Monitor{Target: "example.com", Certificate: &storage.CertificateConfig{WarningThresholdDays: 7, AlarmThresholdDays: 14}}, true},
		{"ordered thresholds", &storage.Monitor{Target: "example.com", Certificate: &storage.CertificateConfig{WarningThresholdDays: 30, AlarmThresholdDays: 7}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.monitor)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
