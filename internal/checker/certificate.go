package checker

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/argus-mon/argus/internal/storage"
)

const (
	defaultCertWarningDays = 30
	defaultCertAlarmDays   = 7
)

// CertificateChecker inspects the certificate presented at hostname:port.
// Verification is disabled on purpose: an invalid or expired certificate
// is the finding, not a transport failure.
type CertificateChecker struct{}

func (c *CertificateChecker) Type() string { return storage.TypeCertificate }

func (c *CertificateChecker) Validate(monitor *storage.Monitor) error {
	if monitor.Target == "" {
		return fmt.Errorf("certificate requires a hostname target")
	}
	cfg := monitor.Certificate
	if cfg == nil {
		return nil
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.WarningThresholdDays < 0 || cfg.AlarmThresholdDays < 0 {
		return fmt.Errorf("certificate thresholds must not be negative")
	}
	if cfg.WarningThresholdDays > 0 && cfg.AlarmThresholdDays > 0 &&
		cfg.AlarmThresholdDays > cfg.WarningThresholdDays {
		return fmt.Errorf("alarm_threshold_days must not exceed warning_threshold_days")
	}
	return nil
}

func (c *CertificateChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	warnDays := defaultCertWarningDays
	alarmDays := defaultCertAlarmDays
	port := 443
	if cfg := monitor.Certificate; cfg != nil {
		if cfg.WarningThresholdDays > 0 {
			warnDays = cfg.WarningThresholdDays
		}
		if cfg.AlarmThresholdDays > 0 {
			alarmDays = cfg.AlarmThresholdDays
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
	}

	host := monitor.Target
	if h, p, err := net.SplitHostPort(monitor.Target); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	// Internationalized names go on the wire in punycode.
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: time.Duration(monitor.TimeoutSeconds) * time.Second}
	start := time.Now()
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ErrorResult("connect %s: %v", addr, err), nil
	}
	tlsConn := tls.Client(rawConn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return ErrorResult("tls handshake with %s: %v", addr, err), nil
	}
	defer tlsConn.Close()
	elapsed := time.Since(start).Milliseconds()

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return ErrorResult("no certificates presented by %s", addr), nil
	}

	now := time.Now()
	leaf := state.PeerCertificates[0]
	days := int(math.Floor(leaf.NotAfter.Sub(now).Hours() / 24))

	chainExpired := false
	for _, cert := range state.PeerCertificates {
		if now.After(cert.NotAfter) {
			chainExpired = true
			break
		}
	}

	result := &Result{
		Value:        Float(float64(days)),
		ResponseTime: elapsed,
		Timestamp:    time.Now().UTC(),
		Metadata: map[string]any{
			"days_until_expiry":   days,
			"expiry":              leaf.NotAfter.UTC().Format(time.RFC3339),
			"issuer":              leaf.Issuer.String(),
			"subject_cn":          leaf.Subject.CommonName,
			"sans":                leaf.DNSNames,
			"serial":              leaf.SerialNumber.String(),
			"signature_algorithm": leaf.SignatureAlgorithm.String(),
			"self_signed":         bytes.Equal(leaf.RawIssuer, leaf.RawSubject),
			"hostname_match":      hostnameMatches(host, leaf),
			"chain_expired":       chainExpired,
		},
	}

	expired := now.After(leaf.NotAfter)
	switch {
	case expired:
		result.Status = StatusAlarm
		result.Message = fmt.Sprintf("certificate expired on %s", leaf.NotAfter.Format("2006-01-02"))
	case days <= alarmDays:
		result.Status = StatusAlarm
		result.Message = fmt.Sprintf("certificate expires in %d days", days)
	case days <= warnDays:
		result.Status = StatusWarning
		result.Success = true
		result.Message = fmt.Sprintf("certificate expires in %d days", days)
	default:
		result.Status = StatusOK
		result.Success = true
		result.Message = fmt.Sprintf("certificate expires in %d days (%s)", days, leaf.NotAfter.Format("2006-01-02"))
	}
	return result, nil
}

// hostnameMatches checks host against the certificate's CN and SANs,
// honouring single-label wildcards.
func hostnameMatches(host string, cert *x509.Certificate) bool {
	candidates := cert.DNSNames
	if cert.Subject.CommonName != "" {
		candidates = append([]string{cert.Subject.CommonName}, candidates...)
	}
	for _, pattern := range candidates {
		if matchHostPattern(host, pattern) {
			return true
		}
	}
	return false
}

func matchHostPattern(host, pattern string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	pattern = strings.ToLower(strings.TrimSuffix(pattern, "."))
	if pattern == "" {
		return false
	}
	if !strings.HasPrefix(pattern, "*.") {
		return host == pattern
	}
	// A wildcard covers exactly one label.
	suffix := pattern[1:]
	if !strings.HasSuffix(host, suffix) {
		return false
	}
	label := strings.TrimSuffix(host, suffix)
	return label != "" && !strings.Contains(label, ".")
}
