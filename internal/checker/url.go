package checker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/argus-mon/argus/internal/storage"
)

// userAgent is sent on every HTTP probe.
const userAgent = "MonitoringSystem/1.0"

// defaultStatusCodes are accepted when the monitor does not list its own.
var defaultStatusCodes = []int{200, 201, 204, 301, 302, 303, 304}

// URLChecker probes an HTTP(S) endpoint with GET and classifies its
// response time against the monitor's high thresholds.
type URLChecker struct{}

func (c *URLChecker) Type() string { return storage.TypeURL }

func (c *URLChecker) Validate(monitor *storage.Monitor) error {
	if err := validateHTTPTarget(monitor.Target); err != nil {
		return err
	}
	if monitor.URL == nil {
		return nil
	}
	if err := validatePatterns(monitor.URL.PositivePattern, monitor.URL.NegativePattern); err != nil {
		return err
	}
	return validateStatusCodes(monitor.URL.StatusCodes)
}

func (c *URLChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	var cfg storage.URLConfig
	if monitor.URL != nil {
		cfg = *monitor.URL
	}
	return httpProbe(ctx, monitor, probeSpec{
		Method:          http.MethodGet,
		StatusCodes:     cfg.StatusCodes,
		PositivePattern: cfg.PositivePattern,
		NegativePattern: cfg.NegativePattern,
		Headers:         cfg.Headers,
	})
}

// probeSpec is the request shape shared by the url and api_post checkers.
type probeSpec struct {
	Method          string
	Body            string
	ContentType     string
	StatusCodes     []int
	PositivePattern string
	NegativePattern string
	Headers         map[string]string
}

func httpProbe(ctx context.Context, monitor *storage.Monitor, spec probeSpec) (*Result, error) {
	var bodyReader io.Reader
	if spec.Body != "" {
		bodyReader = strings.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, monitor.Target, bodyReader)
	if err != nil {
		return ErrorResult("invalid request: %v", err), nil
	}
	req.Header.Set("User-Agent", userAgent)
	if spec.ContentType != "" {
		req.Header.Set("Content-Type", spec.ContentType)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	timeout := time.Duration(monitor.TimeoutSeconds) * time.Second
	transport := &http.Transport{
		DialContext:       (&net.Dialer{Timeout: timeout}).DialContext,
		DisableKeepAlives: true,
	}
	client := &http.Client{Transport: transport, Timeout: timeout}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ErrorResult("request failed: %v", err), nil
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	body := string(bodyBytes)

	result := &Result{
		Value:        Float(float64(elapsed)),
		ResponseTime: elapsed,
		StatusCode:   resp.StatusCode,
		Timestamp:    time.Now().UTC(),
	}

	// HTTPS endpoints get certificate context for free; the dedicated
	// certificate checker owns expiry alerting.
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		leaf := resp.TLS.PeerCertificates[0]
		result.Metadata = map[string]any{
			"certificate": map[string]any{
				"days_until_expiry": int(time.Until(leaf.NotAfter).Hours() / 24),
				"expiry":            leaf.NotAfter.UTC().Format(time.RFC3339),
				"issuer":            leaf.Issuer.CommonName,
			},
		}
	}

	codes := spec.StatusCodes
	if len(codes) == 0 {
		codes = defaultStatusCodes
	}
	if !slices.Contains(codes, resp.StatusCode) {
		result.Status = StatusAlarm
		result.Message = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
		return result, nil
	}

	if p := spec.PositivePattern; p != "" {
		re, err := compilePattern(p)
		if err != nil {
			return ErrorResult("positive_pattern: %v", err), nil
		}
		if !re.MatchString(body) {
			result.Status = StatusAlarm
			result.Message = fmt.Sprintf("expected pattern %q not found in response", p)
			return result, nil
		}
	}
	if p := spec.NegativePattern; p != "" {
		re, err := compilePattern(p)
		if err != nil {
			return ErrorResult("negative_pattern: %v", err), nil
		}
		if re.MatchString(body) {
			result.Status = StatusAlarm
			result.Message = fmt.Sprintf("forbidden pattern %q found in response", p)
			return result, nil
		}
	}

	status := Classify(float64(elapsed), highThresholds(monitor))
	result.Status = status
	result.Success = status == StatusOK || status == StatusWarning
	result.Message = fmt.Sprintf("HTTP %d in %dms", resp.StatusCode, elapsed)
	return result, nil
}

// compilePattern builds the case-insensitive matcher used for positive and
// negative patterns.
func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + p)
}

func validatePatterns(patterns ...string) error {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, err := compilePattern(p); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return nil
}

func validateHTTPTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target must be an http or https url, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("target url has no host")
	}
	return nil
}

func validateStatusCodes(codes []int) error {
	for _, code := range codes {
		if code < 100 || code >= 600 {
			return fmt.Errorf("status code %d out of range [100, 600)", code)
		}
	}
	return nil
}
