package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/argus-mon/argus/internal/storage"
)

// APIPostChecker probes an HTTP(S) endpoint with a JSON POST. Everything
// downstream of the request (status codes, patterns, classification) works
// exactly like the url checker.
type APIPostChecker struct{}

func (c *APIPostChecker) Type() string { return storage.TypeAPIPost }

func (c *APIPostChecker) Validate(monitor *storage.Monitor) error {
	if err := validateHTTPTarget(monitor.Target); err != nil {
		return err
	}
	cfg := monitor.APIPost
	if cfg == nil || strings.TrimSpace(cfg.PostBody) == "" {
		return fmt.Errorf("api_post requires a post_body")
	}
	if !json.Valid([]byte(cfg.PostBody)) {
		return fmt.Errorf("post_body is not valid JSON")
	}
	if err := validatePatterns(cfg.PositivePattern, cfg.NegativePattern); err != nil {
		return err
	}
	return validateStatusCodes(cfg.StatusCodes)
}

func (c *APIPostChecker) Check(ctx context.Context, monitor *storage.Monitor) (*Result, error) {
	cfg := monitor.APIPost
	if cfg == nil {
		return ErrorResult("api_post config missing"), nil
	}
	return httpProbe(ctx, monitor, probeSpec{
		Method:          http.MethodPost,
		Body:            cfg.PostBody,
		ContentType:     "application/json",
		StatusCodes:     cfg.StatusCodes,
		PositivePattern: cfg.PositivePattern,
		NegativePattern: cfg.NegativePattern,
		Headers:         cfg.Headers,
	})
}
