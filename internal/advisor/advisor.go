// Package advisor asks a language model for a short remediation hint when
// a cloud metric check trips its thresholds. It is strictly best-effort:
// any API error, timeout or empty reply yields no hint and the check
// result goes out without one.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"

	defaultTimeout = 15 * time.Second
	maxTokens      = 512

	systemPrompt = "You are an infrastructure operations assistant. A cloud metric monitor " +
		"has crossed its alert threshold. Given the service, resource and current metric " +
		"values, suggest the most likely cause and one concrete remediation step. Reply in " +
		"at most three short sentences, no preamble."
)

// Config holds the advisory-service credentials. BaseURL is overridable
// for tests and proxies.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Advisor produces remediation hints for cloud metric alerts.
type Advisor struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Advisor {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Advisor{
		client:  anthropic.NewClient(opts...),
		model:   anthropic.Model(model),
		timeout: timeout,
		logger:  logger,
	}
}

// Recommend asks for a hint about the given resource. The bool reports
// whether a usable hint came back; callers must treat false as "no hint",
// never as a check failure.
func (a *Advisor) Recommend(ctx context.Context, service, resource string, metrics map[string]float64) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(service, resource, metrics))),
		},
	})
	if err != nil {
		a.logger.Warn("recommendation unavailable",
			"service", service, "resource", resource, "error", err)
		return "", false
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	hint := strings.TrimSpace(b.String())
	if hint == "" {
		return "", false
	}
	return hint, true
}

// buildPrompt renders the metric values in a stable order so identical
// inputs produce identical prompts.
func buildPrompt(service, resource string, metrics map[string]float64) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\nResource: %s\nMetrics:\n", service, resource)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s = %.2f\n", name, metrics[name])
	}
	return b.String()
}
