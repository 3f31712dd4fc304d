package advisor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func messagesStub(t *testing.T, status int, reply string, sawPrompt *string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if sawPrompt != nil && len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
			*sawPrompt = req.Messages[0].Content[0].Text
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "`+req.Model+`",
			"content": [{"type": "text", "text": "`+reply+`"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 40, "output_tokens": 12}
		}`)
	}
}

func TestRecommend(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(messagesStub(t, http.StatusOK,
		"CPU is saturated. Scale the instance class up one size.", &prompt))
	defer srv.Close()

	adv := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, discardLogger())

	hint, ok := adv.Recommend(context.Background(), "ec2", "i-0abc123", map[string]float64{
		"CPUUtilization":    97.2,
		"NetworkPacketsIn":  120,
		"StatusCheckFailed": 0,
	})
	if !ok {
		t.Fatal("expected a hint")
	}
	if !strings.Contains(hint, "Scale the instance") {
		t.Errorf("hint = %q", hint)
	}

	for _, want := range []string{"Service: ec2", "Resource: i-0abc123", "CPUUtilization = 97.20"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	// Stable metric ordering keeps prompts reproducible.
	if strings.Index(prompt, "CPUUtilization") > strings.Index(prompt, "NetworkPacketsIn") {
		t.Errorf("metrics not sorted:\n%s", prompt)
	}
}

func TestRecommendAPIError(t *testing.T) {
	srv := httptest.NewServer(messagesStub(t, http.StatusInternalServerError, "", nil))
	defer srv.Close()

	adv := New(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second}, discardLogger())

	if hint, ok := adv.Recommend(context.Background(), "rds", "db-1", map[string]float64{"cpu": 99}); ok {
		t.Fatalf("error response produced hint %q", hint)
	}
}

func TestRecommendEmptyReply(t *testing.T) {
	srv := httptest.NewServer(messagesStub(t, http.StatusOK, "", nil))
	defer srv.Close()

	adv := New(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second}, discardLogger())

	if _, ok := adv.Recommend(context.Background(), "gce", "vm-1", map[string]float64{"cpu": 99}); ok {
		t.Fatal("empty reply must not count as a hint")
	}
}

func TestDefaults(t *testing.T) {
	adv := New(Config{APIKey: "k"}, discardLogger())
	if adv.model != DefaultModel {
		t.Errorf("model = %q, want default", adv.model)
	}
	if adv.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default", adv.timeout)
	}
}
