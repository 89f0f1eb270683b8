package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quantfold/kalshibot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okResponse(text string) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestGenerateFallsBackAcrossModels(t *testing.T) {
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path shape: /models/{model}:generateContent
		model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/models/"), ":generateContent")
		models = append(models, model)

		switch model {
		case "primary":
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "message": "quota"}}`)
		case "fallback":
			io.WriteString(w, okResponse("the decision"))
		default:
			t.Errorf("unexpected model %q", model)
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL: srv.URL,
		ApiKey:  "k",
		Models:  []string{"primary", "fallback"},
	}, testLogger())

	got, err := c.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != "the decision" {
		t.Errorf("unexpected response %q", got)
	}
	if len(models) != 2 || models[0] != "primary" || models[1] != "fallback" {
		t.Errorf("unexpected model order: %v", models)
	}
}

func TestGenerateExhaustsModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": {"code": 500, "status": "INTERNAL", "message": "boom"}}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL: srv.URL,
		ApiKey:  "k",
		Models:  []string{"a", "b"},
	}, testLogger())

	if _, err := c.Generate(context.Background(), "prompt"); !errors.Is(err, domain.ErrNoDecision) {
		t.Fatalf("expected ErrNoDecision, got %v", err)
	}
}

func TestGenerateSkipsEmptyResponses(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			io.WriteString(w, okResponse("   "))
			return
		}
		io.WriteString(w, okResponse("real answer"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL: srv.URL,
		ApiKey:  "k",
		Models:  []string{"a", "b"},
	}, testLogger())

	got, err := c.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != "real answer" {
		t.Errorf("unexpected response %q", got)
	}
}

func TestGenerateRequiresApiKey(t *testing.T) {
	c := NewClient(ClientConfig{Models: []string{"a"}}, testLogger())
	if _, err := c.Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error with no api key")
	}
}

func TestIsQuotaError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("gemini: HTTP 429"), true},
		{errors.New("API error 429 RESOURCE_EXHAUSTED: quota"), true},
		{domain.ErrRateLimited, true},
		{errors.New("gemini: HTTP 500"), false},
	}
	for _, tc := range cases {
		if got := isQuotaError(tc.err); got != tc.want {
			t.Errorf("isQuotaError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
