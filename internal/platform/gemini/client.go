// Package gemini implements the decision oracle against Google's Generative
// Language REST API. Models are tried in configured order; quota exhaustion
// and transient errors both fall through to the next variant.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantfold/kalshibot/internal/domain"
)

// ClientConfig holds parameters for the Gemini REST client.
type ClientConfig struct {
	// BaseURL is the API root, e.g.
	// "https://generativelanguage.googleapis.com/v1beta".
	BaseURL string
	ApiKey  string
	// Models is the ordered fallback list of model names.
	Models []string
	// EnableSearch attaches the Google Search grounding tool so the model
	// can verify recent events before committing to a trade.
	EnableSearch bool
}

// Client is a REST client for the generateContent endpoint. It implements
// domain.Oracle.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Gemini client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger.With(slog.String("component", "gemini")),
	}
}

// Generate sends the prompt to each configured model in order and returns
// the first non-empty response. Exhausting every model yields
// domain.ErrNoDecision.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.ApiKey == "" {
		return "", fmt.Errorf("gemini: api key not configured")
	}

	for _, model := range c.cfg.Models {
		c.logger.InfoContext(ctx, "sending analysis request", slog.String("model", model))

		text, err := c.generateContent(ctx, model, prompt)
		if err != nil {
			if isQuotaError(err) {
				c.logger.WarnContext(ctx, "model quota exhausted, falling back",
					slog.String("model", model))
			} else {
				c.logger.WarnContext(ctx, "model request failed, falling back",
					slog.String("model", model),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if text == "" {
			c.logger.WarnContext(ctx, "model returned empty response, falling back",
				slog.String("model", model))
			continue
		}
		return text, nil
	}

	return "", domain.ErrNoDecision
}

// --------------------------------------------------------------------------
// Wire types
// --------------------------------------------------------------------------

type generateRequest struct {
	Contents []content `json:"contents"`
	Tools    []tool    `json:"tools,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) generateContent(ctx context.Context, model, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	if c.cfg.EnableSearch {
		reqBody.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(model), url.QueryEscape(c.cfg.ApiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("gemini: decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("gemini: %w: HTTP 429", domain.ErrRateLimited)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("gemini: API error %d %s: %s",
			decoded.Error.Code, decoded.Error.Status, decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: HTTP %d", resp.StatusCode)
	}

	var sb strings.Builder
	for _, cand := range decoded.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		// Only the first candidate is requested or used.
		break
	}
	return strings.TrimSpace(sb.String()), nil
}

// isQuotaError reports whether the error looks like quota exhaustion
// (HTTP 429 / RESOURCE_EXHAUSTED), which warrants a quieter fallback.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, domain.ErrRateLimited.Error())
}

// Compile-time interface check.
var _ domain.Oracle = (*Client)(nil)
