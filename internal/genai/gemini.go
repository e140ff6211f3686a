package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devletter/newsletterd/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "gemini-2.0-flash"
	defaultTimeout     = 5 * time.Minute
	defaultMaxRetries  = 2
	backoffBase        = 300 * time.Millisecond
	defaultTemperature = 0.4
	defaultMaxTokens   = 512
)

// Gemini calls the Generative Language REST API directly.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	client     *http.Client
}

var _ Client = (*Gemini)(nil)

func NewGemini(apiKey, model string, maxRetries int) *Gemini {
	if model == "" {
		model = defaultModel
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return &Gemini{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		maxRetries: maxRetries,
		client:     &http.Client{},
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("genai: status=%d body=%s", e.status, e.body)
}

// GenerateText runs one prompt with bounded retries. Each attempt gets its
// own timeout derived from opts.Timeout (default 5m).
func (g *Gemini) GenerateText(ctx context.Context, promptText string, opts Options) (Result, error) {
	if g.apiKey == "" {
		return Result{}, ErrNotConfigured
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries+1; attempt++ {
		res, err := g.tryOnce(ctx, promptText, opts)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt > g.maxRetries || !isRetryable(err) {
			return Result{}, err
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(backoffBase << (attempt - 1)):
		}
	}
	return Result{}, lastErr
}

func (g *Gemini) tryOnce(ctx context.Context, promptText string, opts Options) (Result, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: promptText}}}},
		GenerationConfig: &generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := g.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	if res.StatusCode/100 != 2 {
		return Result{}, &httpStatusError{status: res.StatusCode, body: truncate(string(body), 200)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("genai: decode response: %w", err)
	}

	text := extractText(parsed)
	out := Result{Text: text}
	if parsed.UsageMetadata != nil {
		usage := &Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
			Latency:      time.Since(start),
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		}
		out.Usage = usage
		logger.Log.Info("genai generation finished",
			zap.String("model", g.model),
			zap.Int("input_tokens", usage.InputTokens),
			zap.Int("output_tokens", usage.OutputTokens),
			zap.Duration("latency", usage.Latency),
		)
	}
	return out, nil
}

func extractText(res generateResponse) string {
	for _, cand := range res.Candidates {
		parts := make([]string, 0, len(cand.Content.Parts))
		for _, p := range cand.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				parts = append(parts, p.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return ""
}

func isRetryable(err error) bool {
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return httpErr.status >= 500 || httpErr.status == 429
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "unavailable")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
