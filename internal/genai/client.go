package genai

import (
	"context"
	"errors"
	"time"
)

var ErrNotConfigured = errors.New("genai: api key is not configured")

// Options bound a single generation call.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Latency      time.Duration
}

type Result struct {
	Text  string
	Usage *Usage
}

// Client is the content-generation collaborator. Transient failures
// (5xx/429/timeouts) are retried internally with bounded backoff;
// everything else propagates immediately.
type Client interface {
	GenerateText(ctx context.Context, prompt string, opts Options) (Result, error)
}
