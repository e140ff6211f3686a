package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	resendBaseURL  = "https://api.resend.com"
	defaultTimeout = 30 * time.Second
)

// Resend posts batches to the Resend /emails/batch endpoint.
type Resend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ BatchClient = (*Resend)(nil)

func NewResend(apiKey string, timeout time.Duration) *Resend {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Resend{
		apiKey:  apiKey,
		baseURL: resendBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type batchResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *Resend) SendBatch(ctx context.Context, messages []Message) (Receipt, error) {
	if r.apiKey == "" {
		return Receipt{}, ErrNotConfigured
	}
	if len(messages) == 0 {
		return Receipt{}, nil
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return Receipt{}, fmt.Errorf("mailer: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails/batch", bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	res, err := r.client.Do(req)
	if err != nil {
		return Receipt{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Receipt{}, err
	}
	if res.StatusCode/100 != 2 {
		return Receipt{}, fmt.Errorf("mailer: batch send status=%d", res.StatusCode)
	}

	var parsed batchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Receipt{}, fmt.Errorf("mailer: decode response: %w", err)
	}
	if parsed.Error != nil {
		return Receipt{}, fmt.Errorf("mailer: batch send failed: %s", parsed.Error.Message)
	}

	ids := make([]string, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		ids = append(ids, entry.ID)
	}
	return Receipt{IDs: ids}, nil
}
