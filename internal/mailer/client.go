package mailer

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("mailer: api key is not configured")

// Tag is attached to outgoing messages for provider-side tracking.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is one fully rendered e-mail ready for a batch submit.
type Message struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    []Tag             `json:"tags,omitempty"`
}

type Receipt struct {
	IDs []string
}

// BatchClient submits a batch of messages in one transport call. The call is
// all-or-nothing: an error means none of the messages can be assumed sent.
type BatchClient interface {
	SendBatch(ctx context.Context, messages []Message) (Receipt, error)
}
