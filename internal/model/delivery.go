package model

import (
	"database/sql"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryPending || s == DeliverySent || s == DeliveryFailed
}

// Delivery is one (issue, subscriber) send attempt record. The compound
// unique key on (issue_id, subscriber_id) makes enqueueing duplicate-safe.
// Rows are created pending, mutated by the sender, never deleted.
type Delivery struct {
	ID           string         `db:"id"`
	IssueID      string         `db:"issue_id"`
	SubscriberID string         `db:"subscriber_id"`
	Status       DeliveryStatus `db:"status"`
	Error        sql.NullString `db:"error"`
	SentAt       sql.NullTime   `db:"sent_at"`
	CreatedAt    time.Time      `db:"created_at"`
}

// PendingDelivery is a pending row joined with the subscriber fields the
// sender needs to address and render the e-mail.
type PendingDelivery struct {
	Delivery
	Email            string       `db:"email"`
	UnsubscribeToken string       `db:"unsubscribe_token"`
	UnsubscribedAt   sql.NullTime `db:"sub_unsubscribed_at"`
}
