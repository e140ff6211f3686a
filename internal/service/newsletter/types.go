package newsletter

import (
	"time"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/rotation"
)

// Source says where an issue's content came from.
type Source string

const (
	SourceExisting Source = "existing"
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// DeliverySummary reports one EnsureDeliveries pass.
type DeliverySummary struct {
	SubscribersMatched int `json:"subscribersMatched"`
	DeliveriesCreated  int `json:"deliveriesCreated"`
	AlreadyQueued      int `json:"alreadyQueued"`
}

// SendResult reports one Sender.Send pass over an issue.
type SendResult struct {
	Attempted int    `json:"attempted"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Batches   int    `json:"batches"`
	Requeued  int    `json:"requeued"`
	Disabled  bool   `json:"disabled,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BacklogIssueSummary reports one re-driven past issue.
type BacklogIssueSummary struct {
	ID                 string         `json:"id"`
	Category           model.Category `json:"category"`
	PublishDate        time.Time      `json:"publishDate"`
	SubscribersMatched int            `json:"subscribersMatched"`
	DeliveriesCreated  int            `json:"deliveriesCreated"`
	Send               SendResult     `json:"send"`
}

type BacklogSummary struct {
	Inspected int                   `json:"inspected"`
	Requeued  int                   `json:"requeued"`
	Issues    []BacklogIssueSummary `json:"issues"`
}

// IssueSummary is the issue slice of a cron run report.
type IssueSummary struct {
	ID          string            `json:"id"`
	Category    model.Category    `json:"category"`
	PublishDate time.Time         `json:"publishDate"`
	Status      model.IssueStatus `json:"status"`
	SentAt      *time.Time        `json:"sentAt"`
	Source      Source            `json:"source"`
}

// CronSummary is the full report of one daily run.
type CronSummary struct {
	Schedule   rotation.Schedule `json:"schedule"`
	Issue      IssueSummary      `json:"issue"`
	Deliveries DeliverySummary   `json:"deliveries"`
	Send       SendResult        `json:"send"`
	Backlog    BacklogSummary    `json:"backlog"`
}
