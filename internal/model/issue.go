package model

import (
	"database/sql"
	"time"

	"github.com/devletter/newsletterd/internal/qa"
)

type IssueStatus string

const (
	IssueDraft     IssueStatus = "draft"
	IssueScheduled IssueStatus = "scheduled"
	IssueSent      IssueStatus = "sent"
)

func (s IssueStatus) String() string { return string(s) }

func (s IssueStatus) Valid() bool {
	return s == IssueDraft || s == IssueScheduled || s == IssueSent
}

// Issue is one generated newsletter edition. Exactly one row may exist per
// (category, publish_date); the compound unique key enforces it.
type Issue struct {
	ID           string       `db:"id"`
	Category     Category     `db:"category"`
	PublishDate  time.Time    `db:"publish_date"`
	Title        string       `db:"title"`
	QAPairs      qa.PairList  `db:"qa_pairs"`
	Status       IssueStatus  `db:"status"`
	GeneratedAt  time.Time    `db:"generated_at"`
	ScheduledFor sql.NullTime `db:"scheduled_for"`
	SentAt       sql.NullTime `db:"sent_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}
