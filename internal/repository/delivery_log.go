package repository

import (
	"context"
	"time"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveryLogRow is one resolved send outcome appended to ClickHouse for
// reporting. The MySQL deliveries table stays the source of truth; this sink
// is analytics-only and written best-effort.
type DeliveryLogRow struct {
	DeliveryID   string    `db:"delivery_id"`
	IssueID      string    `db:"issue_id"`
	SubscriberID string    `db:"subscriber_id"`
	Category     string    `db:"category"`
	Status       string    `db:"status"`
	Error        string    `db:"error"`
	Attempt      int       `db:"attempt"`
	ResolvedAt   time.Time `db:"resolved_at"`
}

type DeliveryLogRepository interface {
	InsertBatch(ctx context.Context, rows []DeliveryLogRow) error
	List(ctx context.Context, category string, status model.DeliveryStatus, limit, offset int) ([]DeliveryLogRow, error)
}

type deliveryLogRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

var _ DeliveryLogRepository = (*deliveryLogRepository)(nil)

func NewDeliveryLogRepository(ch *sqlx.DB) *deliveryLogRepository {
	return &deliveryLogRepository{ch: ch}
}

func (r *deliveryLogRepository) InsertBatch(ctx context.Context, rows []DeliveryLogRow) error {
	if len(rows) == 0 {
		return nil
	}
	const q = `
		INSERT INTO newsletter.delivery_log
		    (delivery_id, issue_id, subscriber_id, category, status, error, attempt, resolved_at)
		VALUES
		    (:delivery_id, :issue_id, :subscriber_id, :category, :status, :error, :attempt, :resolved_at)
	`
	_, err := r.ch.NamedExecContext(ctx, q, rows)
	return err
}

func (r *deliveryLogRepository) List(ctx context.Context, category string, status model.DeliveryStatus, limit, offset int) ([]DeliveryLogRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT delivery_id, issue_id, subscriber_id, category, status, error, attempt, resolved_at
		FROM newsletter.delivery_log
		WHERE 1 = 1
	`
	args := []any{}

	if category != "" {
		q += " AND category = ?"
		args = append(args, category)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY resolved_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []DeliveryLogRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
