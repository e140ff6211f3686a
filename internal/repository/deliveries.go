package repository

import (
	"context"
	"time"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/util"
	"github.com/jmoiron/sqlx"
)

// DeliveriesRepository defines persistence for the deliveries table.
type DeliveriesRepository interface {
	// InsertPendingSkipDuplicates creates one pending delivery per subscriber
	// and silently skips (issue_id, subscriber_id) pairs that already exist.
	// Returns the number of rows actually created.
	InsertPendingSkipDuplicates(ctx context.Context, issueID string, subscriberIDs []string) (int, error)
	// ListPending returns up to limit pending deliveries for the issue in
	// creation order, joined with subscriber addressing fields.
	ListPending(ctx context.Context, issueID string, limit int) ([]model.PendingDelivery, error)
	MarkSent(ctx context.Context, ids []string, sentAt time.Time) error
	MarkFailed(ctx context.Context, ids []string, reason string) error
	CountPending(ctx context.Context, issueID string) (int, error)
}

type DeliveriesRepositoryImpl struct {
	db *sqlx.DB
}

var _ DeliveriesRepository = (*DeliveriesRepositoryImpl)(nil)

func NewDeliveriesRepository(db *sqlx.DB) *DeliveriesRepositoryImpl {
	return &DeliveriesRepositoryImpl{db: db}
}

func (r *DeliveriesRepositoryImpl) InsertPendingSkipDuplicates(ctx context.Context, issueID string, subscriberIDs []string) (int, error) {
	if len(subscriberIDs) == 0 {
		return 0, nil
	}

	rows := make([]model.Delivery, 0, len(subscriberIDs))
	for _, subID := range subscriberIDs {
		rows = append(rows, model.Delivery{
			ID:           util.New(),
			IssueID:      issueID,
			SubscriberID: subID,
			Status:       model.DeliveryPending,
		})
	}

	// INSERT IGNORE leans on the (issue_id, subscriber_id) unique key; the
	// affected-rows count is the number of genuinely new deliveries.
	const q = `
		INSERT IGNORE INTO deliveries
		    (id, issue_id, subscriber_id, status, created_at)
		VALUES
		    (:id, :issue_id, :subscriber_id, :status, NOW())
	`
	res, err := r.db.NamedExecContext(ctx, q, rows)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *DeliveriesRepositoryImpl) ListPending(ctx context.Context, issueID string, limit int) ([]model.PendingDelivery, error) {
	if limit <= 0 {
		limit = 40
	}
	var out []model.PendingDelivery
	err := r.db.SelectContext(ctx, &out, `
		SELECT d.id, d.issue_id, d.subscriber_id, d.status, d.error, d.sent_at, d.created_at,
		       s.email, s.unsubscribe_token, s.unsubscribed_at AS sub_unsubscribed_at
		  FROM deliveries d
		  JOIN subscribers s ON s.id = d.subscriber_id
		 WHERE d.issue_id = ? AND d.status = ?
		 ORDER BY d.created_at ASC, d.id ASC
		 LIMIT ?
	`, issueID, model.DeliveryPending.String(), limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DeliveriesRepositoryImpl) MarkSent(ctx context.Context, ids []string, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE deliveries
		   SET status = ?, sent_at = ?, error = NULL
		 WHERE id IN (?)
	`, model.DeliverySent.String(), sentAt, ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *DeliveriesRepositoryImpl) MarkFailed(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE deliveries
		   SET status = ?, error = ?
		 WHERE id IN (?)
	`, model.DeliveryFailed.String(), reason, ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *DeliveriesRepositoryImpl) CountPending(ctx context.Context, issueID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM deliveries WHERE issue_id = ? AND status = ?
	`, issueID, model.DeliveryPending.String())
	if err != nil {
		return 0, err
	}
	return n, nil
}
