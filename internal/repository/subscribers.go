package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/jmoiron/sqlx"
)

// SubscribersRepository defines persistence for the subscribers table.
type SubscribersRepository interface {
	// ListEligibleIDs returns ids of subscribers interested in the label, not
	// unsubscribed, and either never sent to or last sent strictly before
	// publishDate.
	ListEligibleIDs(ctx context.Context, interestLabel string, publishDate time.Time) ([]string, error)
	BumpLastSent(ctx context.Context, ids []string, publishDate time.Time) error
	GetByEmail(ctx context.Context, email string) (*model.Subscriber, error)
	Upsert(ctx context.Context, sub model.Subscriber) error
	UnsubscribeByToken(ctx context.Context, token string, at time.Time) (bool, error)
}

type SubscribersRepositoryImpl struct {
	db *sqlx.DB
}

var _ SubscribersRepository = (*SubscribersRepositoryImpl)(nil)

func NewSubscribersRepository(db *sqlx.DB) *SubscribersRepositoryImpl {
	return &SubscribersRepositoryImpl{db: db}
}

func (r *SubscribersRepositoryImpl) ListEligibleIDs(ctx context.Context, interestLabel string, publishDate time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id
		  FROM subscribers
		 WHERE JSON_CONTAINS(interests, JSON_QUOTE(?))
		   AND unsubscribed_at IS NULL
		   AND (last_sent_at IS NULL OR last_sent_at < ?)
	`, interestLabel, publishDate)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// BumpLastSent stamps last_sent_at with the issue's publish date after a
// successful batch, and clears unsubscribed_at the same way a confirmed
// send implies a live address.
func (r *SubscribersRepositoryImpl) BumpLastSent(ctx context.Context, ids []string, publishDate time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE subscribers
		   SET last_sent_at = ?, unsubscribed_at = NULL, updated_at = NOW()
		 WHERE id IN (?)
	`, publishDate, ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *SubscribersRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := r.db.GetContext(ctx, &sub, `
		SELECT id, email, interests, last_sent_at, unsubscribed_at, unsubscribe_token, created_at, updated_at
		  FROM subscribers
		 WHERE email = ? LIMIT 1
	`, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Upsert inserts or refreshes a subscriber keyed by the unique email. A
// re-subscribe replaces interests and clears unsubscribed_at.
func (r *SubscribersRepositoryImpl) Upsert(ctx context.Context, sub model.Subscriber) error {
	const q = `
		INSERT INTO subscribers
		    (id, email, interests, unsubscribe_token, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    interests       = VALUES(interests),
		    unsubscribed_at = NULL,
		    updated_at      = NOW()
	`
	_, err := r.db.ExecContext(ctx, q, sub.ID, sub.Email, sub.Interests, sub.UnsubscribeToken)
	return err
}

func (r *SubscribersRepositoryImpl) UnsubscribeByToken(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers
		   SET unsubscribed_at = ?, updated_at = NOW()
		 WHERE unsubscribe_token = ? AND unsubscribed_at IS NULL
	`, at, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
