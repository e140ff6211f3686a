package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicateIssue signals the (category, publish_date) unique key fired on
// create. Callers recover by re-fetching the winning row.
var ErrDuplicateIssue = errors.New("repository: issue already exists for category and publish date")

// IssuesRepository defines persistence for the issues table.
type IssuesRepository interface {
	GetByCategoryAndDate(ctx context.Context, category model.Category, publishDate time.Time) (*model.Issue, error)
	GetByID(ctx context.Context, id string) (*model.Issue, error)
	Create(ctx context.Context, issue model.Issue) error
	MarkScheduled(ctx context.Context, id string, scheduledAt time.Time) error
	Finalize(ctx context.Context, id string, status model.IssueStatus, sentAt *time.Time) error
	ListUnfinished(ctx context.Context, from, to time.Time) ([]model.Issue, error)
	CountByStatus(ctx context.Context) (map[model.IssueStatus]int, error)
}

type IssuesRepositoryImpl struct {
	db *sqlx.DB
}

var _ IssuesRepository = (*IssuesRepositoryImpl)(nil)

func NewIssuesRepository(db *sqlx.DB) *IssuesRepositoryImpl {
	return &IssuesRepositoryImpl{db: db}
}

func (r *IssuesRepositoryImpl) GetByCategoryAndDate(ctx context.Context, category model.Category, publishDate time.Time) (*model.Issue, error) {
	var issue model.Issue
	err := r.db.GetContext(ctx, &issue, `
		SELECT id, category, publish_date, title, qa_pairs, status,
		       generated_at, scheduled_for, sent_at, created_at, updated_at
		  FROM issues
		 WHERE category = ? AND publish_date = ? LIMIT 1
	`, category.String(), publishDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *IssuesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Issue, error) {
	var issue model.Issue
	err := r.db.GetContext(ctx, &issue, `
		SELECT id, category, publish_date, title, qa_pairs, status,
		       generated_at, scheduled_for, sent_at, created_at, updated_at
		  FROM issues
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// Create inserts a new draft issue. Translates the MySQL duplicate-key error
// (1062) into ErrDuplicateIssue so the race recovery path stays driver-free.
func (r *IssuesRepositoryImpl) Create(ctx context.Context, issue model.Issue) error {
	const q = `
		INSERT INTO issues
		    (id, category, publish_date, title, qa_pairs, status, generated_at, scheduled_for, created_at, updated_at)
		VALUES
		    (?,  ?,        ?,            ?,     ?,        ?,      ?,            ?,             NOW(),      NOW())
	`
	_, err := r.db.ExecContext(ctx, q,
		issue.ID, issue.Category.String(), issue.PublishDate, issue.Title,
		issue.QAPairs, issue.Status.String(), issue.GeneratedAt, issue.ScheduledFor,
	)
	if isDuplicateKey(err) {
		return ErrDuplicateIssue
	}
	return err
}

func (r *IssuesRepositoryImpl) MarkScheduled(ctx context.Context, id string, scheduledAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE issues
		   SET status = ?, scheduled_for = ?, updated_at = NOW()
		 WHERE id = ?
	`, model.IssueScheduled.String(), scheduledAt, id)
	return err
}

// Finalize sets the post-send status; sentAt is only stamped when non-nil so
// repeated runs without successes leave the original timestamp alone.
func (r *IssuesRepositoryImpl) Finalize(ctx context.Context, id string, status model.IssueStatus, sentAt *time.Time) error {
	if sentAt != nil {
		_, err := r.db.ExecContext(ctx, `
			UPDATE issues SET status = ?, sent_at = ?, updated_at = NOW() WHERE id = ?
		`, status.String(), *sentAt, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE issues SET status = ?, updated_at = NOW() WHERE id = ?
	`, status.String(), id)
	return err
}

// ListUnfinished returns draft/scheduled issues with publish_date in
// [from, to), oldest first.
func (r *IssuesRepositoryImpl) ListUnfinished(ctx context.Context, from, to time.Time) ([]model.Issue, error) {
	var issues []model.Issue
	err := r.db.SelectContext(ctx, &issues, `
		SELECT id, category, publish_date, title, qa_pairs, status,
		       generated_at, scheduled_for, sent_at, created_at, updated_at
		  FROM issues
		 WHERE publish_date >= ? AND publish_date < ?
		   AND status IN (?, ?)
		 ORDER BY publish_date ASC
	`, from, to, model.IssueDraft.String(), model.IssueScheduled.String())
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *IssuesRepositoryImpl) CountByStatus(ctx context.Context) (map[model.IssueStatus]int, error) {
	rows := []struct {
		Status model.IssueStatus `db:"status"`
		Count  int               `db:"cnt"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS cnt FROM issues GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	out := make(map[model.IssueStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
