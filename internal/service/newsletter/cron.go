package newsletter

import (
	"context"
	"fmt"
	"time"

	"github.com/devletter/newsletterd/internal/logger"
	"github.com/devletter/newsletterd/internal/metrics"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/devletter/newsletterd/internal/rotation"
	"go.uber.org/zap"
)

const DefaultBacklogWindowDays = 3

// Runner composes the whole daily pipeline: rotation schedule, backlog
// drain, issue get-or-create, recipient resolution, and delivery. Safe to
// invoke any number of times per day; every step is idempotent per
// (category, day).
type Runner struct {
	Issues   repository.IssuesRepository
	IssueSvc *IssueService
	Resolver *Resolver
	Sender   *Sender

	CycleStart         time.Time // zero value: rotation.DefaultCycleStart
	BacklogWindowDays  int
	BacklogConcurrency int
}

// Run executes one daily cron pass for the given date (zero value: now).
func (r *Runner) Run(ctx context.Context, date time.Time) (CronSummary, error) {
	summary, err := r.run(ctx, date)
	if err != nil {
		metrics.CronRunsTotal.WithLabelValues("error").Inc()
		return summary, err
	}
	metrics.CronRunsTotal.WithLabelValues("ok").Inc()
	return summary, nil
}

func (r *Runner) run(ctx context.Context, date time.Time) (CronSummary, error) {
	if date.IsZero() {
		date = time.Now()
	}

	schedule, err := rotation.Compute(date, r.CycleStart)
	if err != nil {
		return CronSummary{}, err
	}

	windowDays := r.BacklogWindowDays
	if windowDays == 0 {
		windowDays = DefaultBacklogWindowDays
	}
	scheduledAt := time.Now()

	// Old debt drains before today's issue creates new work.
	backlog, err := r.reconcileBacklog(ctx, schedule.PublishDate, scheduledAt, windowDays)
	if err != nil {
		return CronSummary{}, err
	}

	issue, source, err := r.IssueSvc.GetOrCreate(ctx, schedule.Category, schedule.PublishDate)
	if err != nil {
		return CronSummary{}, err
	}

	queueResult, err := r.Resolver.EnsureDeliveries(ctx, issue, schedule.Label, scheduledAt)
	if err != nil {
		return CronSummary{}, err
	}

	sendResult, err := r.Sender.Send(ctx, issue)
	if err != nil {
		return CronSummary{}, err
	}

	issueSummary := IssueSummary{
		ID:          issue.ID,
		Category:    issue.Category,
		PublishDate: issue.PublishDate,
		Status:      issue.Status,
		Source:      source,
	}
	// Re-read for the finalized status and sent timestamp.
	if latest, err := r.Issues.GetByID(ctx, issue.ID); err != nil {
		return CronSummary{}, fmt.Errorf("newsletter: reload issue: %w", err)
	} else if latest != nil {
		issueSummary.Status = latest.Status
		if latest.SentAt.Valid {
			t := latest.SentAt.Time
			issueSummary.SentAt = &t
		}
	}

	logger.Log.Info("daily cron finished",
		zap.String("issue_id", issue.ID),
		zap.String("category", schedule.Category.String()),
		zap.String("source", string(source)),
		zap.Int("deliveries_created", queueResult.DeliveriesCreated),
		zap.Int("sent", sendResult.Sent),
		zap.Int("failed", sendResult.Failed),
		zap.Int("backlog_inspected", backlog.Inspected),
	)

	return CronSummary{
		Schedule:   schedule,
		Issue:      issueSummary,
		Deliveries: queueResult,
		Send:       sendResult,
		Backlog:    backlog,
	}, nil
}
