package newsletter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devletter/newsletterd/internal/logger"
	"github.com/devletter/newsletterd/internal/model"
	"go.uber.org/zap"
)

const defaultBacklogConcurrency = 4

// reconcileBacklog re-drives delivery for unfinished issues published inside
// the trailing window [publishDate-windowDays, publishDate). Issues are
// scanned oldest-first and processed by a small fixed worker pool; the
// result list keeps scan order regardless of completion order.
func (r *Runner) reconcileBacklog(ctx context.Context, publishDate, scheduledAt time.Time, windowDays int) (BacklogSummary, error) {
	if windowDays <= 0 {
		return BacklogSummary{Issues: []BacklogIssueSummary{}}, nil
	}

	windowStart := publishDate.AddDate(0, 0, -windowDays)
	issues, err := r.Issues.ListUnfinished(ctx, windowStart, publishDate)
	if err != nil {
		return BacklogSummary{}, fmt.Errorf("newsletter: scan backlog: %w", err)
	}
	if len(issues) == 0 {
		return BacklogSummary{Issues: []BacklogIssueSummary{}}, nil
	}

	workers := r.BacklogConcurrency
	if workers <= 0 {
		workers = defaultBacklogConcurrency
	}
	if workers > len(issues) {
		workers = len(issues)
	}

	type job struct {
		idx   int
		issue model.Issue
	}

	jobs := make(chan job)
	summaries := make([]BacklogIssueSummary, len(issues))
	errs := make([]error, len(issues))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				summaries[j.idx], errs[j.idx] = r.redriveIssue(ctx, j.issue, scheduledAt)
			}
		}()
	}

	for i, issue := range issues {
		jobs <- job{idx: i, issue: issue}
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return BacklogSummary{}, fmt.Errorf("newsletter: backlog issue %s: %w", issues[i].ID, err)
		}
	}

	requeued := 0
	for _, s := range summaries {
		if s.DeliveriesCreated > 0 {
			requeued++
		}
	}

	return BacklogSummary{
		Inspected: len(issues),
		Requeued:  requeued,
		Issues:    summaries,
	}, nil
}

func (r *Runner) redriveIssue(ctx context.Context, issue model.Issue, scheduledAt time.Time) (BacklogIssueSummary, error) {
	label := issue.Category.Label()

	queueResult, err := r.Resolver.EnsureDeliveries(ctx, &issue, label, scheduledAt)
	if err != nil {
		return BacklogIssueSummary{}, err
	}

	sendResult, err := r.Sender.Send(ctx, &issue)
	if err != nil {
		return BacklogIssueSummary{}, err
	}

	logger.Log.Info("backlog issue re-driven",
		zap.String("issue_id", issue.ID),
		zap.String("category", issue.Category.String()),
		zap.Int("created", queueResult.DeliveriesCreated),
		zap.Int("sent", sendResult.Sent),
		zap.Int("failed", sendResult.Failed),
	)

	return BacklogIssueSummary{
		ID:                 issue.ID,
		Category:           issue.Category,
		PublishDate:        issue.PublishDate,
		SubscribersMatched: queueResult.SubscribersMatched,
		DeliveriesCreated:  queueResult.DeliveriesCreated,
		Send:               sendResult,
	}, nil
}
