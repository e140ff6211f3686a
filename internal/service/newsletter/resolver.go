package newsletter

import (
	"context"
	"fmt"
	"time"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/repository"
)

// Resolver computes eligible recipients for an issue and enqueues their
// pending deliveries.
type Resolver struct {
	Subscribers repository.SubscribersRepository
	Deliveries  repository.DeliveriesRepository
	Issues      repository.IssuesRepository
}

// EnsureDeliveries inserts one pending delivery per eligible subscriber,
// skipping pairs that already exist, then marks the issue scheduled and
// refreshes scheduledFor. Re-running is a no-op on content: the second pass
// reports zero created unless new subscribers became eligible in between.
func (r *Resolver) EnsureDeliveries(ctx context.Context, issue *model.Issue, categoryLabel string, scheduledAt time.Time) (DeliverySummary, error) {
	ids, err := r.Subscribers.ListEligibleIDs(ctx, categoryLabel, issue.PublishDate)
	if err != nil {
		return DeliverySummary{}, fmt.Errorf("newsletter: list eligible subscribers: %w", err)
	}

	created := 0
	if len(ids) > 0 {
		created, err = r.Deliveries.InsertPendingSkipDuplicates(ctx, issue.ID, ids)
		if err != nil {
			return DeliverySummary{}, fmt.Errorf("newsletter: enqueue deliveries: %w", err)
		}
	}

	if err := r.Issues.MarkScheduled(ctx, issue.ID, scheduledAt); err != nil {
		return DeliverySummary{}, fmt.Errorf("newsletter: mark issue scheduled: %w", err)
	}

	alreadyQueued := len(ids) - created
	if alreadyQueued < 0 {
		alreadyQueued = 0
	}
	return DeliverySummary{
		SubscribersMatched: len(ids),
		DeliveriesCreated:  created,
		AlreadyQueued:      alreadyQueued,
	}, nil
}
