package newsletter

import (
	"context"
	"fmt"
	"time"

	"github.com/devletter/newsletterd/internal/logger"
	"github.com/devletter/newsletterd/internal/mailer"
	"github.com/devletter/newsletterd/internal/metrics"
	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultBatchSize   = 40
	maxBatchSize       = 50 // mail transport batch limit
	defaultMaxAttempts = 3
	maxErrorLen        = 250
	unsubscribedReason = "subscriber unsubscribed"
)

// Sender drains an issue's pending deliveries in FIFO batches through the
// mail transport, retrying failed batches up to MaxAttempts and recording
// per-delivery outcomes.
type Sender struct {
	Deliveries  repository.DeliveriesRepository
	Subscribers repository.SubscribersRepository
	Issues      repository.IssuesRepository
	Mail        mailer.BatchClient
	DeliveryLog repository.DeliveryLogRepository // optional analytics sink

	BaseURL     string
	SenderEmail string
	BatchSize   int
	MaxAttempts int
}

type deliveryBatch struct {
	attempt    int
	deliveries []model.PendingDelivery
}

// Send processes every pending delivery for the issue. A missing transport
// configuration yields a disabled result, not an error: the deliveries stay
// pending for a later, properly configured run.
func (s *Sender) Send(ctx context.Context, issue *model.Issue) (SendResult, error) {
	if s.Mail == nil {
		return disabledResult("mail transport is not configured"), nil
	}
	if s.BaseURL == "" {
		return disabledResult("base url is not configured"), nil
	}
	if s.SenderEmail == "" {
		return disabledResult("sender email is not configured"), nil
	}

	batchSize := clampBatchSize(s.BatchSize)
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	ctaURL := mailer.BuildCTAURL(s.BaseURL)
	categoryLabel := issue.Category.Label()

	var summary SendResult
	var logRows []repository.DeliveryLogRow
	var queue []deliveryBatch

	for {
		if len(queue) == 0 {
			pending, err := s.Deliveries.ListPending(ctx, issue.ID, batchSize)
			if err != nil {
				return summary, fmt.Errorf("newsletter: fetch pending deliveries: %w", err)
			}
			if len(pending) == 0 {
				break
			}
			queue = append(queue, deliveryBatch{attempt: 1, deliveries: pending})
		}

		batch := queue[0]
		queue = queue[1:]

		skipped, target := partitionUnsubscribed(batch.deliveries)

		if len(skipped) > 0 {
			if err := s.Deliveries.MarkFailed(ctx, deliveryIDs(skipped), unsubscribedReason); err != nil {
				return summary, fmt.Errorf("newsletter: mark unsubscribed: %w", err)
			}
			summary.Skipped += len(skipped)
			metrics.DeliveriesTotal.WithLabelValues("skipped").Add(float64(len(skipped)))
			logRows = append(logRows, s.logRowsFor(issue, skipped, model.DeliveryFailed, unsubscribedReason, batch.attempt)...)
		}

		if len(target) == 0 {
			continue
		}

		summary.Attempted += len(target)

		messages := s.buildMessages(issue, categoryLabel, ctaURL, target)
		if _, err := s.Mail.SendBatch(ctx, messages); err != nil {
			if batch.attempt < maxAttempts {
				queue = append(queue, deliveryBatch{attempt: batch.attempt + 1, deliveries: target})
				summary.Requeued += len(target)
				metrics.DeliveriesTotal.WithLabelValues("requeued").Add(float64(len(target)))
				continue
			}

			reason := truncateError(err.Error())
			if merr := s.Deliveries.MarkFailed(ctx, deliveryIDs(target), reason); merr != nil {
				return summary, fmt.Errorf("newsletter: mark failed: %w", merr)
			}
			summary.Failed += len(target)
			metrics.DeliveriesTotal.WithLabelValues("failed").Add(float64(len(target)))
			logRows = append(logRows, s.logRowsFor(issue, target, model.DeliveryFailed, reason, batch.attempt)...)
			continue
		}

		sentAt := time.Now()
		if err := s.Deliveries.MarkSent(ctx, deliveryIDs(target), sentAt); err != nil {
			return summary, fmt.Errorf("newsletter: mark sent: %w", err)
		}
		if err := s.Subscribers.BumpLastSent(ctx, subscriberIDs(target), issue.PublishDate); err != nil {
			return summary, fmt.Errorf("newsletter: bump last sent: %w", err)
		}
		summary.Sent += len(target)
		summary.Batches++
		metrics.DeliveriesTotal.WithLabelValues("sent").Add(float64(len(target)))
		logRows = append(logRows, s.logRowsFor(issue, target, model.DeliverySent, "", batch.attempt)...)
	}

	if err := s.finalizeIssue(ctx, issue.ID, summary.Sent); err != nil {
		return summary, err
	}

	s.flushDeliveryLog(ctx, logRows)
	return summary, nil
}

func (s *Sender) buildMessages(issue *model.Issue, categoryLabel, ctaURL string, target []model.PendingDelivery) []mailer.Message {
	messages := make([]mailer.Message, 0, len(target))
	for _, d := range target {
		unsubURL := mailer.BuildUnsubscribeURL(s.BaseURL, d.UnsubscribeToken, d.ID)
		rendered := mailer.RenderIssue(mailer.RenderInput{
			IssueTitle:     issue.Title,
			CategoryLabel:  categoryLabel,
			PublishDate:    issue.PublishDate,
			Pairs:          issue.QAPairs,
			CTAURL:         ctaURL,
			UnsubscribeURL: unsubURL,
		})
		messages = append(messages, mailer.Message{
			From:    s.SenderEmail,
			To:      d.Email,
			Subject: rendered.Subject,
			HTML:    rendered.HTML,
			Text:    rendered.Text,
			Headers: mailer.ListUnsubscribeHeaders(unsubURL, s.SenderEmail),
			Tags: []mailer.Tag{
				{Name: "issueId", Value: issue.ID},
				{Name: "category", Value: issue.Category.String()},
			},
		})
	}
	return messages
}

// finalizeIssue recomputes the issue status after a drain: sent only when
// nothing is left pending, and sentAt stamped only when this run delivered
// at least one message.
func (s *Sender) finalizeIssue(ctx context.Context, issueID string, sentCount int) error {
	pending, err := s.Deliveries.CountPending(ctx, issueID)
	if err != nil {
		return fmt.Errorf("newsletter: count pending: %w", err)
	}

	status := model.IssueScheduled
	if pending == 0 {
		status = model.IssueSent
	}

	var sentAt *time.Time
	if sentCount > 0 {
		now := time.Now()
		sentAt = &now
	}

	if err := s.Issues.Finalize(ctx, issueID, status, sentAt); err != nil {
		return fmt.Errorf("newsletter: finalize issue: %w", err)
	}
	return nil
}

func (s *Sender) logRowsFor(issue *model.Issue, deliveries []model.PendingDelivery, status model.DeliveryStatus, reason string, attempt int) []repository.DeliveryLogRow {
	if s.DeliveryLog == nil {
		return nil
	}
	now := time.Now()
	rows := make([]repository.DeliveryLogRow, 0, len(deliveries))
	for _, d := range deliveries {
		rows = append(rows, repository.DeliveryLogRow{
			DeliveryID:   d.ID,
			IssueID:      issue.ID,
			SubscriberID: d.SubscriberID,
			Category:     issue.Category.String(),
			Status:       status.String(),
			Error:        reason,
			Attempt:      attempt,
			ResolvedAt:   now,
		})
	}
	return rows
}

// flushDeliveryLog is best-effort: the analytics sink being down never fails
// a send run.
func (s *Sender) flushDeliveryLog(ctx context.Context, rows []repository.DeliveryLogRow) {
	if s.DeliveryLog == nil || len(rows) == 0 {
		return
	}
	if err := s.DeliveryLog.InsertBatch(ctx, rows); err != nil {
		logger.Log.Warn("delivery log flush failed", zap.Int("rows", len(rows)), zap.Error(err))
	}
}

func disabledResult(reason string) SendResult {
	return SendResult{Disabled: true, Reason: reason}
}

func partitionUnsubscribed(deliveries []model.PendingDelivery) (skipped, target []model.PendingDelivery) {
	for _, d := range deliveries {
		if d.UnsubscribedAt.Valid {
			skipped = append(skipped, d)
		} else {
			target = append(target, d)
		}
	}
	return skipped, target
}

func deliveryIDs(deliveries []model.PendingDelivery) []string {
	ids := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		ids = append(ids, d.ID)
	}
	return ids
}

func subscriberIDs(deliveries []model.PendingDelivery) []string {
	ids := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		ids = append(ids, d.SubscriberID)
	}
	return ids
}

func clampBatchSize(n int) int {
	if n <= 0 {
		return defaultBatchSize
	}
	if n > maxBatchSize {
		return maxBatchSize
	}
	return n
}

func truncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorLen {
		return msg
	}
	return string(runes[:maxErrorLen-1]) + "…"
}
