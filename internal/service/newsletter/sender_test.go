package newsletter

import (
	"context"
	"strings"
	"testing"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/qa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type senderFixture struct {
	issues      *fakeIssues
	subs        *fakeSubscribers
	deliveries  *fakeDeliveries
	mail        *fakeMail
	deliveryLog *fakeDeliveryLog
	issue       *model.Issue
	sender      *Sender
}

func newSenderFixture(t *testing.T, emails ...string) *senderFixture {
	t.Helper()

	subs := newFakeSubscribers()
	issues := newFakeIssues()
	deliveries := newFakeDeliveries(subs)
	mail := &fakeMail{}
	logRepo := &fakeDeliveryLog{}

	issue := issues.put(model.CategoryBackend, testDate(), model.IssueScheduled)
	issue.QAPairs = qa.PairList{{Question: "How do you drain a queue safely?", Answer: "Batch, retry, and record every outcome."}}

	ids := make([]string, 0, len(emails))
	for i, email := range emails {
		sub := subs.add(string(rune('a'+i))+"-sub", email, "Backend")
		ids = append(ids, sub.ID)
	}
	if len(ids) > 0 {
		_, err := deliveries.InsertPendingSkipDuplicates(context.Background(), issue.ID, ids)
		require.NoError(t, err)
	}

	return &senderFixture{
		issues:      issues,
		subs:        subs,
		deliveries:  deliveries,
		mail:        mail,
		deliveryLog: logRepo,
		issue:       issue,
		sender: &Sender{
			Deliveries:  deliveries,
			Subscribers: subs,
			Issues:      issues,
			Mail:        mail,
			DeliveryLog: logRepo,
			BaseURL:     "https://devletter.example",
			SenderEmail: "daily@devletter.example",
			BatchSize:   2,
			MaxAttempts: 3,
		},
	}
}

func TestSendDisabledWithoutTransport(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com")
	fx.sender.Mail = nil

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	assert.True(t, res.Disabled)
	assert.Equal(t, "mail transport is not configured", res.Reason)

	// deliveries stay pending for a configured run later
	pending, err := fx.deliveries.CountPending(context.Background(), fx.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestSendDisabledWithoutBaseURL(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com")
	fx.sender.BaseURL = ""

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)
	assert.True(t, res.Disabled)
	assert.Equal(t, "base url is not configured", res.Reason)
}

func TestSendDisabledWithoutSenderEmail(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com")
	fx.sender.SenderEmail = ""

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)
	assert.True(t, res.Disabled)
	assert.Equal(t, "sender email is not configured", res.Reason)
}

func TestSendDrainsInBatches(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com", "two@example.com", "three@example.com")

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 2, res.Batches, "batch size 2 splits three deliveries")
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Requeued)

	assert.Equal(t, 3, fx.mail.sentCount())
	assert.Len(t, fx.deliveries.byStatus(fx.issue.ID, model.DeliverySent), 3)

	stored, err := fx.issues.GetByID(context.Background(), fx.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IssueSent, stored.Status)
	assert.True(t, stored.SentAt.Valid)

	// every recipient got stamped so they drop out of today's eligibility
	ids, err := fx.subs.ListEligibleIDs(context.Background(), "Backend", fx.issue.PublishDate)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// analytics sink got one row per delivery
	rows, err := fx.deliveryLog.List(context.Background(), "", "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "sent", row.Status)
		assert.Equal(t, fx.issue.ID, row.IssueID)
	}
}

func TestSendBuildsPersonalizedMessages(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com")

	_, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	require.Len(t, fx.mail.batches, 1)
	require.Len(t, fx.mail.batches[0], 1)
	msg := fx.mail.batches[0][0]

	assert.Equal(t, "daily@devletter.example", msg.From)
	assert.Equal(t, "one@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Dev Letter Daily • Backend")
	assert.Contains(t, msg.HTML, "How do you drain a queue safely?")
	assert.Contains(t, msg.HTML, "token=tok-a-sub")
	assert.Contains(t, msg.Headers["List-Unsubscribe"], "token=tok-a-sub")
	assert.Equal(t, "List-Unsubscribe=One-Click", msg.Headers["List-Unsubscribe-Post"])
	require.Len(t, msg.Tags, 2)
	assert.Equal(t, fx.issue.ID, msg.Tags[0].Value)
}

func TestSendRetriesFailedBatch(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com", "two@example.com", "three@example.com")
	fx.mail.failures = 1

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 2, res.Requeued, "first batch of two went around again")
	assert.Zero(t, res.Failed)
	assert.Len(t, fx.deliveries.byStatus(fx.issue.ID, model.DeliverySent), 3)
}

func TestSendFailsBatchAfterMaxAttempts(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com", "two@example.com")
	fx.sender.MaxAttempts = 2
	fx.mail.failures = 100

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	assert.Zero(t, res.Sent)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, res.Requeued)

	failed := fx.deliveries.byStatus(fx.issue.ID, model.DeliveryFailed)
	require.Len(t, failed, 2)
	assert.Equal(t, "upstream rejected the batch", failed[0].Error.String)

	// drained but nothing delivered: no sent timestamp
	stored, err := fx.issues.GetByID(context.Background(), fx.issue.ID)
	require.NoError(t, err)
	assert.False(t, stored.SentAt.Valid)
}

func TestSendTruncatesLongErrors(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com")
	fx.sender.MaxAttempts = 1
	fx.mail.failures = 1
	fx.mail.failMsg = strings.Repeat("x", 600)

	_, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	failed := fx.deliveries.byStatus(fx.issue.ID, model.DeliveryFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, maxErrorLen, len([]rune(failed[0].Error.String)))
	assert.True(t, strings.HasSuffix(failed[0].Error.String, "…"))
}

func TestSendSkipsUnsubscribedWithoutAttempt(t *testing.T) {
	fx := newSenderFixture(t, "one@example.com", "two@example.com")
	// unsubscribes after being queued but before the drain
	fx.subs.unsubscribe("a-sub")

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 1, res.Sent)

	require.Equal(t, 1, fx.mail.sentCount())
	assert.Equal(t, "two@example.com", fx.mail.batches[0][0].To)

	failed := fx.deliveries.byStatus(fx.issue.ID, model.DeliveryFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, unsubscribedReason, failed[0].Error.String)
}

func TestSendNothingPending(t *testing.T) {
	fx := newSenderFixture(t)

	res, err := fx.sender.Send(context.Background(), fx.issue)
	require.NoError(t, err)

	assert.Zero(t, res.Attempted)
	assert.Zero(t, res.Batches)

	// empty drain still finalizes: nothing pending means the issue is done
	stored, err := fx.issues.GetByID(context.Background(), fx.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IssueSent, stored.Status)
	assert.False(t, stored.SentAt.Valid)
}

func TestClampBatchSize(t *testing.T) {
	assert.Equal(t, defaultBatchSize, clampBatchSize(0))
	assert.Equal(t, defaultBatchSize, clampBatchSize(-5))
	assert.Equal(t, 10, clampBatchSize(10))
	assert.Equal(t, maxBatchSize, clampBatchSize(200))
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", truncateError("short"))

	long := strings.Repeat("é", maxErrorLen+10)
	got := truncateError(long)
	assert.Equal(t, maxErrorLen, len([]rune(got)))
}
