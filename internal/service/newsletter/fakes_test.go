package newsletter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/devletter/newsletterd/internal/genai"
	"github.com/devletter/newsletterd/internal/mailer"
	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/devletter/newsletterd/internal/rotation"
)

// ---- issues ----

type fakeIssues struct {
	mu     sync.Mutex
	seq    int
	issues map[string]*model.Issue

	createErr    error
	conflictWith *model.Issue // Create returns ErrDuplicateIssue and plants this row
}

var _ repository.IssuesRepository = (*fakeIssues)(nil)

func newFakeIssues() *fakeIssues {
	return &fakeIssues{issues: make(map[string]*model.Issue)}
}

func (f *fakeIssues) GetByCategoryAndDate(_ context.Context, category model.Category, publishDate time.Time) (*model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, issue := range f.issues {
		if issue.Category == category && issue.PublishDate.Equal(publishDate) {
			cp := *issue
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeIssues) GetByID(_ context.Context, id string) (*model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return nil, nil
	}
	cp := *issue
	return &cp, nil
}

func (f *fakeIssues) Create(_ context.Context, issue model.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		if f.conflictWith != nil {
			cp := *f.conflictWith
			f.issues[cp.ID] = &cp
		}
		err := f.createErr
		f.createErr = nil
		return err
	}
	cp := issue
	f.issues[issue.ID] = &cp
	return nil
}

func (f *fakeIssues) MarkScheduled(_ context.Context, id string, scheduledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return fmt.Errorf("fake: issue %s not found", id)
	}
	issue.Status = model.IssueScheduled
	issue.ScheduledFor.Time = scheduledAt
	issue.ScheduledFor.Valid = true
	return nil
}

func (f *fakeIssues) Finalize(_ context.Context, id string, status model.IssueStatus, sentAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return fmt.Errorf("fake: issue %s not found", id)
	}
	issue.Status = status
	if sentAt != nil {
		issue.SentAt.Time = *sentAt
		issue.SentAt.Valid = true
	}
	return nil
}

func (f *fakeIssues) ListUnfinished(_ context.Context, from, to time.Time) ([]model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Issue
	for _, issue := range f.issues {
		if issue.Status == model.IssueSent {
			continue
		}
		if issue.PublishDate.Before(from) || !issue.PublishDate.Before(to) {
			continue
		}
		out = append(out, *issue)
	}
	// oldest first, deterministic
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].PublishDate.Before(out[i].PublishDate) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeIssues) CountByStatus(_ context.Context) (map[model.IssueStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.IssueStatus]int)
	for _, issue := range f.issues {
		out[issue.Status]++
	}
	return out, nil
}

// put plants an issue directly, for backlog scenarios.
func (f *fakeIssues) put(category model.Category, publishDate time.Time, status model.IssueStatus) *model.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	issue := &model.Issue{
		ID:          fmt.Sprintf("issue-%d", f.seq),
		Category:    category,
		PublishDate: rotation.StartOfDay(publishDate),
		Title:       "Dev Letter Daily • " + category.Label(),
		Status:      status,
		GeneratedAt: time.Now(),
	}
	f.issues[issue.ID] = issue
	return issue
}

// ---- subscribers ----

type fakeSubscribers struct {
	mu   sync.Mutex
	subs map[string]*model.Subscriber
}

var _ repository.SubscribersRepository = (*fakeSubscribers)(nil)

func newFakeSubscribers() *fakeSubscribers {
	return &fakeSubscribers{subs: make(map[string]*model.Subscriber)}
}

func (f *fakeSubscribers) add(id, email string, interests ...string) *model.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &model.Subscriber{
		ID:               id,
		Email:            email,
		Interests:        model.Interests(interests),
		UnsubscribeToken: "tok-" + id,
	}
	f.subs[id] = sub
	return sub
}

func (f *fakeSubscribers) ListEligibleIDs(_ context.Context, interestLabel string, publishDate time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, sub := range f.subs {
		if !sub.Interests.Has(interestLabel) || sub.UnsubscribedAt.Valid {
			continue
		}
		if sub.LastSentAt.Valid && !sub.LastSentAt.Time.Before(publishDate) {
			continue
		}
		ids = append(ids, sub.ID)
	}
	return ids, nil
}

func (f *fakeSubscribers) BumpLastSent(_ context.Context, ids []string, publishDate time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if sub, ok := f.subs[id]; ok {
			sub.LastSentAt.Time = publishDate
			sub.LastSentAt.Valid = true
			sub.UnsubscribedAt = sql.NullTime{}
		}
	}
	return nil
}

func (f *fakeSubscribers) GetByEmail(_ context.Context, email string) (*model.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.Email == email {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscribers) Upsert(_ context.Context, sub model.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.subs {
		if existing.Email == sub.Email {
			existing.Interests = sub.Interests
			existing.UnsubscribedAt = sql.NullTime{}
			return nil
		}
	}
	cp := sub
	f.subs[sub.ID] = &cp
	return nil
}

func (f *fakeSubscribers) UnsubscribeByToken(_ context.Context, token string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.UnsubscribeToken == token && !sub.UnsubscribedAt.Valid {
			sub.UnsubscribedAt.Time = at
			sub.UnsubscribedAt.Valid = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSubscribers) unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := f.subs[id]
	sub.UnsubscribedAt.Time = time.Now()
	sub.UnsubscribedAt.Valid = true
}

// ---- deliveries ----

type fakeDeliveries struct {
	mu    sync.Mutex
	seq   int
	subs  *fakeSubscribers
	rows  map[string]*model.Delivery
	order []string
}

var _ repository.DeliveriesRepository = (*fakeDeliveries)(nil)

func newFakeDeliveries(subs *fakeSubscribers) *fakeDeliveries {
	return &fakeDeliveries{subs: subs, rows: make(map[string]*model.Delivery)}
}

func (f *fakeDeliveries) InsertPendingSkipDuplicates(_ context.Context, issueID string, subscriberIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	created := 0
	for _, subID := range subscriberIDs {
		dup := false
		for _, row := range f.rows {
			if row.IssueID == issueID && row.SubscriberID == subID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		f.seq++
		row := &model.Delivery{
			ID:           fmt.Sprintf("dlv-%d", f.seq),
			IssueID:      issueID,
			SubscriberID: subID,
			Status:       model.DeliveryPending,
			CreatedAt:    time.Now(),
		}
		f.rows[row.ID] = row
		f.order = append(f.order, row.ID)
		created++
	}
	return created, nil
}

func (f *fakeDeliveries) ListPending(_ context.Context, issueID string, limit int) ([]model.PendingDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PendingDelivery
	for _, id := range f.order {
		row := f.rows[id]
		if row.IssueID != issueID || row.Status != model.DeliveryPending {
			continue
		}
		pd := model.PendingDelivery{Delivery: *row}
		f.subs.mu.Lock()
		if sub, ok := f.subs.subs[row.SubscriberID]; ok {
			pd.Email = sub.Email
			pd.UnsubscribeToken = sub.UnsubscribeToken
			pd.UnsubscribedAt = sub.UnsubscribedAt
		}
		f.subs.mu.Unlock()
		out = append(out, pd)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDeliveries) MarkSent(_ context.Context, ids []string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		row := f.rows[id]
		row.Status = model.DeliverySent
		row.SentAt.Time = sentAt
		row.SentAt.Valid = true
		row.Error.Valid = false
	}
	return nil
}

func (f *fakeDeliveries) MarkFailed(_ context.Context, ids []string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		row := f.rows[id]
		row.Status = model.DeliveryFailed
		row.Error.String = reason
		row.Error.Valid = true
	}
	return nil
}

func (f *fakeDeliveries) CountPending(_ context.Context, issueID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if row.IssueID == issueID && row.Status == model.DeliveryPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeDeliveries) byStatus(issueID string, status model.DeliveryStatus) []*model.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Delivery
	for _, id := range f.order {
		row := f.rows[id]
		if row.IssueID == issueID && row.Status == status {
			out = append(out, row)
		}
	}
	return out
}

// ---- delivery log ----

type fakeDeliveryLog struct {
	mu   sync.Mutex
	rows []repository.DeliveryLogRow
}

var _ repository.DeliveryLogRepository = (*fakeDeliveryLog)(nil)

func (f *fakeDeliveryLog) InsertBatch(_ context.Context, rows []repository.DeliveryLogRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeDeliveryLog) List(_ context.Context, _ string, _ model.DeliveryStatus, _, _ int) ([]repository.DeliveryLogRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.DeliveryLogRow{}, f.rows...), nil
}

// ---- collaborators ----

type fakeAI struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	opts  genai.Options
}

func (f *fakeAI) GenerateText(_ context.Context, _ string, opts genai.Options) (genai.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.opts = opts
	if f.err != nil {
		return genai.Result{}, f.err
	}
	return genai.Result{Text: f.text}, nil
}

type fakeMail struct {
	mu       sync.Mutex
	failures int    // fail this many leading SendBatch calls
	failMsg  string // error text for forced failures
	batches  [][]mailer.Message
}

func (f *fakeMail) SendBatch(_ context.Context, messages []mailer.Message) (mailer.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		msg := f.failMsg
		if msg == "" {
			msg = "upstream rejected the batch"
		}
		return mailer.Receipt{}, fmt.Errorf("%s", msg)
	}
	f.batches = append(f.batches, messages)
	ids := make([]string, len(messages))
	return mailer.Receipt{IDs: ids}, nil
}

func (f *fakeMail) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}
