package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aiJSON(n int) string {
	entries := make([]string, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, fmt.Sprintf(
			`{"question": "How would you handle production scenario number %d at scale", "answer": "Walk through detection, mitigation, and the follow-up fix, including the metrics that proved the issue was resolved."}`, i+1))
	}
	return "[" + strings.Join(entries, ",") + "]"
}

func testDate() time.Time {
	return time.Date(2026, time.April, 20, 0, 0, 0, 0, time.Local)
}

func TestGetOrCreateUsesAIContent(t *testing.T) {
	issues := newFakeIssues()
	ai := &fakeAI{text: aiJSON(5)}
	svc := NewIssueService(issues, ai, time.Minute)

	issue, source, err := svc.GetOrCreate(context.Background(), model.CategoryBackend, testDate())
	require.NoError(t, err)

	assert.Equal(t, SourceAI, source)
	assert.Equal(t, model.CategoryBackend, issue.Category)
	assert.Equal(t, "Dev Letter Daily • Backend", issue.Title)
	assert.Equal(t, model.IssueDraft, issue.Status)
	assert.Len(t, issue.QAPairs, 5)
	assert.True(t, issue.ScheduledFor.Valid)
	assert.Equal(t, testDate(), issue.ScheduledFor.Time)

	// token budget scales with the question count
	assert.Equal(t, 5*estimatedTokensPerPair, ai.opts.MaxOutputTokens)
}

func TestGetOrCreateIdempotent(t *testing.T) {
	issues := newFakeIssues()
	ai := &fakeAI{text: aiJSON(5)}
	svc := NewIssueService(issues, ai, time.Minute)

	first, source, err := svc.GetOrCreate(context.Background(), model.CategoryDatabase, testDate())
	require.NoError(t, err)
	require.Equal(t, SourceAI, source)

	second, source, err := svc.GetOrCreate(context.Background(), model.CategoryDatabase, testDate())
	require.NoError(t, err)

	assert.Equal(t, SourceExisting, source)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, ai.calls, "no regeneration for an existing issue")
}

func TestGetOrCreateSeparateIssuesPerDay(t *testing.T) {
	issues := newFakeIssues()
	svc := NewIssueService(issues, &fakeAI{text: aiJSON(5)}, time.Minute)

	a, _, err := svc.GetOrCreate(context.Background(), model.CategoryJava, testDate())
	require.NoError(t, err)
	b, _, err := svc.GetOrCreate(context.Background(), model.CategoryJava, testDate().AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestGetOrCreateFallbackOnAIError(t *testing.T) {
	issues := newFakeIssues()
	svc := NewIssueService(issues, &fakeAI{err: errors.New("upstream 500")}, time.Minute)

	issue, source, err := svc.GetOrCreate(context.Background(), model.CategorySpring, testDate())
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, source)
	assert.Len(t, issue.QAPairs, 5)
	assert.Contains(t, issue.QAPairs[0].Question, "Spring")
}

func TestGetOrCreateFallbackOnUnusableContent(t *testing.T) {
	issues := newFakeIssues()
	svc := NewIssueService(issues, &fakeAI{text: "sorry, I cannot help with that"}, time.Minute)

	_, source, err := svc.GetOrCreate(context.Background(), model.CategoryDevOps, testDate())
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, source)
}

func TestGetOrCreateWithoutAIClient(t *testing.T) {
	issues := newFakeIssues()
	svc := NewIssueService(issues, nil, time.Minute)

	issue, source, err := svc.GetOrCreate(context.Background(), model.CategoryFrontend, testDate())
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, source)
	assert.Len(t, issue.QAPairs, 5)
}

func TestGetOrCreateRecoversFromCreateRace(t *testing.T) {
	issues := newFakeIssues()
	winner := &model.Issue{
		ID:          "issue-winner",
		Category:    model.CategoryNetwork,
		PublishDate: testDate(),
		Status:      model.IssueDraft,
	}
	issues.createErr = repository.ErrDuplicateIssue
	issues.conflictWith = winner

	svc := NewIssueService(issues, &fakeAI{text: aiJSON(5)}, time.Minute)

	issue, source, err := svc.GetOrCreate(context.Background(), model.CategoryNetwork, testDate())
	require.NoError(t, err)

	assert.Equal(t, SourceExisting, source)
	assert.Equal(t, "issue-winner", issue.ID)
}

func TestGetOrCreateUnknownCategory(t *testing.T) {
	svc := NewIssueService(newFakeIssues(), nil, time.Minute)

	_, _, err := svc.GetOrCreate(context.Background(), model.Category("cooking"), testDate())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported category")
}
