package newsletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devletter/newsletterd/internal/genai"
	"github.com/devletter/newsletterd/internal/logger"
	"github.com/devletter/newsletterd/internal/metrics"
	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/prompt"
	"github.com/devletter/newsletterd/internal/qa"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/devletter/newsletterd/internal/rotation"
	"github.com/devletter/newsletterd/internal/util"
	"go.uber.org/zap"
)

// tokens budgeted per requested QA pair on generation calls.
const estimatedTokensPerPair = 120

// IssueService creates-or-fetches the single issue for (category, day).
type IssueService struct {
	Issues     repository.IssuesRepository
	AI         genai.Client
	GenTimeout time.Duration
}

func NewIssueService(issues repository.IssuesRepository, ai genai.Client, genTimeout time.Duration) *IssueService {
	return &IssueService{Issues: issues, AI: ai, GenTimeout: genTimeout}
}

// GetOrCreate is idempotent per (category, publishDate): repeated calls never
// duplicate an issue, and a concurrent creation race resolves by re-fetching
// the winning row. Generation or normalization failure degrades to the
// deterministic fallback pairs instead of failing the call.
func (s *IssueService) GetOrCreate(ctx context.Context, category model.Category, publishDate time.Time) (*model.Issue, Source, error) {
	tpl, ok := prompt.ForCategory(category)
	if !ok {
		return nil, "", fmt.Errorf("newsletter: unsupported category: %s", category)
	}
	publishDate = rotation.StartOfDay(publishDate)

	existing, err := s.Issues.GetByCategoryAndDate(ctx, category, publishDate)
	if err != nil {
		return nil, "", fmt.Errorf("newsletter: lookup issue: %w", err)
	}
	if existing != nil {
		metrics.IssuesTotal.WithLabelValues(string(SourceExisting)).Inc()
		return existing, SourceExisting, nil
	}

	pairs, source := s.generatePairs(ctx, tpl, publishDate)

	issue := model.Issue{
		ID:          util.New(),
		Category:    category,
		PublishDate: publishDate,
		Title:       "Dev Letter Daily • " + tpl.Label,
		QAPairs:     pairs,
		Status:      model.IssueDraft,
		GeneratedAt: time.Now(),
	}
	issue.ScheduledFor.Time = publishDate
	issue.ScheduledFor.Valid = true

	if err := s.Issues.Create(ctx, issue); err != nil {
		if errors.Is(err, repository.ErrDuplicateIssue) {
			conflict, ferr := s.Issues.GetByCategoryAndDate(ctx, category, publishDate)
			if ferr == nil && conflict != nil {
				metrics.IssuesTotal.WithLabelValues(string(SourceExisting)).Inc()
				return conflict, SourceExisting, nil
			}
		}
		return nil, "", fmt.Errorf("newsletter: create issue: %w", err)
	}

	metrics.IssuesTotal.WithLabelValues(string(source)).Inc()
	return &issue, source, nil
}

func (s *IssueService) generatePairs(ctx context.Context, tpl prompt.Template, publishDate time.Time) (qa.PairList, Source) {
	if s.AI != nil {
		res, err := s.AI.GenerateText(ctx, prompt.Build(tpl), genai.Options{
			Temperature:     tpl.Temperature,
			MaxOutputTokens: tpl.QuestionCount * estimatedTokensPerPair,
			Timeout:         s.GenTimeout,
		})
		if err == nil {
			pairs, nerr := qa.Normalize(res.Text, tpl.QuestionCount, 0)
			if nerr == nil {
				return pairs, SourceAI
			}
			err = nerr
		}
		logger.Log.Warn("issue generation failed, using fallback",
			zap.String("category", tpl.Category.String()),
			zap.Time("publish_date", publishDate),
			zap.Error(err),
		)
	}
	return qa.BuildFallback(tpl.Label, tpl.QuestionCount), SourceFallback
}
