package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backend/internal/gemini"
	"backend/internal/models"
	"backend/internal/prompt"
	"backend/internal/retry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type textGenerator interface {
	GenerateText(ctx context.Context, model, system, prompt string) (string, error)
	StreamText(ctx context.Context, model, system, prompt string, fn func(fragment string) error) (string, error)
}

type insightSubmissionReader interface {
	CountConsenting(ctx context.Context) (int, error)
	CountConsentingSince(ctx context.Context, since time.Time) (int, error)
	GetPressureCounts(ctx context.Context) (map[string]int, error)
	GetSafeSacrifices(ctx context.Context) ([]string, error)
	GetSafeAdaptiveAnswers(ctx context.Context) ([]models.AdaptiveAnswer, error)
}

type insightRunStore interface {
	SaveInsightSnapshot(ctx context.Context, run *models.InsightSnapshot) error
	GetLatestInsightSnapshot(ctx context.Context) (*models.InsightSnapshot, error)
}

type summarizer interface {
	Summarize(ctx context.Context) (*models.DatasetSummary, error)
}

// InsightScheduler gates and runs AI insight generation. Unlike theme
// extraction its gate requires both enough new data since the last run and an
// elapsed-time cooldown, together.
type InsightScheduler struct {
	mu             sync.Mutex
	ai             textGenerator
	model          string
	systemTemplate string
	userTemplate   string
	subs           insightSubmissionReader
	runs           insightRunStore
	summary        summarizer
	minCount       int
	interval       int
	cooldown       time.Duration
	policy         retry.Policy
	logger         *zap.Logger
	now            func() time.Time
}

func NewInsightScheduler(ai textGenerator, model, systemTemplate, userTemplate string,
	subs insightSubmissionReader, runs insightRunStore, summary summarizer,
	minCount, interval int, cooldown time.Duration, policy retry.Policy, logger *zap.Logger) *InsightScheduler {
	return &InsightScheduler{
		ai:             ai,
		model:          model,
		systemTemplate: systemTemplate,
		userTemplate:   userTemplate,
		subs:           subs,
		runs:           runs,
		summary:        summary,
		minCount:       minCount,
		interval:       interval,
		cooldown:       cooldown,
		policy:         policy,
		logger:         logger,
		now:            time.Now,
	}
}

// ShouldRun requires the count interval AND the cooldown to be satisfied
// simultaneously once a prior run exists.
func (s *InsightScheduler) ShouldRun(ctx context.Context) (bool, error) {
	count, err := s.subs.CountConsenting(ctx)
	if err != nil {
		return false, err
	}
	if count < s.minCount {
		return false, nil
	}
	latest, err := s.runs.GetLatestInsightSnapshot(ctx)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	enoughData := count-latest.SubmissionCount >= s.interval
	cooledDown := s.now().Sub(latest.CreatedAt) >= s.cooldown
	return enoughData && cooledDown, nil
}

// MaybeGenerate runs insight generation if it is due and returns the narrative
// text. Concurrent triggers while a run is in flight return ("", nil)
// immediately; so do triggers that fail the gate.
func (s *InsightScheduler) MaybeGenerate(ctx context.Context) (string, error) {
	if !s.mu.TryLock() {
		return "", nil
	}
	defer s.mu.Unlock()

	due, err := s.ShouldRun(ctx)
	if err != nil || !due {
		return "", err
	}
	return s.generate(ctx, nil)
}

// StreamInsight behaves like MaybeGenerate but forwards text fragments to fn
// as they arrive. The complete text is persisted once, after the stream
// finishes; a stream interrupted by the upstream or by fn (client disconnect)
// persists nothing.
func (s *InsightScheduler) StreamInsight(ctx context.Context, fn func(fragment string) error) (string, error) {
	if !s.mu.TryLock() {
		return "", nil
	}
	defer s.mu.Unlock()

	due, err := s.ShouldRun(ctx)
	if err != nil || !due {
		return "", err
	}
	return s.generate(ctx, fn)
}

func (s *InsightScheduler) generate(ctx context.Context, fn func(fragment string) error) (string, error) {
	system, user, summary, err := s.buildPrompts(ctx)
	if err != nil {
		return "", err
	}
	if summary.TotalResponses == 0 {
		return "", nil
	}

	start := s.now()
	var delivered bool
	for attempt := 0; ; attempt++ {
		var text string
		var genErr error
		if fn == nil {
			text, genErr = s.ai.GenerateText(ctx, s.model, system, user)
		} else {
			text, genErr = s.ai.StreamText(ctx, s.model, system, user, func(fragment string) error {
				delivered = true
				return fn(fragment)
			})
		}
		if genErr == nil {
			return text, s.persist(ctx, text, summary, start)
		}

		status := gemini.StatusCode(genErr)
		// Once fragments have reached the client a retry would duplicate
		// them, so only an untouched stream re-enters the loop.
		if retry.IsRetryableStatus(status) && !delivered && attempt < s.policy.MaxAttempts() {
			s.logger.Info("Insight model busy, retrying",
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", s.policy.MaxAttempts()))
			if serr := s.policy.Sleep(ctx, attempt); serr != nil {
				return "", serr
			}
			continue
		}
		s.logger.Error("Insight generation failed", zap.Error(genErr))
		return "", genErr
	}
}

func (s *InsightScheduler) persist(ctx context.Context, text string, summary *models.DatasetSummary, start time.Time) error {
	run := &models.InsightSnapshot{
		InsightText:      text,
		DataSummary:      summary.Document(),
		SubmissionCount:  summary.TotalResponses,
		ModelUsed:        s.model,
		GenerationTimeMs: s.now().Sub(start).Milliseconds(),
	}
	if err := s.runs.SaveInsightSnapshot(ctx, run); err != nil {
		return fmt.Errorf("failed to persist insight snapshot: %w", err)
	}
	s.logger.Info("Insight generation complete",
		zap.Int("submission_count", run.SubmissionCount),
		zap.Int64("elapsed_ms", run.GenerationTimeMs))
	return nil
}

func (s *InsightScheduler) buildPrompts(ctx context.Context) (system, user string, summary *models.DatasetSummary, err error) {
	var (
		sacrifices []string
		adaptive   []models.AdaptiveAnswer
		pressures  map[string]int
		weekCount  int
		monthCount int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { summary, err = s.summary.Summarize(gctx); return })
	g.Go(func() (err error) { sacrifices, err = s.subs.GetSafeSacrifices(gctx); return })
	g.Go(func() (err error) { adaptive, err = s.subs.GetSafeAdaptiveAnswers(gctx); return })
	g.Go(func() (err error) { pressures, err = s.subs.GetPressureCounts(gctx); return })
	g.Go(func() (err error) {
		weekCount, err = s.subs.CountConsentingSince(gctx, s.now().Add(-7*24*time.Hour))
		return
	})
	g.Go(func() (err error) {
		monthCount, err = s.subs.CountConsentingSince(gctx, s.now().Add(-30*24*time.Hour))
		return
	})
	if err := g.Wait(); err != nil {
		return "", "", nil, err
	}

	ranked := prompt.PressuresRanked(pressures, summary.TotalResponses)
	user = prompt.BuildInsightUser(s.userTemplate, summary, ranked, sacrifices, adaptive, weekCount, monthCount)
	return s.systemTemplate, user, summary, nil
}
