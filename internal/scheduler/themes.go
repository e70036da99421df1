// Package scheduler decides when the expensive AI generation jobs run.
//
// Each job kind (theme extraction, insight generation) is an independent
// single-flight domain: at most one run in flight per kind, extra triggers are
// dropped rather than queued, and the two kinds may run in parallel. The lock
// is taken before the gating read, so a second trigger racing the first
// observes "already running" even before any upstream call is made. Dedup is
// per-instance, best effort.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"backend/internal/gemini"
	"backend/internal/models"
	"backend/internal/prompt"
	"backend/internal/retry"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

var themesSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"themes": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"frequency":   {Type: genai.TypeInteger},
					"representative_quotes": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString},
					},
				},
				Required: []string{"name", "description", "frequency", "representative_quotes"},
			},
		},
	},
	Required: []string{"themes"},
}

type jsonGenerator interface {
	GenerateJSON(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error)
}

type themeSubmissionReader interface {
	CountConsenting(ctx context.Context) (int, error)
	GetSafeSacrifices(ctx context.Context) ([]string, error)
}

type themeRunStore interface {
	SaveThemeExtraction(ctx context.Context, run *models.ThemeExtraction) error
	GetLatestThemeExtraction(ctx context.Context) (*models.ThemeExtraction, error)
}

// ThemeScheduler gates and runs AI theme extraction. The gate is count-based
// only: enough total data, and enough new data since the last run.
type ThemeScheduler struct {
	mu       sync.Mutex
	ai       jsonGenerator
	model    string
	template string
	subs     themeSubmissionReader
	runs     themeRunStore
	minCount int
	interval int
	policy   retry.Policy
	logger   *zap.Logger
}

func NewThemeScheduler(ai jsonGenerator, model, template string, subs themeSubmissionReader,
	runs themeRunStore, minCount, interval int, policy retry.Policy, logger *zap.Logger) *ThemeScheduler {
	return &ThemeScheduler{
		ai:       ai,
		model:    model,
		template: template,
		subs:     subs,
		runs:     runs,
		minCount: minCount,
		interval: interval,
		policy:   policy,
		logger:   logger,
	}
}

// ShouldRun reads the current eligible count and the last run's high-water
// mark. Below the minimum it is always false, regardless of run history.
func (s *ThemeScheduler) ShouldRun(ctx context.Context) (bool, error) {
	count, err := s.subs.CountConsenting(ctx)
	if err != nil {
		return false, err
	}
	if count < s.minCount {
		return false, nil
	}
	latest, err := s.runs.GetLatestThemeExtraction(ctx)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	return count-latest.SubmissionCount >= s.interval, nil
}

// MaybeExtract runs theme extraction if it is due. A trigger arriving while a
// run is in flight returns (nil, nil) immediately with no side effects; a
// trigger that fails the gate does the same. Failed runs persist nothing, so
// the next qualifying trigger tries again.
func (s *ThemeScheduler) MaybeExtract(ctx context.Context) ([]models.ExtractedTheme, error) {
	if !s.mu.TryLock() {
		return nil, nil
	}
	defer s.mu.Unlock()

	due, err := s.ShouldRun(ctx)
	if err != nil || !due {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		themes, err := s.extract(ctx)
		if err == nil {
			return themes, nil
		}
		status := gemini.StatusCode(err)
		if retry.IsRetryableStatus(status) && attempt < s.policy.MaxAttempts() {
			s.logger.Info("Theme extraction model busy, retrying",
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", s.policy.MaxAttempts()))
			if serr := s.policy.Sleep(ctx, attempt); serr != nil {
				return nil, serr
			}
			continue
		}
		s.logger.Error("Theme extraction failed", zap.Error(err))
		return nil, err
	}
}

func (s *ThemeScheduler) extract(ctx context.Context) ([]models.ExtractedTheme, error) {
	count, err := s.subs.CountConsenting(ctx)
	if err != nil {
		return nil, err
	}
	sacrifices, err := s.subs.GetSafeSacrifices(ctx)
	if err != nil {
		return nil, err
	}
	if len(sacrifices) == 0 {
		return nil, nil
	}

	start := time.Now()
	raw, err := s.ai.GenerateJSON(ctx, s.model, prompt.BuildThemeExtraction(s.template, sacrifices), themesSchema)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Themes []models.ExtractedTheme `json:"themes"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.logger.Error("Failed to parse theme extraction response", zap.String("response", raw), zap.Error(err))
		return nil, fmt.Errorf("theme extraction returned invalid JSON: %w", err)
	}
	if err := validateThemes(parsed.Themes); err != nil {
		return nil, err
	}

	run := &models.ThemeExtraction{
		Themes:           parsed.Themes,
		SubmissionCount:  count,
		ModelUsed:        s.model,
		GenerationTimeMs: time.Since(start).Milliseconds(),
	}
	if err := s.runs.SaveThemeExtraction(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist theme extraction: %w", err)
	}

	s.logger.Info("Theme extraction complete",
		zap.Int("themes", len(parsed.Themes)),
		zap.Int("submission_count", count),
		zap.Int64("elapsed_ms", run.GenerationTimeMs))
	return parsed.Themes, nil
}

func validateThemes(themes []models.ExtractedTheme) error {
	if len(themes) < 1 || len(themes) > 12 {
		return fmt.Errorf("theme extraction returned %d themes, expected 1-12", len(themes))
	}
	for i, t := range themes {
		if t.Name == "" || t.Description == "" {
			return fmt.Errorf("theme %d is missing a name or description", i)
		}
	}
	return nil
}
