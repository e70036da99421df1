// Package moderation is the content safety gate for submission free text.
//
// At intake the gate runs one synchronous check. An unsafe verdict flags the
// row but the submission is still accepted; only explicitly-safe text ever
// reaches AI-facing aggregates. When the upstream check itself fails the row
// stays pending and a detached background retry takes over.
package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"backend/internal/models"
	"backend/internal/prompt"
	"backend/internal/retry"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Result is a completed moderation verdict. Reason is only set for unsafe
// content.
type Result struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

var moderationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"safe":   {Type: genai.TypeBoolean},
		"reason": {Type: genai.TypeString},
	},
	Required: []string{"safe"},
}

type generator interface {
	GenerateJSON(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error)
}

type safetyWriter interface {
	UpdateContentSafe(ctx context.Context, id string, state models.SafetyState) error
}

type Service struct {
	ai         generator
	model      string
	template   string
	textFields []string
	repo       safetyWriter
	policy     retry.Policy
	logger     *zap.Logger
}

func NewService(ai generator, model, template string, textFields []string,
	repo safetyWriter, policy retry.Policy, logger *zap.Logger) *Service {
	return &Service{
		ai:         ai,
		model:      model,
		template:   template,
		textFields: textFields,
		repo:       repo,
		policy:     policy,
		logger:     logger,
	}
}

// CollectFreeText extracts every user-authored free-text value from the fixed
// answers and the adaptive follow-up answers. Fixed text field names come from
// config, so new text questions are covered without code changes. Empty and
// whitespace-only values are dropped.
func (s *Service) CollectFreeText(answers models.FixedAnswers, adaptive models.AdaptiveAnswers) []string {
	var texts []string

	raw, err := json.Marshal(answers)
	if err == nil {
		fields := map[string]interface{}{}
		if err := json.Unmarshal(raw, &fields); err == nil {
			for _, name := range s.textFields {
				if val, ok := fields[name].(string); ok && strings.TrimSpace(val) != "" {
					texts = append(texts, strings.TrimSpace(val))
				}
			}
		}
	}

	for _, entry := range adaptive {
		if entry.InputType != "short_text" {
			continue
		}
		if val, ok := entry.Answer.(string); ok && strings.TrimSpace(val) != "" {
			texts = append(texts, strings.TrimSpace(val))
		}
	}

	return texts
}

// Moderate runs the upstream safety classifier over the batched texts. Empty
// input is trivially safe without an upstream call. An error means the check
// was indeterminate, which is not the same as unsafe content.
func (s *Service) Moderate(ctx context.Context, texts []string) (Result, error) {
	if len(texts) == 0 {
		return Result{Safe: true}, nil
	}

	raw, err := s.ai.GenerateJSON(ctx, s.model, prompt.BuildModeration(s.template, texts), moderationSchema)
	if err != nil {
		return Result{}, err
	}

	var parsed struct {
		Safe   *bool  `json:"safe"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.logger.Error("Failed to parse moderation response", zap.String("response", raw), zap.Error(err))
		return Result{}, fmt.Errorf("moderation returned invalid JSON: %w", err)
	}

	// Safe unless the classifier explicitly said otherwise.
	return Result{Safe: parsed.Safe == nil || *parsed.Safe, Reason: parsed.Reason}, nil
}

// Screen runs the intake-time moderation policy and returns the safety state
// to store with the new submission. When the state is pending and texts is
// non-empty the caller must schedule RetryModeration after the insert.
func (s *Service) Screen(ctx context.Context, texts []string) models.SafetyState {
	if len(texts) == 0 {
		return models.SafetySafe
	}

	result, err := s.Moderate(ctx, texts)
	if err != nil {
		s.logger.Warn("Moderation unavailable at intake, deferring to background retry", zap.Error(err))
		return models.SafetyPending
	}
	if !result.Safe {
		s.logger.Info("Submission content flagged unsafe", zap.String("reason", result.Reason))
		return models.SafetyUnsafe
	}
	return models.SafetySafe
}

// RetryModeration re-checks a pending submission in a detached goroutine. It
// captures copies of its inputs since the triggering request has usually
// already returned. The retry schedule is consumed unconditionally: the
// failure class here is "indeterminate", not "classified retryable". When
// every attempt fails the row stays pending permanently and is never treated
// as safe downstream.
func (s *Service) RetryModeration(submissionID string, texts []string) {
	captured := make([]string, len(texts))
	copy(captured, texts)

	go s.retryLoop(context.Background(), submissionID, captured)
}

func (s *Service) retryLoop(ctx context.Context, submissionID string, texts []string) {
	attempts := s.policy.MaxAttempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if err := s.policy.Sleep(ctx, attempt); err != nil {
			return
		}

		result, err := s.Moderate(ctx, texts)
		if err != nil {
			s.logger.Warn("Retry moderation attempt failed",
				zap.String("submission_id", submissionID),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
			continue
		}

		state := models.SafetySafe
		if !result.Safe {
			state = models.SafetyUnsafe
		}
		if err := s.repo.UpdateContentSafe(ctx, submissionID, state); err != nil {
			s.logger.Error("Failed to persist moderation verdict",
				zap.String("submission_id", submissionID), zap.Error(err))
			continue
		}

		s.logger.Info("Retry moderation resolved",
			zap.String("submission_id", submissionID),
			zap.String("verdict", state.String()),
			zap.Int("attempt", attempt+1))
		return
	}

	s.logger.Error("Retry moderation exhausted, row stays unmoderated",
		zap.String("submission_id", submissionID))
}
